package gateway

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service interfaces for mocking the Binance futures API

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side futures.SideType) CreateOrderService
	Type(orderType futures.OrderType) CreateOrderService
	TimeInForce(tif futures.TimeInForceType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	ReduceOnly(reduceOnly bool) CreateOrderService
	Do(ctx context.Context) (*futures.CreateOrderResponse, error)
}

// GetAccountService interface for getting account info.
type GetAccountService interface {
	Do(ctx context.Context) (*futures.Account, error)
}

// ListOpenOrdersService interface for listing open orders.
type ListOpenOrdersService interface {
	Do(ctx context.Context) ([]*futures.Order, error)
}

// CancelOrderService interface for canceling orders.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrderID(orderID int64) CancelOrderService
	Do(ctx context.Context) (*futures.CancelOrderResponse, error)
}

// BinanceClient interface abstracts the Binance futures client for testing.
type BinanceClient interface {
	NewCreateOrderService() CreateOrderService
	NewGetAccountService() GetAccountService
	NewListOpenOrdersService() ListOpenOrdersService
	NewCancelOrderService() CancelOrderService
}

// realBinanceClient wraps the actual futures.Client.
type realBinanceClient struct {
	client *futures.Client
}

func (r *realBinanceClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realBinanceClient) NewGetAccountService() GetAccountService {
	return &realGetAccountService{service: r.client.NewGetAccountService()}
}

func (r *realBinanceClient) NewListOpenOrdersService() ListOpenOrdersService {
	return &realListOpenOrdersService{service: r.client.NewListOpenOrdersService()}
}

func (r *realBinanceClient) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{service: r.client.NewCancelOrderService()}
}

// Real service wrappers

type realCreateOrderService struct {
	service *futures.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side futures.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType futures.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif futures.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) ReduceOnly(reduceOnly bool) CreateOrderService {
	s.service = s.service.ReduceOnly(reduceOnly)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*futures.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetAccountService struct {
	service *futures.GetAccountService
}

func (s *realGetAccountService) Do(ctx context.Context) (*futures.Account, error) {
	return s.service.Do(ctx)
}

type realListOpenOrdersService struct {
	service *futures.ListOpenOrdersService
}

func (s *realListOpenOrdersService) Do(ctx context.Context) ([]*futures.Order, error) {
	return s.service.Do(ctx)
}

type realCancelOrderService struct {
	service *futures.CancelOrderService
}

func (s *realCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOrderService) OrderID(orderID int64) CancelOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realCancelOrderService) Do(ctx context.Context) (*futures.CancelOrderResponse, error) {
	return s.service.Do(ctx)
}

// BinanceGateway implements Gateway on Binance USD-M futures. Each session
// account maps to its own API client. One lot converts to the configured
// lot size of the symbol.
type BinanceGateway struct {
	clients  map[string]BinanceClient
	lotSizes map[string]decimal.Decimal
	logger   *logger.Logger

	mu sync.Mutex
	// orderSymbols remembers the symbol of orders placed through this gateway
	// because cancellation requires it.
	orderSymbols map[string]string
}

// Verify BinanceGateway implements Gateway.
var _ Gateway = (*BinanceGateway)(nil)

// NewBinanceGateway creates a gateway with one futures client per configured account.
// If config.UseTestnet is true, every client connects to the futures testnet.
// A per-account BaseURL takes precedence over UseTestnet.
func NewBinanceGateway(config BinanceGatewayConfig, log *logger.Logger) (*BinanceGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.UseTestnet {
		futures.UseTestnet = true
	}

	clients := make(map[string]BinanceClient, len(config.Accounts))

	for _, account := range config.Accounts {
		client := futures.NewClient(account.ApiKey, account.SecretKey)
		if account.BaseURL != "" {
			client.BaseURL = account.BaseURL
		}

		clients[account.ID()] = &realBinanceClient{client: client}
	}

	return newBinanceGatewayWithClients(clients, config.LotSizes, log), nil
}

// newBinanceGatewayWithClients creates a gateway with custom clients.
// This is used for testing with mock clients.
func newBinanceGatewayWithClients(clients map[string]BinanceClient, lotSizes map[string]float64, log *logger.Logger) *BinanceGateway {
	if log == nil {
		log = logger.NewNop()
	}

	sizes := make(map[string]decimal.Decimal, len(lotSizes))
	for symbol, size := range lotSizes {
		sizes[symbol] = decimal.NewFromFloat(size)
	}

	return &BinanceGateway{
		clients:      clients,
		lotSizes:     sizes,
		logger:       log.Named("binance-gateway"),
		orderSymbols: map[string]string{},
	}
}

func (b *BinanceGateway) client(accountID string) (BinanceClient, error) {
	client, ok := b.clients[accountID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownAccount, "unknown account: %s", accountID)
	}

	return client, nil
}

func (b *BinanceGateway) lotSize(symbol string) decimal.Decimal {
	if size, ok := b.lotSizes[symbol]; ok {
		return size
	}

	return decimal.NewFromInt(1)
}

// toLots converts a contract quantity into whole lots, truncating toward zero.
func (b *BinanceGateway) toLots(symbol, quantity string) int {
	qty, err := decimal.NewFromString(quantity)
	if err != nil {
		return 0
	}

	return int(qty.Div(b.lotSize(symbol)).IntPart())
}

func parseFloat(value string) float64 {
	f, _ := strconv.ParseFloat(value, 64)

	return f
}

func mapBinanceOrderStatus(status futures.OrderStatusType) types.OrderStatus {
	switch status {
	case futures.OrderStatusTypeNew, futures.OrderStatusTypePartiallyFilled:
		return types.OrderStatusPending
	case futures.OrderStatusTypeFilled:
		return types.OrderStatusFilled
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return types.OrderStatusCancelled
	case futures.OrderStatusTypeRejected:
		return types.OrderStatusRejected
	default:
		return types.OrderStatusFailed
	}
}

// Authenticate verifies the credentials of an account by fetching it.
func (b *BinanceGateway) Authenticate(ctx context.Context, accountID string) error {
	client, err := b.client(accountID)
	if err != nil {
		return err
	}

	if _, err := client.NewGetAccountService().Do(ctx); err != nil {
		return errors.Wrapf(errors.ErrCodeAuthFailed, err, "binance rejected credentials of account %s", accountID)
	}

	return nil
}

// InsertOrder places a GTC limit order. Closing offsets become reduce-only orders.
func (b *BinanceGateway) InsertOrder(ctx context.Context, req types.InsertOrderRequest) (types.Order, error) {
	if err := req.Validate(); err != nil {
		return types.Order{}, errors.Wrap(errors.ErrCodeOrderFailed, "invalid order request", err)
	}

	client, err := b.client(req.AccountID)
	if err != nil {
		return types.Order{}, err
	}

	side := futures.SideTypeBuy
	if req.Direction == types.DirectionSell {
		side = futures.SideTypeSell
	}

	quantity := decimal.NewFromInt(int64(req.Volume)).Mul(b.lotSize(req.Symbol))

	resp, err := client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(quantity.String()).
		Price(strconv.FormatFloat(req.LimitPrice, 'f', -1, 64)).
		ReduceOnly(req.Offset != types.OffsetOpen).
		Do(ctx)
	if err != nil {
		b.logger.Warn("Binance rejected order",
			zap.String("account", req.AccountID),
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)

		return types.Order{
			AccountID:  req.AccountID,
			Symbol:     req.Symbol,
			Direction:  req.Direction,
			Offset:     req.Offset,
			Volume:     req.Volume,
			LimitPrice: req.LimitPrice,
			Status:     types.OrderStatusRejected,
			Message:    err.Error(),
			Tag:        req.Tag,
			InsertedAt: time.Now(),
		}, errors.Wrap(errors.ErrCodeOrderRejected, "failed to place order on Binance", err)
	}

	orderID := strconv.FormatInt(resp.OrderID, 10)

	b.mu.Lock()
	b.orderSymbols[orderID] = req.Symbol
	b.mu.Unlock()

	order := types.Order{
		OrderID:    orderID,
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		Offset:     req.Offset,
		Volume:     req.Volume,
		VolumeLeft: req.Volume - b.toLots(req.Symbol, resp.ExecutedQuantity),
		LimitPrice: req.LimitPrice,
		Status:     mapBinanceOrderStatus(resp.Status),
		Tag:        req.Tag,
		InsertedAt: time.Now(),
	}

	if order.Status == types.OrderStatusRejected {
		return order, errors.Newf(errors.ErrCodeOrderRejected, "binance rejected order %s", orderID)
	}

	return order, nil
}

// CancelOrder cancels an order placed through this gateway.
func (b *BinanceGateway) CancelOrder(ctx context.Context, accountID, orderID string) error {
	client, err := b.client(accountID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	symbol, ok := b.orderSymbols[orderID]
	b.mu.Unlock()

	if !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "order not found: %s", orderID)
	}

	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid order ID format", err)
	}

	if _, err := client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeCancelFailed, "failed to cancel order on Binance", err)
	}

	return nil
}

// Orders returns the open orders of the account across all symbols.
func (b *BinanceGateway) Orders(ctx context.Context, accountID string) ([]types.Order, error) {
	client, err := b.client(accountID)
	if err != nil {
		return nil, err
	}

	binanceOrders, err := client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAccountQueryFailed, "failed to get open orders from Binance", err)
	}

	orders := make([]types.Order, 0, len(binanceOrders))

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, bo := range binanceOrders {
		orderID := strconv.FormatInt(bo.OrderID, 10)
		b.orderSymbols[orderID] = bo.Symbol

		direction := types.DirectionBuy
		if bo.Side == futures.SideTypeSell {
			direction = types.DirectionSell
		}

		offset := types.OffsetOpen
		if bo.ReduceOnly {
			offset = types.OffsetClose
		}

		volume := b.toLots(bo.Symbol, bo.OrigQuantity)

		orders = append(orders, types.Order{
			OrderID:    orderID,
			AccountID:  accountID,
			Symbol:     bo.Symbol,
			Direction:  direction,
			Offset:     offset,
			Volume:     volume,
			VolumeLeft: volume - b.toLots(bo.Symbol, bo.ExecutedQuantity),
			LimitPrice: parseFloat(bo.Price),
			Status:     mapBinanceOrderStatus(bo.Status),
			InsertedAt: time.UnixMilli(bo.Time),
		})
	}

	return orders, nil
}

func (b *BinanceGateway) account(ctx context.Context, accountID string) (*futures.Account, error) {
	client, err := b.client(accountID)
	if err != nil {
		return nil, err
	}

	account, err := client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAccountQueryFailed, "failed to get account info from Binance", err)
	}

	return account, nil
}

// Positions returns every non-flat position. Binance does not split today and
// history lots, so everything is reported as history.
func (b *BinanceGateway) Positions(ctx context.Context, accountID string) (map[string]types.Position, error) {
	account, err := b.account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	positions := make(map[string]types.Position)

	for _, ap := range account.Positions {
		lots := b.toLots(ap.Symbol, ap.PositionAmt)
		if lots == 0 {
			continue
		}

		pos := types.Position{
			AccountID:   accountID,
			Symbol:      ap.Symbol,
			FloatProfit: parseFloat(ap.UnrealizedProfit),
		}

		if lots > 0 {
			pos.LongHistory = lots
			pos.LongAvgPrice = parseFloat(ap.EntryPrice)
		} else {
			pos.ShortHistory = -lots
			pos.ShortAvgPrice = parseFloat(ap.EntryPrice)
		}

		positions[ap.Symbol] = pos
	}

	return positions, nil
}

// Position returns the position of one symbol, flat when Binance has none.
func (b *BinanceGateway) Position(ctx context.Context, accountID, symbol string) (types.Position, error) {
	positions, err := b.Positions(ctx, accountID)
	if err != nil {
		return types.Position{}, err
	}

	if pos, ok := positions[symbol]; ok {
		return pos, nil
	}

	return types.Position{AccountID: accountID, Symbol: symbol}, nil
}

// AccountInfo maps the futures account balances.
func (b *BinanceGateway) AccountInfo(ctx context.Context, accountID string) (types.AccountInfo, error) {
	account, err := b.account(ctx, accountID)
	if err != nil {
		return types.AccountInfo{}, err
	}

	return types.AccountInfo{
		AccountID:    accountID,
		Currency:     "USDT",
		Balance:      parseFloat(account.TotalMarginBalance),
		Available:    parseFloat(account.AvailableBalance),
		Margin:       parseFloat(account.TotalPositionInitialMargin),
		FrozenMargin: parseFloat(account.TotalOpenOrderInitialMargin),
		FloatProfit:  parseFloat(account.TotalUnrealizedProfit),
		CloseProfit:  0, // Not reported by the account endpoint
		Commission:   0, // Not reported by the account endpoint
	}, nil
}
