package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rxtech-lab/argo-futures/internal/types"
	argoerrors "github.com/rxtech-lab/argo-futures/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// Mock implementations for testing

// mockBinanceClient implements BinanceClient interface for testing
type mockBinanceClient struct {
	createOrderService    *mockCreateOrderService
	getAccountService     *mockGetAccountService
	listOpenOrdersService *mockListOpenOrdersService
	cancelOrderService    *mockCancelOrderService
}

func newMockBinanceClient() *mockBinanceClient {
	return &mockBinanceClient{
		createOrderService:    &mockCreateOrderService{},
		getAccountService:     &mockGetAccountService{},
		listOpenOrdersService: &mockListOpenOrdersService{},
		cancelOrderService:    &mockCancelOrderService{},
	}
}

func (m *mockBinanceClient) NewCreateOrderService() CreateOrderService {
	return m.createOrderService
}

func (m *mockBinanceClient) NewGetAccountService() GetAccountService {
	return m.getAccountService
}

func (m *mockBinanceClient) NewListOpenOrdersService() ListOpenOrdersService {
	return m.listOpenOrdersService
}

func (m *mockBinanceClient) NewCancelOrderService() CancelOrderService {
	return m.cancelOrderService
}

// mockCreateOrderService implements CreateOrderService
type mockCreateOrderService struct {
	response   *futures.CreateOrderResponse
	err        error
	symbol     string
	side       futures.SideType
	orderType  futures.OrderType
	tif        futures.TimeInForceType
	quantity   string
	price      string
	reduceOnly bool
}

func (m *mockCreateOrderService) Symbol(symbol string) CreateOrderService {
	m.symbol = symbol
	return m
}

func (m *mockCreateOrderService) Side(side futures.SideType) CreateOrderService {
	m.side = side
	return m
}

func (m *mockCreateOrderService) Type(orderType futures.OrderType) CreateOrderService {
	m.orderType = orderType
	return m
}

func (m *mockCreateOrderService) TimeInForce(tif futures.TimeInForceType) CreateOrderService {
	m.tif = tif
	return m
}

func (m *mockCreateOrderService) Quantity(quantity string) CreateOrderService {
	m.quantity = quantity
	return m
}

func (m *mockCreateOrderService) Price(price string) CreateOrderService {
	m.price = price
	return m
}

func (m *mockCreateOrderService) ReduceOnly(reduceOnly bool) CreateOrderService {
	m.reduceOnly = reduceOnly
	return m
}

func (m *mockCreateOrderService) Do(_ context.Context) (*futures.CreateOrderResponse, error) {
	return m.response, m.err
}

// mockGetAccountService implements GetAccountService
type mockGetAccountService struct {
	account *futures.Account
	err     error
}

func (m *mockGetAccountService) Do(_ context.Context) (*futures.Account, error) {
	return m.account, m.err
}

// mockListOpenOrdersService implements ListOpenOrdersService
type mockListOpenOrdersService struct {
	orders []*futures.Order
	err    error
}

func (m *mockListOpenOrdersService) Do(_ context.Context) ([]*futures.Order, error) {
	return m.orders, m.err
}

// mockCancelOrderService implements CancelOrderService
type mockCancelOrderService struct {
	response *futures.CancelOrderResponse
	err      error
	symbol   string
	orderID  int64
}

func (m *mockCancelOrderService) Symbol(symbol string) CancelOrderService {
	m.symbol = symbol
	return m
}

func (m *mockCancelOrderService) OrderID(orderID int64) CancelOrderService {
	m.orderID = orderID
	return m
}

func (m *mockCancelOrderService) Do(_ context.Context) (*futures.CancelOrderResponse, error) {
	return m.response, m.err
}

type BinanceGatewayTestSuite struct {
	suite.Suite
	client  *mockBinanceClient
	gateway *BinanceGateway
}

func TestBinanceGatewaySuite(t *testing.T) {
	suite.Run(t, new(BinanceGatewayTestSuite))
}

func (s *BinanceGatewayTestSuite) SetupTest() {
	s.client = newMockBinanceClient()
	s.gateway = newBinanceGatewayWithClients(
		map[string]BinanceClient{"main": s.client},
		map[string]float64{"BTCUSDT": 0.001},
		nil,
	)
}

func (s *BinanceGatewayTestSuite) request() types.InsertOrderRequest {
	return types.InsertOrderRequest{
		AccountID:  "main",
		Symbol:     "BTCUSDT",
		Direction:  types.DirectionSell,
		Offset:     types.OffsetClose,
		Volume:     3,
		LimitPrice: 42000.5,
	}
}

// ============================================================================
// InsertOrder
// ============================================================================

func (s *BinanceGatewayTestSuite) TestInsertOrderMapsRequest() {
	s.client.createOrderService.response = &futures.CreateOrderResponse{
		OrderID:          77,
		Status:           futures.OrderStatusTypeNew,
		ExecutedQuantity: "0.001",
	}

	order, err := s.gateway.InsertOrder(context.Background(), s.request())
	s.Require().NoError(err)

	s.Equal("BTCUSDT", s.client.createOrderService.symbol)
	s.Equal(futures.SideTypeSell, s.client.createOrderService.side)
	s.Equal(futures.OrderTypeLimit, s.client.createOrderService.orderType)
	s.Equal(futures.TimeInForceTypeGTC, s.client.createOrderService.tif)
	s.Equal("0.003", s.client.createOrderService.quantity)
	s.Equal("42000.5", s.client.createOrderService.price)
	s.True(s.client.createOrderService.reduceOnly)

	s.Equal("77", order.OrderID)
	s.Equal(types.OrderStatusPending, order.Status)
	s.Equal(2, order.VolumeLeft)
}

func (s *BinanceGatewayTestSuite) TestInsertOrderOpenIsNotReduceOnly() {
	s.client.createOrderService.response = &futures.CreateOrderResponse{OrderID: 1, Status: futures.OrderStatusTypeNew}

	req := s.request()
	req.Offset = types.OffsetOpen
	req.Direction = types.DirectionBuy

	_, err := s.gateway.InsertOrder(context.Background(), req)
	s.Require().NoError(err)
	s.False(s.client.createOrderService.reduceOnly)
	s.Equal(futures.SideTypeBuy, s.client.createOrderService.side)
}

func (s *BinanceGatewayTestSuite) TestInsertOrderRejected() {
	s.client.createOrderService.err = errors.New("margin is insufficient")

	order, err := s.gateway.InsertOrder(context.Background(), s.request())
	s.Error(err)
	s.True(argoerrors.IsGatewayError(err))
	s.True(argoerrors.HasCode(err, argoerrors.ErrCodeOrderRejected))
	s.Equal(types.OrderStatusRejected, order.Status)
	s.Equal("margin is insufficient", order.Message)
}

func (s *BinanceGatewayTestSuite) TestInsertOrderUnknownAccount() {
	req := s.request()
	req.AccountID = "other"

	_, err := s.gateway.InsertOrder(context.Background(), req)
	s.True(argoerrors.HasCode(err, argoerrors.ErrCodeUnknownAccount))
}

func (s *BinanceGatewayTestSuite) TestInsertOrderInvalidRequest() {
	req := s.request()
	req.Volume = 0

	_, err := s.gateway.InsertOrder(context.Background(), req)
	s.True(argoerrors.IsGatewayError(err))
}

// ============================================================================
// Orders and cancellation
// ============================================================================

func (s *BinanceGatewayTestSuite) TestOrdersAndCancel() {
	s.client.listOpenOrdersService.orders = []*futures.Order{
		{
			Symbol:           "BTCUSDT",
			OrderID:          12,
			Price:            "41000",
			OrigQuantity:     "0.005",
			ExecutedQuantity: "0.002",
			Status:           futures.OrderStatusTypePartiallyFilled,
			Side:             futures.SideTypeBuy,
			ReduceOnly:       true,
		},
	}

	orders, err := s.gateway.Orders(context.Background(), "main")
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal("12", orders[0].OrderID)
	s.Equal(5, orders[0].Volume)
	s.Equal(3, orders[0].VolumeLeft)
	s.Equal(types.OffsetClose, orders[0].Offset)
	s.Equal(types.DirectionBuy, orders[0].Direction)
	s.True(orders[0].IsAlive())

	s.Require().NoError(s.gateway.CancelOrder(context.Background(), "main", "12"))
	s.Equal("BTCUSDT", s.client.cancelOrderService.symbol)
	s.Equal(int64(12), s.client.cancelOrderService.orderID)
}

func (s *BinanceGatewayTestSuite) TestCancelUnknownOrder() {
	err := s.gateway.CancelOrder(context.Background(), "main", "404")
	s.True(argoerrors.HasCode(err, argoerrors.ErrCodeOrderNotFound))
}

func (s *BinanceGatewayTestSuite) TestCancelFailure() {
	s.client.createOrderService.response = &futures.CreateOrderResponse{OrderID: 5, Status: futures.OrderStatusTypeNew}
	_, err := s.gateway.InsertOrder(context.Background(), s.request())
	s.Require().NoError(err)

	s.client.cancelOrderService.err = errors.New("unknown order sent")
	err = s.gateway.CancelOrder(context.Background(), "main", "5")
	s.True(argoerrors.HasCode(err, argoerrors.ErrCodeCancelFailed))
}

func (s *BinanceGatewayTestSuite) TestOrdersError() {
	s.client.listOpenOrdersService.err = errors.New("timeout")

	_, err := s.gateway.Orders(context.Background(), "main")
	s.True(argoerrors.HasCode(err, argoerrors.ErrCodeAccountQueryFailed))
}

// ============================================================================
// Account and positions
// ============================================================================

func (s *BinanceGatewayTestSuite) TestPositions() {
	s.client.getAccountService.account = &futures.Account{
		Positions: []*futures.AccountPosition{
			{Symbol: "BTCUSDT", PositionAmt: "-0.004", EntryPrice: "40000", UnrealizedProfit: "-2.5"},
			{Symbol: "ETHUSDT", PositionAmt: "2", EntryPrice: "2000"},
			{Symbol: "SOLUSDT", PositionAmt: "0"},
		},
	}

	positions, err := s.gateway.Positions(context.Background(), "main")
	s.Require().NoError(err)
	s.Len(positions, 2)
	s.Equal(4, positions["BTCUSDT"].ShortHistory)
	s.Equal(-4, positions["BTCUSDT"].Net())
	s.Equal(40000.0, positions["BTCUSDT"].ShortAvgPrice)
	s.Equal(2, positions["ETHUSDT"].LongHistory)

	flat, err := s.gateway.Position(context.Background(), "main", "SOLUSDT")
	s.Require().NoError(err)
	s.Equal(0, flat.Net())
	s.Equal("SOLUSDT", flat.Symbol)
}

func (s *BinanceGatewayTestSuite) TestAccountInfo() {
	s.client.getAccountService.account = &futures.Account{
		TotalMarginBalance:          "1050.5",
		AvailableBalance:            "900",
		TotalPositionInitialMargin:  "100",
		TotalOpenOrderInitialMargin: "50.5",
		TotalUnrealizedProfit:       "50.5",
	}

	info, err := s.gateway.AccountInfo(context.Background(), "main")
	s.Require().NoError(err)
	s.Equal(1050.5, info.Balance)
	s.Equal(900.0, info.Available)
	s.Equal(100.0, info.Margin)
	s.Equal(50.5, info.FrozenMargin)
}

func (s *BinanceGatewayTestSuite) TestAuthenticate() {
	s.client.getAccountService.account = &futures.Account{}
	s.NoError(s.gateway.Authenticate(context.Background(), "main"))

	s.client.getAccountService.err = errors.New("API-key format invalid")
	err := s.gateway.Authenticate(context.Background(), "main")
	s.True(argoerrors.IsAuthError(err))
}

// ============================================================================
// Config
// ============================================================================

func (s *BinanceGatewayTestSuite) TestConfigValidate() {
	cfg := BinanceGatewayConfig{
		Accounts: []BinanceAccountConfig{{ApiKey: "key-123456789", SecretKey: "secret"}},
	}
	s.NoError(cfg.Validate())
	s.Equal("key-1234", cfg.Accounts[0].ID())

	cfg.Accounts = append(cfg.Accounts, BinanceAccountConfig{ApiKey: "key-123456789", SecretKey: "other"})
	s.True(argoerrors.HasCode(cfg.Validate(), argoerrors.ErrCodeInvalidAccountList))

	empty := BinanceGatewayConfig{}
	s.True(argoerrors.IsConfigError(empty.Validate()))

	badURL := BinanceGatewayConfig{
		Accounts: []BinanceAccountConfig{{ApiKey: "k", SecretKey: "s", BaseURL: "not a url"}},
	}
	s.Error(badURL.Validate())
}
