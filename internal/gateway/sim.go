package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SimConfig configures the simulated exchange.
type SimConfig struct {
	// InitialBalance is the starting cash of every simulated account.
	InitialBalance decimal.Decimal
	// CommissionRate is charged on traded notional.
	CommissionRate decimal.Decimal
	// MarginRate is the share of notional held as margin.
	MarginRate decimal.Decimal
	// Multiplier converts one lot into units of the underlying.
	Multiplier decimal.Decimal
	// Currency is reported in AccountInfo.
	Currency string
}

// DefaultSimConfig returns a config with the given seed balance and typical futures fees.
func DefaultSimConfig(balance float64) SimConfig {
	return SimConfig{
		InitialBalance: decimal.NewFromFloat(balance),
		CommissionRate: decimal.NewFromFloat(0.0004),
		MarginRate:     decimal.NewFromFloat(0.1),
		Multiplier:     decimal.NewFromInt(1),
		Currency:       "USDT",
	}
}

type simPosition struct {
	longToday    int
	longHistory  int
	shortToday   int
	shortHistory int
	// sum of entry price * lots of the open legs
	longCost  decimal.Decimal
	shortCost decimal.Decimal
}

func (p *simPosition) long() int  { return p.longToday + p.longHistory }
func (p *simPosition) short() int { return p.shortToday + p.shortHistory }

func (p *simPosition) avgLong() decimal.Decimal {
	if p.long() == 0 {
		return decimal.Zero
	}

	return p.longCost.Div(decimal.NewFromInt(int64(p.long())))
}

func (p *simPosition) avgShort() decimal.Decimal {
	if p.short() == 0 {
		return decimal.Zero
	}

	return p.shortCost.Div(decimal.NewFromInt(int64(p.short())))
}

type simAccount struct {
	id          string
	static      decimal.Decimal
	closeProfit decimal.Decimal
	commission  decimal.Decimal
	positions   map[string]*simPosition
	orders      map[string]*types.Order
	sequence    []string
}

func (a *simAccount) position(symbol string) *simPosition {
	pos, ok := a.positions[symbol]
	if !ok {
		pos = &simPosition{}
		a.positions[symbol] = pos
	}

	return pos
}

// SimGateway is an in-process exchange that fills limit orders against the
// latest quote. Orders fill in full once the book crosses their price.
type SimGateway struct {
	mu       sync.Mutex
	config   SimConfig
	accounts map[string]*simAccount
	quotes   map[string]types.Quote
	logger   *logger.Logger
}

// NewSimGateway creates a simulated gateway holding the given accounts.
func NewSimGateway(accountIDs []string, config SimConfig, log *logger.Logger) *SimGateway {
	if config.Multiplier.IsZero() {
		config.Multiplier = decimal.NewFromInt(1)
	}

	if log == nil {
		log = logger.NewNop()
	}

	accounts := make(map[string]*simAccount, len(accountIDs))
	for _, id := range accountIDs {
		accounts[id] = &simAccount{
			id:          id,
			static:      config.InitialBalance,
			closeProfit: decimal.Zero,
			commission:  decimal.Zero,
			positions:   map[string]*simPosition{},
			orders:      map[string]*types.Order{},
		}
	}

	return &SimGateway{
		config:   config,
		accounts: accounts,
		quotes:   map[string]types.Quote{},
		logger:   log.Named("sim-gateway"),
	}
}

// Verify SimGateway implements Gateway and SnapshotListener.
var (
	_ Gateway          = (*SimGateway)(nil)
	_ SnapshotListener = (*SimGateway)(nil)
)

// OnSnapshot records the latest price of the snapshot and matches resting orders.
func (g *SimGateway) OnSnapshot(snapshot *types.Snapshot) {
	if snapshot == nil {
		return
	}

	quote, ok := snapshot.BestQuote()
	if !ok || quote.LastPrice <= 0 {
		return
	}

	g.OnQuote(quote)
}

// OnQuote records a quote and matches resting orders of its symbol.
func (g *SimGateway) OnQuote(quote types.Quote) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.quotes[quote.Symbol] = quote

	for _, account := range g.accounts {
		for _, id := range account.sequence {
			order := account.orders[id]
			if order.IsAlive() && order.Symbol == quote.Symbol {
				g.match(account, order, quote)
			}
		}
	}
}

// fillPrice returns the price an order trades at against quote, if it trades.
func fillPrice(order *types.Order, quote types.Quote) (float64, bool) {
	if order.Direction == types.DirectionBuy {
		ask := quote.AskPrice1
		if ask <= 0 {
			ask = quote.LastPrice
		}

		if ask > 0 && order.LimitPrice >= ask {
			return ask, true
		}

		return 0, false
	}

	bid := quote.BidPrice1
	if bid <= 0 {
		bid = quote.LastPrice
	}

	if bid > 0 && order.LimitPrice <= bid {
		return bid, true
	}

	return 0, false
}

func (g *SimGateway) match(account *simAccount, order *types.Order, quote types.Quote) {
	price, ok := fillPrice(order, quote)
	if !ok {
		return
	}

	lots := order.VolumeLeft
	px := decimal.NewFromFloat(price)
	qty := decimal.NewFromInt(int64(lots))
	notional := px.Mul(qty).Mul(g.config.Multiplier)
	pos := account.position(order.Symbol)

	switch order.Offset {
	case types.OffsetOpen:
		if order.Direction == types.DirectionBuy {
			pos.longToday += lots
			pos.longCost = pos.longCost.Add(px.Mul(qty))
		} else {
			pos.shortToday += lots
			pos.shortCost = pos.shortCost.Add(px.Mul(qty))
		}
	default:
		if order.Direction == types.DirectionSell {
			avg := pos.avgLong()
			takeLots(&pos.longToday, &pos.longHistory, lots, order.Offset)
			pos.longCost = pos.longCost.Sub(avg.Mul(qty))
			account.closeProfit = account.closeProfit.Add(px.Sub(avg).Mul(qty).Mul(g.config.Multiplier))
		} else {
			avg := pos.avgShort()
			takeLots(&pos.shortToday, &pos.shortHistory, lots, order.Offset)
			pos.shortCost = pos.shortCost.Sub(avg.Mul(qty))
			account.closeProfit = account.closeProfit.Add(avg.Sub(px).Mul(qty).Mul(g.config.Multiplier))
		}
	}

	account.commission = account.commission.Add(notional.Mul(g.config.CommissionRate))
	order.VolumeLeft = 0
	order.Status = types.OrderStatusFilled

	g.logger.Debug("Order filled",
		zap.String("account", account.id),
		zap.String("order_id", order.OrderID),
		zap.String("symbol", order.Symbol),
		zap.String("direction", string(order.Direction)),
		zap.String("offset", string(order.Offset)),
		zap.Int("volume", lots),
		zap.Float64("price", price),
	)
}

// takeLots removes lots from the leg the offset names. CLOSE drains history
// first, then today.
func takeLots(today, history *int, lots int, offset types.Offset) {
	if offset == types.OffsetCloseToday {
		*today -= lots

		return
	}

	fromHistory := min(lots, *history)
	*history -= fromHistory
	*today -= lots - fromHistory
}

// closable returns the lots available to close on the leg targeted by req,
// net of alive close orders on the same leg.
func closable(account *simAccount, req types.InsertOrderRequest) int {
	pos := account.position(req.Symbol)

	var available int

	switch {
	case req.Direction == types.DirectionSell && req.Offset == types.OffsetCloseToday:
		available = pos.longToday
	case req.Direction == types.DirectionSell:
		available = pos.long()
	case req.Offset == types.OffsetCloseToday:
		available = pos.shortToday
	default:
		available = pos.short()
	}

	for _, order := range account.orders {
		if order.IsAlive() && order.Symbol == req.Symbol && order.Offset != types.OffsetOpen &&
			order.Direction == req.Direction {
			available -= order.VolumeLeft
		}
	}

	return available
}

// InsertOrder validates and books an order, filling it immediately when the
// latest quote already crosses its price.
func (g *SimGateway) InsertOrder(_ context.Context, req types.InsertOrderRequest) (types.Order, error) {
	if err := req.Validate(); err != nil {
		return types.Order{}, errors.Wrap(errors.ErrCodeOrderFailed, "invalid order request", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	account, ok := g.accounts[req.AccountID]
	if !ok {
		return types.Order{}, errors.Newf(errors.ErrCodeUnknownAccount, "unknown account: %s", req.AccountID)
	}

	quote := g.quotes[req.Symbol]

	insertedAt := quote.Datetime
	if insertedAt.IsZero() {
		insertedAt = time.Now()
	}

	order := &types.Order{
		OrderID:    uuid.NewString(),
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		Offset:     req.Offset,
		Volume:     req.Volume,
		VolumeLeft: req.Volume,
		LimitPrice: req.LimitPrice,
		Status:     types.OrderStatusPending,
		Tag:        req.Tag,
		InsertedAt: insertedAt,
	}

	account.orders[order.OrderID] = order
	account.sequence = append(account.sequence, order.OrderID)

	if reason := g.rejectReason(account, req); reason != "" {
		order.Status = types.OrderStatusRejected
		order.VolumeLeft = 0
		order.Message = reason

		g.logger.Warn("Order rejected",
			zap.String("account", account.id),
			zap.String("symbol", req.Symbol),
			zap.String("reason", reason),
		)

		return *order, errors.Newf(errors.ErrCodeOrderRejected, "order rejected: %s", reason)
	}

	if quote.Symbol != "" {
		g.match(account, order, quote)
	}

	return *order, nil
}

func (g *SimGateway) rejectReason(account *simAccount, req types.InsertOrderRequest) string {
	if req.Offset != types.OffsetOpen {
		if closable(account, req) < req.Volume {
			return "insufficient position to close"
		}

		return ""
	}

	required := decimal.NewFromFloat(req.LimitPrice).
		Mul(decimal.NewFromInt(int64(req.Volume))).
		Mul(g.config.Multiplier).
		Mul(g.config.MarginRate.Add(g.config.CommissionRate))

	if g.available(account).LessThan(required) {
		return "insufficient available funds"
	}

	return ""
}

// CancelOrder cancels an alive order. Cancelling a finished order is a no-op.
func (g *SimGateway) CancelOrder(_ context.Context, accountID, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	account, ok := g.accounts[accountID]
	if !ok {
		return errors.Newf(errors.ErrCodeUnknownAccount, "unknown account: %s", accountID)
	}

	order, ok := account.orders[orderID]
	if !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "order not found: %s", orderID)
	}

	if order.IsAlive() {
		order.Status = types.OrderStatusCancelled
	}

	return nil
}

// Orders returns alive orders in insertion order.
func (g *SimGateway) Orders(_ context.Context, accountID string) ([]types.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	account, ok := g.accounts[accountID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownAccount, "unknown account: %s", accountID)
	}

	orders := make([]types.Order, 0)

	for _, id := range account.sequence {
		if order := account.orders[id]; order.IsAlive() {
			orders = append(orders, *order)
		}
	}

	return orders, nil
}

// Position returns the position of one symbol valued at the latest price.
func (g *SimGateway) Position(_ context.Context, accountID, symbol string) (types.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	account, ok := g.accounts[accountID]
	if !ok {
		return types.Position{}, errors.Newf(errors.ErrCodeUnknownAccount, "unknown account: %s", accountID)
	}

	pos, ok := account.positions[symbol]
	if !ok {
		return types.Position{AccountID: accountID, Symbol: symbol}, nil
	}

	return g.project(accountID, symbol, pos), nil
}

// Positions returns every non-flat position of the account.
func (g *SimGateway) Positions(_ context.Context, accountID string) (map[string]types.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	account, ok := g.accounts[accountID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownAccount, "unknown account: %s", accountID)
	}

	positions := make(map[string]types.Position, len(account.positions))

	for symbol, pos := range account.positions {
		if pos.long() == 0 && pos.short() == 0 {
			continue
		}

		positions[symbol] = g.project(accountID, symbol, pos)
	}

	return positions, nil
}

func (g *SimGateway) project(accountID, symbol string, pos *simPosition) types.Position {
	return types.Position{
		AccountID:     accountID,
		Symbol:        symbol,
		LongToday:     pos.longToday,
		LongHistory:   pos.longHistory,
		ShortToday:    pos.shortToday,
		ShortHistory:  pos.shortHistory,
		LongAvgPrice:  pos.avgLong().InexactFloat64(),
		ShortAvgPrice: pos.avgShort().InexactFloat64(),
		FloatProfit:   g.floatProfit(symbol, pos).InexactFloat64(),
	}
}

func (g *SimGateway) lastPrice(symbol string) (decimal.Decimal, bool) {
	quote, ok := g.quotes[symbol]
	if !ok || quote.LastPrice <= 0 {
		return decimal.Zero, false
	}

	return decimal.NewFromFloat(quote.LastPrice), true
}

func (g *SimGateway) floatProfit(symbol string, pos *simPosition) decimal.Decimal {
	last, ok := g.lastPrice(symbol)
	if !ok {
		return decimal.Zero
	}

	long := last.Sub(pos.avgLong()).Mul(decimal.NewFromInt(int64(pos.long())))
	short := pos.avgShort().Sub(last).Mul(decimal.NewFromInt(int64(pos.short())))

	return long.Add(short).Mul(g.config.Multiplier)
}

func (g *SimGateway) margin(account *simAccount) decimal.Decimal {
	total := decimal.Zero

	for symbol, pos := range account.positions {
		last, ok := g.lastPrice(symbol)
		if !ok {
			last = pos.avgLong().Add(pos.avgShort())
		}

		lots := decimal.NewFromInt(int64(pos.long() + pos.short()))
		total = total.Add(last.Mul(lots).Mul(g.config.Multiplier).Mul(g.config.MarginRate))
	}

	return total
}

func (g *SimGateway) frozenMargin(account *simAccount) decimal.Decimal {
	total := decimal.Zero

	for _, order := range account.orders {
		if !order.IsAlive() || order.Offset != types.OffsetOpen {
			continue
		}

		total = total.Add(decimal.NewFromFloat(order.LimitPrice).
			Mul(decimal.NewFromInt(int64(order.VolumeLeft))).
			Mul(g.config.Multiplier).
			Mul(g.config.MarginRate))
	}

	return total
}

func (g *SimGateway) balance(account *simAccount) decimal.Decimal {
	balance := account.static.Add(account.closeProfit).Sub(account.commission)
	for symbol, pos := range account.positions {
		balance = balance.Add(g.floatProfit(symbol, pos))
	}

	return balance
}

func (g *SimGateway) available(account *simAccount) decimal.Decimal {
	return g.balance(account).Sub(g.margin(account)).Sub(g.frozenMargin(account))
}

// AccountInfo returns the valued state of a simulated account.
func (g *SimGateway) AccountInfo(_ context.Context, accountID string) (types.AccountInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	account, ok := g.accounts[accountID]
	if !ok {
		return types.AccountInfo{}, errors.Newf(errors.ErrCodeUnknownAccount, "unknown account: %s", accountID)
	}

	floatProfit := decimal.Zero
	for symbol, pos := range account.positions {
		floatProfit = floatProfit.Add(g.floatProfit(symbol, pos))
	}

	return types.AccountInfo{
		AccountID:    accountID,
		Currency:     g.config.Currency,
		Balance:      g.balance(account).InexactFloat64(),
		Available:    g.available(account).InexactFloat64(),
		Margin:       g.margin(account).InexactFloat64(),
		FrozenMargin: g.frozenMargin(account).InexactFloat64(),
		FloatProfit:  floatProfit.InexactFloat64(),
		CloseProfit:  account.closeProfit.InexactFloat64(),
		Commission:   account.commission.InexactFloat64(),
	}, nil
}

// AccountIDs lists the simulated accounts in sorted order.
func (g *SimGateway) AccountIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.accounts))
	for id := range g.accounts {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
