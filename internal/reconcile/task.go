// Package reconcile turns target positions into orders. A Task owns one
// (account, symbol) pair and drives the broker position towards the latest
// target it was given.
package reconcile

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-futures/internal/gateway"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"go.uber.org/zap"
)

// Observer receives everything a task does. The run journal implements it.
type Observer interface {
	OnTarget(accountID, symbol string, target int)
	OnOrder(order types.Order, err error)
	OnCancel(accountID, orderID string, err error)
}

type nopObserver struct{}

func (nopObserver) OnTarget(string, string, int)   {}
func (nopObserver) OnOrder(types.Order, error)     {}
func (nopObserver) OnCancel(string, string, error) {}

// SnapshotSource resolves the market snapshot used for pricing orders.
type SnapshotSource interface {
	Snapshot(symbol string) (*types.Snapshot, bool)
}

type leg struct {
	offset types.Offset
	volume int
}

// Task reconciles the position of one symbol in one account.
type Task struct {
	mu        sync.Mutex
	accountID string
	symbol    string
	gateway   gateway.Gateway
	snapshots SnapshotSource
	policy    policy
	observer  Observer
	logger    *logger.Logger

	target optional.Option[int]
	// ids of orders this task submitted that were alive at the last look
	working map[string]struct{}
	// ids with a cancel request in flight
	cancelling map[string]struct{}
	// set by a rejection, cleared by the next Converge
	blocked bool
}

func newTask(accountID, symbol string, gw gateway.Gateway, snapshots SnapshotSource, p policy, observer Observer, log *logger.Logger) *Task {
	return &Task{
		accountID:  accountID,
		symbol:     symbol,
		gateway:    gw,
		snapshots:  snapshots,
		policy:     p,
		observer:   observer,
		logger:     log.With(zap.String("account", accountID), zap.String("symbol", symbol)),
		target:     optional.None[int](),
		working:    map[string]struct{}{},
		cancelling: map[string]struct{}{},
	}
}

// AccountID returns the account the task trades in.
func (t *Task) AccountID() string { return t.accountID }

// Symbol returns the instrument the task trades.
func (t *Task) Symbol() string { return t.symbol }

// Target returns the latest target, or None if Converge was never called.
func (t *Task) Target() optional.Option[int] {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.target
}

// Converge records target as the standing instruction and performs the next
// step towards it. Calling it again with the same target never submits the
// same delta twice.
func (t *Task) Converge(ctx context.Context, target int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.target.IsNone() || t.target.Unwrap() != target {
		t.logger.Info("Target position changed", zap.Int("target", target))
	}

	t.target = optional.Some(target)
	t.blocked = false
	t.observer.OnTarget(t.accountID, t.symbol, target)

	return t.step(ctx)
}

// Advance continues work towards the standing target, such as submitting the
// next offset group once the previous one finished. It does nothing before
// the first Converge or after a rejection.
func (t *Task) Advance(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.target.IsNone() || t.blocked {
		return nil
	}

	return t.step(ctx)
}

func (t *Task) step(ctx context.Context) error {
	target := t.target.Unwrap()

	alive, err := t.refreshWorking(ctx)
	if err != nil {
		return err
	}

	position, err := t.gateway.Position(ctx, t.accountID, t.symbol)
	if err != nil {
		return errors.Ensure(errors.ErrCodeAccountQueryFailed, "failed to read position", err)
	}

	pending := pendingOf(alive)

	// a fill landing between the two reads would count as pending and as held
	if len(alive) > 0 {
		again, err := t.refreshWorking(ctx)
		if err != nil {
			return err
		}

		if pendingOf(again) != pending {
			t.logger.Debug("Orders traded while reading the position, waiting for the next step")

			return nil
		}

		alive = again
	}

	delta := target - position.Net() - pending
	if delta == 0 {
		return nil
	}

	direction := types.DirectionBuy
	if delta < 0 {
		direction = types.DirectionSell
	}

	if opposite := filterDirection(alive, direction.Opposite()); len(opposite) > 0 {
		return t.cancel(ctx, opposite)
	}

	// previous group still working
	if len(alive) > 0 {
		return nil
	}

	legs := t.plan(abs(delta), direction, position)
	if len(legs) == 0 {
		t.logger.Warn("Target cannot be reached with the configured offset priority",
			zap.Int("target", target),
			zap.Int("net", position.Net()),
			zap.String("offset_priority", t.policy.priority.String()),
		)

		return nil
	}

	price, err := t.limitPrice(direction)
	if err != nil {
		return err
	}

	for _, l := range legs {
		for _, volume := range chunk(l.volume, t.policy.maxVolume) {
			if err := t.insert(ctx, direction, l.offset, volume, price); err != nil {
				return err
			}
		}
	}

	return nil
}

// refreshWorking drops finished orders from the working set and returns the alive ones.
func (t *Task) refreshWorking(ctx context.Context) ([]types.Order, error) {
	if len(t.working) == 0 {
		return nil, nil
	}

	orders, err := t.gateway.Orders(ctx, t.accountID)
	if err != nil {
		return nil, errors.Ensure(errors.ErrCodeAccountQueryFailed, "failed to read orders", err)
	}

	alive := []types.Order{}
	still := map[string]struct{}{}

	for _, order := range orders {
		if _, ok := t.working[order.OrderID]; ok && order.IsAlive() {
			alive = append(alive, order)
			still[order.OrderID] = struct{}{}
		}
	}

	for id := range t.cancelling {
		if _, ok := still[id]; !ok {
			delete(t.cancelling, id)
		}
	}

	t.working = still

	return alive, nil
}

func (t *Task) cancel(ctx context.Context, orders []types.Order) error {
	for _, order := range orders {
		if _, ok := t.cancelling[order.OrderID]; ok {
			continue
		}

		err := t.gateway.CancelOrder(ctx, t.accountID, order.OrderID)
		t.observer.OnCancel(t.accountID, order.OrderID, err)

		if err != nil {
			return errors.Ensure(errors.ErrCodeCancelFailed, fmt.Sprintf("failed to cancel order %s", order.OrderID), err)
		}

		t.cancelling[order.OrderID] = struct{}{}

		t.logger.Info("Cancelling opposing order",
			zap.String("order_id", order.OrderID),
			zap.String("direction", string(order.Direction)),
			zap.Int("volume_left", order.VolumeLeft),
		)
	}

	return nil
}

// plan splits volume over the first offset group that can take any of it.
func (t *Task) plan(volume int, direction types.Direction, position types.Position) []leg {
	today, history := position.ShortToday, position.ShortHistory
	if direction == types.DirectionSell {
		today, history = position.LongToday, position.LongHistory
	}

	for _, group := range t.policy.priority {
		legs := []leg{}
		remaining := volume

		for _, l := range group {
			var take int

			var offset types.Offset

			switch l {
			case LegToday:
				take, offset = min(remaining, today), types.OffsetCloseToday
			case LegHistory:
				take, offset = min(remaining, history), types.OffsetClose
			case LegOpen:
				take, offset = remaining, types.OffsetOpen
			}

			if take > 0 {
				legs = append(legs, leg{offset: offset, volume: take})
				remaining -= take
			}
		}

		if len(legs) > 0 {
			return legs
		}
	}

	return nil
}

func (t *Task) limitPrice(direction types.Direction) (float64, error) {
	var quote types.Quote

	ok := false
	if snapshot, found := t.snapshots.Snapshot(t.symbol); found && snapshot != nil {
		quote, ok = snapshot.BestQuote()
	}

	if !ok {
		return 0, errors.Newf(errors.ErrCodeMarketDataMissing, "no market data for %s", t.symbol)
	}

	var price float64

	switch {
	case direction == types.DirectionBuy && t.policy.price == types.PriceTypeActive:
		price = quote.AskPrice1
	case direction == types.DirectionBuy:
		price = quote.BidPrice1
	case t.policy.price == types.PriceTypeActive:
		price = quote.BidPrice1
	default:
		price = quote.AskPrice1
	}

	if !valid(price) {
		price = quote.LastPrice
	}

	if !valid(price) {
		return 0, errors.Newf(errors.ErrCodeMarketDataMissing, "no usable price for %s", t.symbol)
	}

	return price, nil
}

func (t *Task) insert(ctx context.Context, direction types.Direction, offset types.Offset, volume int, price float64) error {
	req := types.InsertOrderRequest{
		AccountID:  t.accountID,
		Symbol:     t.symbol,
		Direction:  direction,
		Offset:     offset,
		Volume:     volume,
		LimitPrice: price,
		Tag:        t.Tag(),
	}

	order, err := t.gateway.InsertOrder(ctx, req)
	t.observer.OnOrder(order, err)

	if err != nil {
		t.blocked = true

		t.logger.Error("Order rejected",
			zap.String("direction", string(direction)),
			zap.String("offset", string(offset)),
			zap.Int("volume", volume),
			zap.Float64("price", price),
			zap.Error(err),
		)

		return errors.Ensure(errors.ErrCodeOrderFailed, "failed to insert order", err)
	}

	t.logger.Info("Order submitted",
		zap.String("order_id", order.OrderID),
		zap.String("direction", string(direction)),
		zap.String("offset", string(offset)),
		zap.Int("volume", volume),
		zap.Float64("price", price),
	)

	if order.IsAlive() {
		t.working[order.OrderID] = struct{}{}
	}

	return nil
}

// Tag identifies the orders of this task.
func (t *Task) Tag() string {
	return fmt.Sprintf("%s/%s", t.accountID, t.symbol)
}

func pendingOf(orders []types.Order) int {
	pending := 0
	for _, order := range orders {
		pending += order.PendingSigned()
	}

	return pending
}

func filterDirection(orders []types.Order, direction types.Direction) []types.Order {
	out := []types.Order{}

	for _, order := range orders {
		if order.Direction == direction {
			out = append(out, order)
		}
	}

	return out
}

func valid(price float64) bool {
	return price > 0 && !math.IsNaN(price) && !math.IsInf(price, 0)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
