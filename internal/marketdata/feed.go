// Package marketdata turns subscriptions into live snapshots. Sources push
// updates from their own goroutines; the Hub applies them to snapshots only
// inside WaitForUpdate, on the caller's goroutine.
package marketdata

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-futures/internal/types"
)

// Feed is what the engine needs from market data.
type Feed interface {
	// SubscribeQuote starts level-1 quotes for the symbols.
	SubscribeQuote(ctx context.Context, symbols ...string) error
	// SubscribeKline starts a bar series of the given length. With more
	// than one symbol the series is merged: the first symbol owns the
	// snapshot and the others become legs aligned on its bar clock.
	SubscribeKline(ctx context.Context, symbols []string, duration time.Duration, length int) error
	// SubscribeTick starts a tick series of the given length.
	SubscribeTick(ctx context.Context, symbol string, length int) error
	// WaitForUpdate blocks until at least one snapshot changed. It returns
	// false once the feed is closed or ctx is done.
	WaitForUpdate(ctx context.Context) (bool, error)
	// Snapshot returns the snapshot of a subscribed symbol.
	Snapshot(symbol string) (*types.Snapshot, bool)
	Close() error
}

// UpdateKind tells which field of an Update is set.
type UpdateKind int

const (
	UpdateQuote UpdateKind = iota
	UpdateKline
	UpdateTick
	// UpdateFlush ends a batch. Replay sources emit it after every
	// timestamp so that one WaitForUpdate sees one point in time.
	UpdateFlush
)

// Update is one change produced by a source.
type Update struct {
	Kind  UpdateKind
	Quote types.Quote
	Kline types.Kline
	Tick  types.Tick
}

// KlineSubscription is one (symbol, bar duration) stream.
type KlineSubscription struct {
	Symbol   string
	Duration time.Duration
}

// Subscriptions lists what a source has to stream.
type Subscriptions struct {
	Quotes []string
	Klines []KlineSubscription
	Ticks  []string
}

// Emit hands an update to the hub. It returns false when the source must stop.
type Emit func(Update) bool

// Source produces updates for a Hub.
type Source interface {
	// Name is used in logs.
	Name() string
	// History returns up to length finished or forming bars used to fill a
	// new series. Sources without history return nil.
	History(ctx context.Context, symbol string, duration time.Duration, length int) ([]types.Kline, error)
	// Run streams updates until ctx is done or the source is exhausted, in
	// which case it returns nil. Errors carrying ErrCodeFeedTransient are
	// retried by the hub.
	Run(ctx context.Context, subscriptions Subscriptions, emit Emit) error
	Close() error
}
