package strategy

import (
	"github.com/rxtech-lab/argo-futures/internal/detector"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/types"
)

// Base is embedded by strategies for access to their instrument's snapshot
// and a change detector private to the instance.
type Base struct {
	ctx      MarketContext
	detector *detector.Detector
}

// Bind stores the market context. Strategies call it from Init.
func (b *Base) Bind(ctx MarketContext) {
	b.ctx = ctx
	b.detector = detector.New()

	if b.ctx.Logger == nil {
		b.ctx.Logger = logger.NewNop()
	}
}

// Context returns the bound market context.
func (b *Base) Context() MarketContext {
	return b.ctx
}

// Logger returns the strategy logger.
func (b *Base) Logger() *logger.Logger {
	if b.ctx.Logger == nil {
		return logger.NewNop()
	}

	return b.ctx.Logger
}

// Changed is the "is changing" query of the strategy. See detector.Detector.Changed.
func (b *Base) Changed(obj types.Observable, fields ...string) bool {
	if b.detector == nil {
		b.detector = detector.New()
	}

	return b.detector.Changed(obj, fields...)
}

// Quote returns the quote of the bound instrument, nil if not subscribed.
func (b *Base) Quote() *types.Quote {
	if b.ctx.Snapshot == nil {
		return nil
	}

	return b.ctx.Snapshot.Quote
}

// Klines returns the bar series of the bound instrument, nil if not subscribed.
func (b *Base) Klines() *types.KlineSeries {
	if b.ctx.Snapshot == nil {
		return nil
	}

	return b.ctx.Snapshot.Klines
}

// Ticks returns the tick series of the bound instrument, nil if not subscribed.
func (b *Base) Ticks() *types.TickSeries {
	if b.ctx.Snapshot == nil {
		return nil
	}

	return b.ctx.Snapshot.Ticks
}
