// Package engine runs the trading loop: it authenticates a session,
// subscribes market data, binds one strategy per instrument and turns every
// strategy decision into reconciliation work.
package engine

import (
	"time"

	"github.com/rxtech-lab/argo-futures/internal/reconcile"
	"github.com/rxtech-lab/argo-futures/internal/strategy"
	"github.com/rxtech-lab/argo-futures/internal/types"
)

// Lifecycle callback types. Callbacks with an error return abort the run when they fail.

// OnStateChangeCallback is called on every state transition.
type OnStateChangeCallback func(state types.EngineState)

// OnIterationCallback is called after each handled feed wake-up.
type OnIterationCallback func(iteration int) error

// OnDecisionCallback is called when a strategy returns a target.
type OnDecisionCallback func(symbol string, target int)

// OnStrategyErrorCallback is called when a strategy execution fails. Warm-up
// failures (insufficient data) are not reported.
type OnStrategyErrorCallback func(strategyName, symbol string, err error)

// OnErrorCallback is called when a non-fatal error occurs, e.g. a gateway rejection.
type OnErrorCallback func(err error)

// OnEngineStopCallback is called when Run returns.
type OnEngineStopCallback func(err error)

// Callbacks holds the lifecycle callbacks. Nil fields are not invoked.
type Callbacks struct {
	OnStateChange   *OnStateChangeCallback
	OnIteration     *OnIterationCallback
	OnDecision      *OnDecisionCallback
	OnStrategyError *OnStrategyErrorCallback
	OnError         *OnErrorCallback
	OnEngineStop    *OnEngineStopCallback
}

// DefaultMaxStrategyFailures disables a strategy after three consecutive failures.
const DefaultMaxStrategyFailures = 3

// KlineSubscription requests a bar series.
type KlineSubscription struct {
	Symbol   string
	Duration time.Duration
	Length   int
}

// TickSubscription requests a tick series.
type TickSubscription struct {
	Symbol string
	Length int
}

// Config is the engine part of the run configuration. Slices keep configuration order.
type Config struct {
	Quotes []string
	Klines []KlineSubscription
	// MergeKlines subscribes all kline symbols as one series aligned on the first symbol.
	MergeKlines bool
	Ticks       []TickSubscription

	Strategy       string
	StrategyParams strategy.Params

	Order reconcile.Options

	// MaxStrategyFailures is the number of consecutive failures after which a
	// strategy is disabled. Zero never disables.
	MaxStrategyFailures int
	// Parallelism above one evaluates strategies of different instruments concurrently.
	Parallelism int
}

// DefaultConfig returns a config with the default order policy and failure limit.
func DefaultConfig() Config {
	return Config{
		Order:               reconcile.DefaultOptions(),
		MaxStrategyFailures: DefaultMaxStrategyFailures,
		Parallelism:         1,
	}
}

// HasSubscriptions reports whether at least one subscription category is configured.
func (c Config) HasSubscriptions() bool {
	return len(c.Quotes) > 0 || len(c.Klines) > 0 || len(c.Ticks) > 0
}
