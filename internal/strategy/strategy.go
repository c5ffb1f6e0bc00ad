// Package strategy defines the contract between the engine loop and trading
// logic, the named registry strategies are selected from, and the built-in
// strategies.
package strategy

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-futures/internal/gateway"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/types"
)

// Strategy is bound to a single instrument for its whole life. The engine
// calls Init once during setup and Execution once per snapshot revision
// change of its instrument.
type Strategy interface {
	// Name returns the registry name of the strategy.
	Name() string
	// Init receives the market context. It must not place orders.
	Init(ctx MarketContext) error
	// Execution returns the desired signed net position of the instrument.
	// optional.None means no decision; optional.Some(0) means flatten.
	Execution() (optional.Option[int], error)
}

// MarketContext is everything a strategy may read. Broker is read-only: a
// strategy expresses intent only through the value returned by Execution.
type MarketContext struct {
	Symbol   string
	Snapshot *types.Snapshot
	Accounts []types.Account
	Broker   gateway.Broker
	Logger   *logger.Logger
}
