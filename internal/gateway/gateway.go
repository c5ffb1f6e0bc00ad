// Package gateway routes orders to a brokerage and exposes the broker's view
// of accounts, positions and orders.
package gateway

import (
	"context"

	"github.com/rxtech-lab/argo-futures/internal/types"
)

// Broker is the read-only part of a gateway. Strategies receive a Broker so
// that they can inspect account state without being able to trade.
type Broker interface {
	// AccountInfo returns balances and margin of an account.
	AccountInfo(ctx context.Context, accountID string) (types.AccountInfo, error)
	// Positions returns every non-empty position of an account keyed by symbol.
	Positions(ctx context.Context, accountID string) (map[string]types.Position, error)
	// Position returns the position of one instrument. A flat position is not an error.
	Position(ctx context.Context, accountID, symbol string) (types.Position, error)
	// Orders returns the orders of an account that are still alive.
	Orders(ctx context.Context, accountID string) ([]types.Order, error)
}

// Gateway submits and cancels orders.
type Gateway interface {
	Broker
	// InsertOrder submits an order. A rejected order is returned together
	// with a gateway error so callers can record it.
	InsertOrder(ctx context.Context, req types.InsertOrderRequest) (types.Order, error)
	// CancelOrder requests cancellation of an alive order.
	CancelOrder(ctx context.Context, accountID, orderID string) error
}

// SnapshotListener is notified after the market data feed applied updates to a snapshot.
// The simulated gateway uses it to match resting orders.
type SnapshotListener interface {
	OnSnapshot(snapshot *types.Snapshot)
}
