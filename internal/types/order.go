package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

type Direction string

type Offset string

type OrderStatus string

type PriceType string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

const (
	// OffsetOpen opens a new position.
	OffsetOpen Offset = "OPEN"
	// OffsetClose closes a position carried over from a previous session.
	OffsetClose Offset = "CLOSE"
	// OffsetCloseToday closes a position opened during the current session.
	OffsetCloseToday Offset = "CLOSETODAY"
)

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

const (
	// PriceTypeActive crosses the spread: buy at ask1, sell at bid1.
	PriceTypeActive PriceType = "ACTIVE"
	// PriceTypePassive joins the book: buy at bid1, sell at ask1.
	PriceTypePassive PriceType = "PASSIVE"
)

// Sign returns +1 for buys and -1 for sells.
func (d Direction) Sign() int {
	if d == DirectionSell {
		return -1
	}

	return 1
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}

	return DirectionBuy
}

// InsertOrderRequest is what a reconciliation task submits to the order gateway.
type InsertOrderRequest struct {
	AccountID  string    `yaml:"account_id" json:"account_id" validate:"required"`
	Symbol     string    `yaml:"symbol" json:"symbol" validate:"required"`
	Direction  Direction `yaml:"direction" json:"direction" validate:"required,oneof=BUY SELL"`
	Offset     Offset    `yaml:"offset" json:"offset" validate:"required,oneof=OPEN CLOSE CLOSETODAY"`
	Volume     int       `yaml:"volume" json:"volume" validate:"required,gt=0"`
	LimitPrice float64   `yaml:"limit_price" json:"limit_price" validate:"required,gt=0"`
	// Tag links the order back to the task that created it
	Tag string `yaml:"tag" json:"tag"`
}

// Order is the broker's view of a submitted order.
type Order struct {
	OrderID    string      `yaml:"order_id" json:"order_id"`
	AccountID  string      `yaml:"account_id" json:"account_id"`
	Symbol     string      `yaml:"symbol" json:"symbol"`
	Direction  Direction   `yaml:"direction" json:"direction"`
	Offset     Offset      `yaml:"offset" json:"offset"`
	Volume     int         `yaml:"volume" json:"volume"`
	VolumeLeft int         `yaml:"volume_left" json:"volume_left"`
	LimitPrice float64     `yaml:"limit_price" json:"limit_price"`
	Status     OrderStatus `yaml:"status" json:"status"`
	// Message carries the broker's rejection reason, if any
	Message    string    `yaml:"message" json:"message"`
	Tag        string    `yaml:"tag" json:"tag"`
	InsertedAt time.Time `yaml:"inserted_at" json:"inserted_at"`
}

// IsAlive reports whether the order can still trade.
func (o *Order) IsAlive() bool {
	return o.Status == OrderStatusPending
}

// FilledVolume is the number of lots already traded.
func (o *Order) FilledVolume() int {
	return o.Volume - o.VolumeLeft
}

// PendingSigned is the untraded remainder with the sign of the order direction.
func (o *Order) PendingSigned() int {
	if !o.IsAlive() {
		return 0
	}

	return o.Direction.Sign() * o.VolumeLeft
}

// Validate validates the InsertOrderRequest struct.
func (r *InsertOrderRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid order request", err)
	}

	return nil
}
