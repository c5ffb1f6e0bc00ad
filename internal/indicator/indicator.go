package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

// IndicatorType names a registered indicator.
type IndicatorType string

const (
	IndicatorTypeMA  IndicatorType = "sma"
	IndicatorTypeEMA IndicatorType = "ema"
)

// Indicator interface defines methods that any technical indicator must implement
type Indicator interface {
	// Name returns the name of the indicator
	Name() IndicatorType
	// Config sets indicator parameters
	Config(params ...any) error
	// Period returns the number of bars the indicator needs
	Period() int
	// RawValue computes the indicator over bars ordered oldest first.
	// The last bar is the most recent one.
	RawValue(bars []types.Kline) (float64, error)
}

// parsePeriod accepts an int or a float64 holding a whole number, as decoded from YAML or JSON.
func parsePeriod(params ...any) (int, error) {
	if len(params) != 1 {
		return 0, errors.New(errors.ErrCodeInvalidParameter, "Config expects 1 parameter: period (int)")
	}

	var period int

	switch p := params[0].(type) {
	case int:
		period = p
	case float64:
		if p != math.Trunc(p) {
			return 0, errors.Newf(errors.ErrCodeInvalidParameter, "period must be a whole number, got %v", p)
		}

		period = int(p)
	default:
		return 0, errors.New(errors.ErrCodeInvalidParameter, "invalid type for period parameter, expected int or float")
	}

	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "period must be a positive integer, got %d", period)
	}

	return period, nil
}
