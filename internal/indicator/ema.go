package indicator

import (
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

// EMA indicator implements Exponential Moving Average calculation.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator with default configuration.
func NewEMA() Indicator {
	return &EMA{
		period: 20, // Default period
	}
}

// Name returns the name of the indicator.
func (e *EMA) Name() IndicatorType {
	return IndicatorTypeEMA
}

// Expected parameters: period (int).
func (e *EMA) Config(params ...any) error {
	period, err := parsePeriod(params...)
	if err != nil {
		return err
	}

	e.period = period

	return nil
}

func (e *EMA) Period() int {
	return e.period
}

// RawValue seeds with the SMA of the first period bars and smooths the rest.
func (e *EMA) RawValue(bars []types.Kline) (float64, error) {
	if len(bars) < e.period {
		return 0, errors.NewInsufficientDataErrorf(e.period, len(bars), symbolOf(bars),
			"insufficient bars for EMA(%d): got %d", e.period, len(bars))
	}

	return calculateExponentialMovingAverage(bars, e.period), nil
}

// where Multiplier = 2 / (Period + 1).
func calculateExponentialMovingAverage(data []types.Kline, period int) float64 {
	if len(data) == 0 {
		return 0
	}

	sma := calculateSimpleMovingAverage(data[:period])

	// Use alpha = 2/(span+1) to match pandas ewm implementation with adjust=False
	alpha := 2.0 / float64(period+1)

	ema := sma
	for i := period; i < len(data); i++ {
		ema = (data[i].Close * alpha) + (ema * (1 - alpha))
	}

	return ema
}
