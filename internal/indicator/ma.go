package indicator

import (
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

// MA indicator implements Simple Moving Average calculation over bar closes.
type MA struct {
	period int
}

// NewMA creates a new MA indicator with default configuration.
func NewMA() Indicator {
	return &MA{
		period: 20, // Default period
	}
}

// Name returns the name of the indicator.
func (m *MA) Name() IndicatorType {
	return IndicatorTypeMA
}

// Expected parameters: period (int).
func (m *MA) Config(params ...any) error {
	period, err := parsePeriod(params...)
	if err != nil {
		return err
	}

	m.period = period

	return nil
}

func (m *MA) Period() int {
	return m.period
}

// RawValue averages the closes of the last period bars.
func (m *MA) RawValue(bars []types.Kline) (float64, error) {
	if len(bars) < m.period {
		return 0, errors.NewInsufficientDataErrorf(m.period, len(bars), symbolOf(bars),
			"insufficient bars for SMA(%d): got %d", m.period, len(bars))
	}

	return calculateSimpleMovingAverage(bars[len(bars)-m.period:]), nil
}

// calculateSimpleMovingAverage calculates a simple moving average from the given bars.
func calculateSimpleMovingAverage(data []types.Kline) float64 {
	sum := 0.0
	for _, d := range data {
		sum += d.Close
	}

	return sum / float64(len(data))
}

func symbolOf(bars []types.Kline) string {
	if len(bars) == 0 {
		return ""
	}

	return bars[len(bars)-1].Symbol
}
