package strategy

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-futures/internal/indicator"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"go.uber.org/zap"
)

const MACrossName = "ma_cross"

// MACrossConfig holds the moving average crossover parameters.
type MACrossConfig struct {
	Fast   int    `yaml:"fast" json:"fast" jsonschema:"title=Fast Period,description=The period for the fast moving average,minimum=1,default=5" validate:"gte=1"`
	Slow   int    `yaml:"slow" json:"slow" jsonschema:"title=Slow Period,description=The period for the slow moving average,minimum=2,default=20" validate:"gtfield=Fast"`
	Type   string `yaml:"type" json:"type" jsonschema:"title=Average Type,enum=sma,enum=ema,default=sma" validate:"oneof=sma ema"`
	Volume int    `yaml:"volume" json:"volume" jsonschema:"title=Volume,description=Lots held in the trend direction,minimum=1,default=1" validate:"gte=1"`
}

// MACross holds +volume while the fast average is above the slow one and
// -volume while it is below. Only closed bars are used, so decisions are
// made once per new bar.
type MACross struct {
	Base
	config MACrossConfig
	fast   indicator.Indicator
	slow   indicator.Indicator
}

// NewMACross is the registry factory of MACross.
func NewMACross(params Params) (Strategy, error) {
	config := MACrossConfig{Fast: 5, Slow: 20, Type: string(indicator.IndicatorTypeMA), Volume: 1}
	if err := params.Decode(&config); err != nil {
		return nil, err
	}

	registry := indicator.DefaultRegistry()

	fast, err := registry.NewIndicator(indicator.IndicatorType(config.Type), config.Fast)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid fast average", err)
	}

	slow, err := registry.NewIndicator(indicator.IndicatorType(config.Type), config.Slow)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid slow average", err)
	}

	return &MACross{config: config, fast: fast, slow: slow}, nil
}

func (m *MACross) Name() string {
	return MACrossName
}

func (m *MACross) Init(ctx MarketContext) error {
	m.Bind(ctx)

	if m.Klines() == nil {
		return errors.Newf(errors.ErrCodeStrategyMissingSeries, "%s needs a kline subscription for %s", MACrossName, ctx.Symbol)
	}

	return nil
}

func (m *MACross) Execution() (optional.Option[int], error) {
	klines := m.Klines()
	if klines == nil {
		return optional.None[int](), errors.Newf(errors.ErrCodeStrategyMissingSeries, "%s has no bars for %s", MACrossName, m.ctx.Symbol)
	}

	latest, ok := klines.Latest()
	if !ok || !m.Changed(latest, "datetime") {
		return optional.None[int](), nil
	}

	bars := klines.Bars()
	closed := bars[:len(bars)-1]

	fast, err := m.fast.RawValue(closed)
	if err != nil {
		return optional.None[int](), err
	}

	slow, err := m.slow.RawValue(closed)
	if err != nil {
		return optional.None[int](), err
	}

	m.Logger().Debug("Moving averages updated",
		zap.String("symbol", m.ctx.Symbol),
		zap.Float64("fast", fast),
		zap.Float64("slow", slow),
	)

	switch {
	case fast > slow:
		return optional.Some(m.config.Volume), nil
	case fast < slow:
		return optional.Some(-m.config.Volume), nil
	default:
		return optional.None[int](), nil
	}
}
