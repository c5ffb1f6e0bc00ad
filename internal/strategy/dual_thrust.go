package strategy

import (
	"math"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"go.uber.org/zap"
)

const DualThrustName = "dual_thrust"

// DualThrustConfig holds the Dual Thrust parameters.
type DualThrustConfig struct {
	N      int     `yaml:"n" json:"n" jsonschema:"title=N,description=Number of bars preceding the current bar used for the range,minimum=1,default=5" validate:"gte=1"`
	K1     float64 `yaml:"k1" json:"k1" jsonschema:"title=K1,description=Upper band coefficient,default=0.2" validate:"gt=0"`
	K2     float64 `yaml:"k2" json:"k2" jsonschema:"title=K2,description=Lower band coefficient,default=0.2" validate:"gt=0"`
	Volume int     `yaml:"volume" json:"volume" jsonschema:"title=Volume,description=Lots held on a breakout,minimum=1,default=3" validate:"gte=1"`
}

// DefaultDualThrustConfig returns N=5, K1=K2=0.2 and 3 lots.
func DefaultDualThrustConfig() DualThrustConfig {
	return DualThrustConfig{N: 5, K1: 0.2, K2: 0.2, Volume: 3}
}

// DualThrust goes long when the last price breaks above open + K1*range and
// short when it breaks below open - K2*range, where range is
// max(HH-LC, HC-LL) over the N bars before the current bar.
type DualThrust struct {
	Base
	config DualThrustConfig

	ready bool
	buy   float64
	sell  float64
}

// NewDualThrust is the registry factory of DualThrust.
func NewDualThrust(params Params) (Strategy, error) {
	config := DefaultDualThrustConfig()
	if err := params.Decode(&config); err != nil {
		return nil, err
	}

	return NewDualThrustWithConfig(config), nil
}

// NewDualThrustWithConfig creates a DualThrust without going through params.
func NewDualThrustWithConfig(config DualThrustConfig) *DualThrust {
	return &DualThrust{config: config}
}

func (d *DualThrust) Name() string {
	return DualThrustName
}

func (d *DualThrust) Init(ctx MarketContext) error {
	d.Bind(ctx)

	if d.Klines() == nil {
		return errors.Newf(errors.ErrCodeStrategyMissingSeries, "%s needs a kline subscription for %s", DualThrustName, ctx.Symbol)
	}

	if d.Quote() == nil {
		return errors.Newf(errors.ErrCodeStrategyMissingSeries, "%s needs a quote subscription for %s", DualThrustName, ctx.Symbol)
	}

	if d.Klines().Cap() < d.config.N+1 {
		return errors.Newf(errors.ErrCodeStrategyMissingSeries,
			"%s needs at least %d bars, kline length is %d", DualThrustName, d.config.N+1, d.Klines().Cap())
	}

	return nil
}

// Levels returns the current breakout levels once they have been computed.
func (d *DualThrust) Levels() (buy, sell float64, ok bool) {
	return d.buy, d.sell, d.ready
}

// computeLevels recalculates the bands from the latest bar's open.
func (d *DualThrust) computeLevels() error {
	klines := d.Klines()
	n := d.config.N

	if klines.Len() < n+1 {
		d.ready = false

		return errors.NewInsufficientDataErrorf(n+1, klines.Len(), d.ctx.Symbol,
			"%s needs %d bars, got %d", DualThrustName, n+1, klines.Len())
	}

	current := klines.At(klines.Len() - 1)
	hh, hc := math.Inf(-1), math.Inf(-1)
	lc, ll := math.Inf(1), math.Inf(1)

	for i := klines.Len() - 1 - n; i < klines.Len()-1; i++ {
		bar := klines.At(i)
		hh = math.Max(hh, bar.High)
		hc = math.Max(hc, bar.Close)
		lc = math.Min(lc, bar.Close)
		ll = math.Min(ll, bar.Low)
	}

	rng := math.Max(hh-lc, hc-ll)
	d.buy = current.Open + d.config.K1*rng
	d.sell = current.Open - d.config.K2*rng
	d.ready = true

	d.Logger().Debug("Dual thrust levels updated",
		zap.String("symbol", d.ctx.Symbol),
		zap.Float64("range", rng),
		zap.Float64("buy", d.buy),
		zap.Float64("sell", d.sell),
	)

	return nil
}

func (d *DualThrust) Execution() (optional.Option[int], error) {
	klines := d.Klines()
	quote := d.Quote()

	if klines == nil || quote == nil {
		return optional.None[int](), errors.Newf(errors.ErrCodeStrategyMissingSeries, "%s has no market data for %s", DualThrustName, d.ctx.Symbol)
	}

	latest, ok := klines.Latest()
	if !ok {
		return optional.None[int](), errors.NewInsufficientDataErrorf(d.config.N+1, 0, d.ctx.Symbol, "%s has no bars yet", DualThrustName)
	}

	if d.Changed(latest, "datetime", "open") || !d.ready {
		if err := d.computeLevels(); err != nil {
			return optional.None[int](), err
		}
	}

	// no trade has printed yet
	if quote.LastPrice <= 0 || math.IsNaN(quote.LastPrice) {
		return optional.None[int](), nil
	}

	if !d.Changed(quote, "last_price") {
		return optional.None[int](), nil
	}

	switch {
	case quote.LastPrice > d.buy:
		return optional.Some(d.config.Volume), nil
	case quote.LastPrice < d.sell:
		return optional.Some(-d.config.Volume), nil
	default:
		return optional.Some(0), nil
	}
}
