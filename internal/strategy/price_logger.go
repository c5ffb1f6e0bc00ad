package strategy

import (
	"github.com/moznion/go-optional"
	"go.uber.org/zap"
)

const PriceLoggerName = "price_logger"

// PriceLoggerConfig selects what the price logger reports.
type PriceLoggerConfig struct {
	LogBars  bool `yaml:"log_bars" json:"log_bars" jsonschema:"title=Log Bars,description=Log every new or updated bar,default=true"`
	LogTicks bool `yaml:"log_ticks" json:"log_ticks" jsonschema:"title=Log Ticks,description=Log every new tick,default=false"`
}

// PriceLogger logs last price and bar changes. It never makes a decision,
// which makes it useful for checking subscriptions end to end.
type PriceLogger struct {
	Base
	config PriceLoggerConfig
}

// NewPriceLogger is the registry factory of PriceLogger.
func NewPriceLogger(params Params) (Strategy, error) {
	config := PriceLoggerConfig{LogBars: true}
	if err := params.Decode(&config); err != nil {
		return nil, err
	}

	return &PriceLogger{config: config}, nil
}

func (p *PriceLogger) Name() string {
	return PriceLoggerName
}

func (p *PriceLogger) Init(ctx MarketContext) error {
	p.Bind(ctx)

	for _, account := range ctx.Accounts {
		p.Logger().Info("Price logger attached",
			zap.String("symbol", ctx.Symbol),
			zap.String("account", account.ID),
			zap.String("capability", string(account.Capability)),
		)
	}

	return nil
}

func (p *PriceLogger) Execution() (optional.Option[int], error) {
	if quote := p.Quote(); quote != nil && p.Changed(quote, "last_price") {
		p.Logger().Info("Last price changed",
			zap.String("symbol", quote.Symbol),
			zap.Float64("last_price", quote.LastPrice),
			zap.Time("datetime", quote.Datetime),
		)
	}

	if klines := p.Klines(); p.config.LogBars && klines != nil {
		if bar, ok := klines.Latest(); ok && p.Changed(bar) {
			p.Logger().Info("Bar changed",
				zap.String("symbol", bar.Symbol),
				zap.Time("datetime", bar.Datetime),
				zap.Float64("open", bar.Open),
				zap.Float64("high", bar.High),
				zap.Float64("low", bar.Low),
				zap.Float64("close", bar.Close),
			)
		}
	}

	if ticks := p.Ticks(); p.config.LogTicks && ticks != nil {
		if tick, ok := ticks.Latest(); ok && p.Changed(tick, "datetime") {
			p.Logger().Info("New tick",
				zap.String("symbol", tick.Symbol),
				zap.Float64("last_price", tick.LastPrice),
			)
		}
	}

	return optional.None[int](), nil
}
