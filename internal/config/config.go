// Package config loads and validates the run configuration file and turns
// it into engine, session, journal and monitor settings.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-futures/internal/engine"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/marketdata"
	"github.com/rxtech-lab/argo-futures/internal/reconcile"
	"github.com/rxtech-lab/argo-futures/internal/session"
	"github.com/rxtech-lab/argo-futures/internal/strategy"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/internal/version"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultBalance seeds paper and backtest accounts when balance is omitted.
const DefaultBalance = 10_000_000

// OrderConfig is the order policy of every reconciliation task.
type OrderConfig struct {
	Price          string `json:"price" yaml:"price" jsonschema:"title=Price Mode,enum=ACTIVE,enum=PASSIVE,default=ACTIVE"`
	OffsetPriority string `json:"offset_priority" yaml:"offset_priority" jsonschema:"title=Offset Priority,description=Offset groups (今 close today; 昨 close history; 开 open) separated by commas; defaults to 今昨 then 开"`
	// Zero leaves the order size unbounded.
	MinVolume int `json:"min_volume" yaml:"min_volume" jsonschema:"title=Min Volume,minimum=0" validate:"gte=0"`
	MaxVolume int `json:"max_volume" yaml:"max_volume" jsonschema:"title=Max Volume,minimum=0" validate:"gte=0"`
}

// EngineConfig tunes the engine loop.
type EngineConfig struct {
	MaxStrategyFailures *int `json:"max_strategy_failures,omitempty" yaml:"max_strategy_failures" jsonschema:"description=Consecutive failures before a strategy is disabled; 0 never disables,default=3" validate:"omitempty,gte=0"`
	Parallelism         int  `json:"parallelism" yaml:"parallelism" jsonschema:"description=Instruments evaluated concurrently,default=1" validate:"gte=0"`
}

// FeedConfig tunes market data retries.
type FeedConfig struct {
	MaxRetries int `json:"max_retries" yaml:"max_retries" jsonschema:"description=Retries of transient feed errors; negative disables,default=5"`
}

// JournalConfig enables the run journal.
type JournalConfig struct {
	Path string `json:"path" yaml:"path" jsonschema:"description=Folder of run journals; empty disables"`
}

// MonitorConfig enables the status HTTP server.
type MonitorConfig struct {
	Listen string `json:"listen" yaml:"listen" jsonschema:"description=Listen address of the status server; empty disables"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level       string `json:"level" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `json:"development" yaml:"development" jsonschema:"description=Human readable console logs"`
}

// Config is the run configuration file.
type Config struct {
	Version string       `json:"version" yaml:"version" jsonschema:"title=Config Version,description=Engine version the file is written for" validate:"required"`
	Mode    session.Mode `json:"mode" yaml:"mode" jsonschema:"title=Mode,enum=paper,enum=live,enum=exchange-sim,enum=backtest" validate:"required"`
	Balance float64      `json:"balance" yaml:"balance" jsonschema:"title=Balance,description=Seed capital of paper and backtest accounts" validate:"gte=0"`
	// Accounts are used by live and exchange-sim sessions.
	Accounts []session.AccountCredentials `json:"accounts" yaml:"accounts" jsonschema:"title=Accounts" validate:"dive"`
	// LotSizes converts one lot into contract quantity per symbol.
	LotSizes map[string]float64 `json:"lot_sizes,omitempty" yaml:"lot_sizes" jsonschema:"title=Lot Sizes"`

	Quotes []string   `json:"quotes" yaml:"quotes" jsonschema:"title=Quotes,description=Traded instruments; one strategy and one task per account each" validate:"dive,required"`
	Klines KlineSpecs `json:"klines" yaml:"klines"`
	Merge  bool       `json:"merge" yaml:"merge" jsonschema:"description=Merge all kline symbols into one series aligned on the first"`
	Ticks  TickSpecs  `json:"ticks" yaml:"ticks"`

	Strategy       string          `json:"strategy" yaml:"strategy" jsonschema:"title=Strategy,description=Registered strategy name"`
	StrategyParams strategy.Params `json:"strategy_params,omitempty" yaml:"strategy_params" jsonschema:"title=Strategy Params"`

	// BacktestRange is [start, end) as dates or RFC 3339 timestamps.
	BacktestRange []string `json:"backtest_range,omitempty" yaml:"backtest_range" jsonschema:"title=Backtest Range" validate:"omitempty,len=2"`
	BacktestData  string   `json:"backtest_data,omitempty" yaml:"backtest_data" jsonschema:"title=Backtest Data,description=Parquet file of bars"`

	Order   OrderConfig   `json:"order" yaml:"order"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Feed    FeedConfig    `json:"feed" yaml:"feed"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Monitor MonitorConfig `json:"monitor" yaml:"monitor"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// Load reads and validates a config file. YAML and JSON are both accepted.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
	}

	return Parse(data)
}

// Parse decodes and validates config data. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var config Config

	// JSON is read by the YAML decoder, which rejects tab indentation.
	// Compacting drops whitespace between tokens and leaves string values alone.
	if json.Valid(data) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, data); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
		}

		data = compact.Bytes()
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Balance == 0 && !c.Mode.IsVenue() {
		c.Balance = DefaultBalance
	}

	if c.Order.Price == "" {
		c.Order.Price = string(types.PriceTypeActive)
	}

	if c.Order.OffsetPriority == "" {
		c.Order.OffsetPriority = reconcile.DefaultOffsetPriority
	}

	if c.Engine.MaxStrategyFailures == nil {
		failures := engine.DefaultMaxStrategyFailures
		c.Engine.MaxStrategyFailures = &failures
	}

	if c.Engine.Parallelism == 0 {
		c.Engine.Parallelism = 1
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the config. Every error is a config error.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	if err := version.CheckConfigVersion(version.GetVersion(), c.Version); err != nil {
		return err
	}

	if _, err := session.GetModeInfo(c.Mode); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidMode, "invalid mode", err)
	}

	if err := c.validateAccounts(); err != nil {
		return err
	}

	if err := c.validateSeries(); err != nil {
		return err
	}

	if c.Strategy != "" && len(c.Quotes) == 0 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "strategy %s needs at least one instrument in quotes", c.Strategy)
	}

	if c.Mode == session.ModeBacktest && c.BacktestData == "" {
		return errors.New(errors.ErrCodeMissingParameter, "backtest mode needs backtest_data")
	}

	if _, _, err := c.backtestRange(); err != nil {
		return err
	}

	return c.OrderOptions().Validate()
}

func (c *Config) validateAccounts() error {
	if c.Mode.IsVenue() {
		if len(c.Accounts) == 0 {
			return errors.Newf(errors.ErrCodeInvalidAccountList, "%s mode needs at least one account", c.Mode)
		}

		seen := map[string]struct{}{}

		for _, account := range c.Accounts {
			if _, ok := seen[account.Account]; ok {
				return errors.Newf(errors.ErrCodeInvalidAccountList, "account %s is listed twice", account.Account)
			}

			seen[account.Account] = struct{}{}
		}

		return nil
	}

	if len(c.Accounts) > 0 {
		return errors.Newf(errors.ErrCodeInvalidAccountList, "%s mode builds its own account, accounts must be empty", c.Mode)
	}

	if c.Balance <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "%s mode needs a positive balance", c.Mode)
	}

	return nil
}

func (c *Config) validateSeries() error {
	seen := map[string]struct{}{}

	for _, symbol := range c.Quotes {
		if _, ok := seen[symbol]; ok {
			return errors.Newf(errors.ErrCodeInvalidParameter, "quote %s is listed twice", symbol)
		}

		seen[symbol] = struct{}{}
	}

	for _, kline := range c.Klines {
		if kline.Symbol == "" || kline.Seconds <= 0 || kline.Length <= 0 {
			return errors.Newf(errors.ErrCodeInvalidParameter, "klines of %q need a positive duration and length", kline.Symbol)
		}
	}

	for _, tick := range c.Ticks {
		if tick.Symbol == "" || tick.Length <= 0 {
			return errors.Newf(errors.ErrCodeInvalidParameter, "ticks of %q need a positive length", tick.Symbol)
		}
	}

	return nil
}

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}

	return time.Parse(time.RFC3339, value)
}

func (c *Config) backtestRange() (optional.Option[time.Time], optional.Option[time.Time], error) {
	start, end := optional.None[time.Time](), optional.None[time.Time]()

	if len(c.BacktestRange) == 0 {
		return start, end, nil
	}

	for i, value := range c.BacktestRange {
		if strings.TrimSpace(value) == "" {
			continue
		}

		t, err := parseTime(value)
		if err != nil {
			return start, end, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "invalid backtest_range bound %q", value)
		}

		if i == 0 {
			start = optional.Some(t)
		} else {
			end = optional.Some(t)
		}
	}

	if start.IsSome() && end.IsSome() && !end.Unwrap().After(start.Unwrap()) {
		return start, end, errors.New(errors.ErrCodeInvalidParameter, "backtest_range end must be after its start")
	}

	return start, end, nil
}

// OrderOptions returns the reconciliation order policy.
func (c *Config) OrderOptions() reconcile.Options {
	options := reconcile.Options{
		Price:          types.PriceType(c.Order.Price),
		OffsetPriority: c.Order.OffsetPriority,
		MinVolume:      optional.None[int](),
		MaxVolume:      optional.None[int](),
	}

	if c.Order.MinVolume > 0 {
		options.MinVolume = optional.Some(c.Order.MinVolume)
	}

	if c.Order.MaxVolume > 0 {
		options.MaxVolume = optional.Some(c.Order.MaxVolume)
	}

	return options
}

// EngineConfig returns the engine settings.
func (c *Config) EngineConfig() engine.Config {
	config := engine.DefaultConfig()
	config.Quotes = append([]string{}, c.Quotes...)
	config.MergeKlines = c.Merge
	config.Strategy = c.Strategy
	config.StrategyParams = c.StrategyParams
	config.Order = c.OrderOptions()
	config.Parallelism = c.Engine.Parallelism

	if c.Engine.MaxStrategyFailures != nil {
		config.MaxStrategyFailures = *c.Engine.MaxStrategyFailures
	}

	for _, kline := range c.Klines {
		config.Klines = append(config.Klines, engine.KlineSubscription{
			Symbol:   kline.Symbol,
			Duration: kline.Duration(),
			Length:   kline.Length,
		})
	}

	for _, tick := range c.Ticks {
		config.Ticks = append(config.Ticks, engine.TickSubscription{Symbol: tick.Symbol, Length: tick.Length})
	}

	return config
}

// Credentials returns the session settings.
func (c *Config) Credentials(log *logger.Logger) session.Credentials {
	start, end, _ := c.backtestRange()

	return session.Credentials{
		Mode:     c.Mode,
		Balance:  c.Balance,
		Accounts: append([]session.AccountCredentials{}, c.Accounts...),
		LotSizes: c.LotSizes,
		Replay: marketdata.ReplayConfig{
			Path:  c.BacktestData,
			Start: start,
			End:   end,
		},
		Feed: marketdata.HubOptions{
			MaxRetries: c.Feed.MaxRetries,
			Logger:     log,
		},
		Logger: log,
	}
}

// LoggerOptions returns the logger settings.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{Level: c.Log.Level, Development: c.Log.Development}
}

// Symbols returns every subscribed symbol once, quotes first.
func (c *Config) Symbols() []string {
	symbols := []string{}
	seen := map[string]struct{}{}

	add := func(symbol string) {
		if _, ok := seen[symbol]; !ok {
			seen[symbol] = struct{}{}
			symbols = append(symbols, symbol)
		}
	}

	for _, symbol := range c.Quotes {
		add(symbol)
	}

	for _, kline := range c.Klines {
		add(kline.Symbol)
	}

	for _, tick := range c.Ticks {
		add(tick.Symbol)
	}

	return symbols
}

// Schema returns the JSON schema of the config file.
func Schema() (string, error) {
	return strategy.ToJSONSchema(&Config{})
}
