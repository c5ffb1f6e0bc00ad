package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-futures/internal/types"
)

// DataGenerator generates futures bars for tests.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how market data is generated.
type GeneratorConfig struct {
	// Symbol is the contract symbol (e.g., "BTCUSDT")
	Symbol string
	// StartTime is the beginning of the data series
	StartTime time.Time
	// Interval is the duration between each bar
	Interval time.Duration
	// Count is the number of data points to generate
	Count int
	// InitialPrice is the starting price
	InitialPrice float64
	// Volatility controls price movement (0.01 = 1% typical daily volatility)
	Volatility float64
	// Trend is the drift factor (-0.01 to 0.01 for bearish to bullish)
	Trend float64
	// VolumeBase is the average volume per bar
	VolumeBase float64
	// VolumeVariance is the variance in volume (0.0 to 1.0)
	VolumeVariance float64
	// OpenInterestBase is the open interest of the first bar. Zero leaves it unset.
	OpenInterestBase float64
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:           "BTCUSDT",
		StartTime:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Interval:         time.Minute,
		Count:            1000,
		InitialPrice:     42000.0,
		Volatility:       0.002, // 0.2% per bar
		Trend:            0.0,   // neutral
		VolumeBase:       250,
		VolumeVariance:   0.3,
		OpenInterestBase: 80000,
	}
}

// Generate creates bars following a geometric Brownian motion.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Kline {
	data := make([]types.Kline, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime
	openInterest := config.OpenInterestBase

	for i := 0; i < config.Count; i++ {
		// Generate OHLCV using geometric Brownian motion
		open := currentPrice

		// Generate intra-bar price movements
		// Using Box-Muller transform for normal distribution
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		// Price change with trend and volatility
		priceChange := config.Volatility * z
		drift := config.Trend / float64(config.Count) // Distribute trend across bars

		close := open * (1 + priceChange + drift)
		if close <= 0 {
			close = open * 0.99 // Prevent negative prices
		}

		// High and low are within the open-close range plus some extension
		highExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)
		lowExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)

		high := math.Max(open, close) + highExtension
		low := math.Min(open, close) - lowExtension
		if low <= 0 {
			low = math.Min(open, close) * 0.99
		}

		// Volume with variance
		volumeVariation := 1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance
		volume := config.VolumeBase * volumeVariation
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		if openInterest > 0 {
			openInterest = math.Max(1, openInterest+(g.rng.Float64()*2-1)*volume*0.1)
		}

		data[i] = types.Kline{
			Symbol:       config.Symbol,
			Duration:     config.Interval,
			Datetime:     currentTime,
			Open:         roundToDecimals(open, 4),
			High:         roundToDecimals(high, 4),
			Low:          roundToDecimals(low, 4),
			Close:        roundToDecimals(close, 4),
			Volume:       roundToDecimals(volume, 2),
			OpenInterest: math.Round(openInterest),
		}

		// Update for next iteration
		currentPrice = close
		currentTime = currentTime.Add(config.Interval)
	}

	return data
}

// GenerateMultiSymbol generates bars for every symbol on the same clock.
func (g *DataGenerator) GenerateMultiSymbol(symbols []string, baseConfig GeneratorConfig) map[string][]types.Kline {
	all := make(map[string][]types.Kline, len(symbols))

	for _, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		// Vary initial price and volatility slightly per symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		all[symbol] = g.Generate(config)
	}

	return all
}

// Series loads bars into a new kline series holding at most length bars.
func Series(bars []types.Kline, length int) *types.KlineSeries {
	if len(bars) == 0 {
		return nil
	}

	series := types.NewKlineSeries(bars[0].Symbol, bars[0].Duration, length)
	for _, bar := range bars {
		series.Upsert(bar)
	}

	return series
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(val*pow) / pow
}
