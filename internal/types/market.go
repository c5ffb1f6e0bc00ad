package types

import (
	"fmt"
	"time"
)

// Observable is anything the change detector can watch. Values returned by
// FieldValue must be comparable; timestamps are exposed as Unix nanoseconds.
type Observable interface {
	// ObservableID is stable for the lifetime of the observed object.
	ObservableID() string
	// FieldNames lists every field, used when no fields are named explicitly.
	FieldNames() []string
	FieldValue(name string) (any, bool)
}

type field[T any] struct {
	name string
	get  func(*T) any
}

func fieldNames[T any](fields []field[T]) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}

	return names
}

func fieldValue[T any](fields []field[T], v *T, name string) (any, bool) {
	for _, f := range fields {
		if f.name == name {
			return f.get(v), true
		}
	}

	return nil, false
}

func unixNano(t time.Time) any {
	if t.IsZero() {
		return int64(0)
	}

	return t.UnixNano()
}

// Quote is the latest level-1 market state of one instrument.
type Quote struct {
	Symbol       string    `json:"symbol" yaml:"symbol"`
	Datetime     time.Time `json:"datetime" yaml:"datetime"`
	LastPrice    float64   `json:"last_price" yaml:"last_price"`
	AskPrice1    float64   `json:"ask_price1" yaml:"ask_price1"`
	AskVolume1   float64   `json:"ask_volume1" yaml:"ask_volume1"`
	BidPrice1    float64   `json:"bid_price1" yaml:"bid_price1"`
	BidVolume1   float64   `json:"bid_volume1" yaml:"bid_volume1"`
	Highest      float64   `json:"highest" yaml:"highest"`
	Lowest       float64   `json:"lowest" yaml:"lowest"`
	Open         float64   `json:"open" yaml:"open"`
	Close        float64   `json:"close" yaml:"close"`
	Average      float64   `json:"average" yaml:"average"`
	Volume       float64   `json:"volume" yaml:"volume"`
	Amount       float64   `json:"amount" yaml:"amount"`
	OpenInterest float64   `json:"open_interest" yaml:"open_interest"`
	PriceTick    float64   `json:"price_tick" yaml:"price_tick"`
}

var quoteFields = []field[Quote]{
	{"datetime", func(q *Quote) any { return unixNano(q.Datetime) }},
	{"last_price", func(q *Quote) any { return q.LastPrice }},
	{"ask_price1", func(q *Quote) any { return q.AskPrice1 }},
	{"ask_volume1", func(q *Quote) any { return q.AskVolume1 }},
	{"bid_price1", func(q *Quote) any { return q.BidPrice1 }},
	{"bid_volume1", func(q *Quote) any { return q.BidVolume1 }},
	{"highest", func(q *Quote) any { return q.Highest }},
	{"lowest", func(q *Quote) any { return q.Lowest }},
	{"open", func(q *Quote) any { return q.Open }},
	{"close", func(q *Quote) any { return q.Close }},
	{"average", func(q *Quote) any { return q.Average }},
	{"volume", func(q *Quote) any { return q.Volume }},
	{"amount", func(q *Quote) any { return q.Amount }},
	{"open_interest", func(q *Quote) any { return q.OpenInterest }},
	{"price_tick", func(q *Quote) any { return q.PriceTick }},
}

func (q *Quote) ObservableID() string { return "quote:" + q.Symbol }

func (q *Quote) FieldNames() []string { return fieldNames(quoteFields) }

func (q *Quote) FieldValue(name string) (any, bool) { return fieldValue(quoteFields, q, name) }

// Kline is one OHLC bar.
type Kline struct {
	Symbol       string        `json:"symbol" yaml:"symbol"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	Datetime     time.Time     `json:"datetime" yaml:"datetime"`
	Open         float64       `json:"open" yaml:"open"`
	High         float64       `json:"high" yaml:"high"`
	Low          float64       `json:"low" yaml:"low"`
	Close        float64       `json:"close" yaml:"close"`
	Volume       float64       `json:"volume" yaml:"volume"`
	OpenInterest float64       `json:"open_interest" yaml:"open_interest"`
}

var klineFields = []field[Kline]{
	{"datetime", func(k *Kline) any { return unixNano(k.Datetime) }},
	{"open", func(k *Kline) any { return k.Open }},
	{"high", func(k *Kline) any { return k.High }},
	{"low", func(k *Kline) any { return k.Low }},
	{"close", func(k *Kline) any { return k.Close }},
	{"volume", func(k *Kline) any { return k.Volume }},
	{"open_interest", func(k *Kline) any { return k.OpenInterest }},
}

// ObservableID identifies the latest bar slot of a series, so that watching
// {datetime} fires once per new bar.
func (k *Kline) ObservableID() string {
	return fmt.Sprintf("kline:%s:%s", k.Symbol, k.Duration)
}

func (k *Kline) FieldNames() []string { return fieldNames(klineFields) }

func (k *Kline) FieldValue(name string) (any, bool) { return fieldValue(klineFields, k, name) }

// Tick is one trade print with the book top at that moment.
type Tick struct {
	Symbol       string    `json:"symbol" yaml:"symbol"`
	Datetime     time.Time `json:"datetime" yaml:"datetime"`
	LastPrice    float64   `json:"last_price" yaml:"last_price"`
	AskPrice1    float64   `json:"ask_price1" yaml:"ask_price1"`
	AskVolume1   float64   `json:"ask_volume1" yaml:"ask_volume1"`
	BidPrice1    float64   `json:"bid_price1" yaml:"bid_price1"`
	BidVolume1   float64   `json:"bid_volume1" yaml:"bid_volume1"`
	Volume       float64   `json:"volume" yaml:"volume"`
	Amount       float64   `json:"amount" yaml:"amount"`
	OpenInterest float64   `json:"open_interest" yaml:"open_interest"`
}

var tickFields = []field[Tick]{
	{"datetime", func(t *Tick) any { return unixNano(t.Datetime) }},
	{"last_price", func(t *Tick) any { return t.LastPrice }},
	{"ask_price1", func(t *Tick) any { return t.AskPrice1 }},
	{"ask_volume1", func(t *Tick) any { return t.AskVolume1 }},
	{"bid_price1", func(t *Tick) any { return t.BidPrice1 }},
	{"bid_volume1", func(t *Tick) any { return t.BidVolume1 }},
	{"volume", func(t *Tick) any { return t.Volume }},
	{"amount", func(t *Tick) any { return t.Amount }},
	{"open_interest", func(t *Tick) any { return t.OpenInterest }},
}

func (t *Tick) ObservableID() string { return "tick:" + t.Symbol }

func (t *Tick) FieldNames() []string { return fieldNames(tickFields) }

func (t *Tick) FieldValue(name string) (any, bool) { return fieldValue(tickFields, t, name) }

// KlineSeries is a fixed-length window of bars. A merged subscription keeps
// the secondary symbols as legs aligned on the primary symbol's bar clock.
type KlineSeries struct {
	Symbol   string
	Duration time.Duration
	bars     *Ring[Kline]
	legs     map[string]*KlineSeries
	order    []string
}

// NewKlineSeries creates an empty series retaining at most length bars.
func NewKlineSeries(symbol string, duration time.Duration, length int) *KlineSeries {
	return &KlineSeries{
		Symbol:   symbol,
		Duration: duration,
		bars:     NewRing[Kline](length),
		legs:     map[string]*KlineSeries{},
	}
}

// Upsert appends a new bar or updates the bar still forming. Bars older than
// the latest one are dropped. It reports whether the series changed.
func (s *KlineSeries) Upsert(k Kline) bool {
	k.Symbol = s.Symbol
	k.Duration = s.Duration

	last, ok := s.bars.Last()
	switch {
	case !ok || k.Datetime.After(last.Datetime):
		s.bars.Push(k)
	case k.Datetime.Equal(last.Datetime):
		if last == k {
			return false
		}

		s.bars.ReplaceLast(k)
	default:
		return false
	}

	return true
}

// Len returns the number of retained bars.
func (s *KlineSeries) Len() int { return s.bars.Len() }

// Cap returns the configured series length.
func (s *KlineSeries) Cap() int { return s.bars.Cap() }

// At returns the i-th oldest bar.
func (s *KlineSeries) At(i int) Kline { return s.bars.At(i) }

// Latest returns the newest bar, which may still be forming.
func (s *KlineSeries) Latest() (*Kline, bool) {
	k, ok := s.bars.Last()
	if !ok {
		return nil, false
	}

	return &k, true
}

// Bars copies the retained bars, oldest first.
func (s *KlineSeries) Bars() []Kline { return s.bars.Values() }

// AddLeg attaches a secondary symbol to a merged series.
func (s *KlineSeries) AddLeg(symbol string) *KlineSeries {
	if leg, ok := s.legs[symbol]; ok {
		return leg
	}

	leg := NewKlineSeries(symbol, s.Duration, s.bars.Cap())
	s.legs[symbol] = leg
	s.order = append(s.order, symbol)

	return leg
}

// Leg returns the secondary series for symbol.
func (s *KlineSeries) Leg(symbol string) (*KlineSeries, bool) {
	leg, ok := s.legs[symbol]

	return leg, ok
}

// LegSymbols lists the secondary symbols in subscription order.
func (s *KlineSeries) LegSymbols() []string {
	return append([]string(nil), s.order...)
}

// TickSeries is a fixed-length window of ticks.
type TickSeries struct {
	Symbol string
	ticks  *Ring[Tick]
}

// NewTickSeries creates an empty series retaining at most length ticks.
func NewTickSeries(symbol string, length int) *TickSeries {
	return &TickSeries{Symbol: symbol, ticks: NewRing[Tick](length)}
}

// Append adds a tick. Ticks are never merged.
func (s *TickSeries) Append(t Tick) {
	t.Symbol = s.Symbol
	s.ticks.Push(t)
}

func (s *TickSeries) Len() int { return s.ticks.Len() }

func (s *TickSeries) At(i int) Tick { return s.ticks.At(i) }

// Latest returns the newest tick.
func (s *TickSeries) Latest() (*Tick, bool) {
	t, ok := s.ticks.Last()
	if !ok {
		return nil, false
	}

	return &t, true
}

// Ticks copies the retained ticks, oldest first.
func (s *TickSeries) Ticks() []Tick { return s.ticks.Values() }

// Snapshot holds every subscribed view of one instrument. It is owned by the
// market data feed and only mutated while the feed is applying updates;
// readers compare Revision values to learn whether anything moved.
type Snapshot struct {
	Symbol   string
	Quote    *Quote
	Klines   *KlineSeries
	Ticks    *TickSeries
	revision uint64
}

// NewSnapshot creates an empty snapshot for symbol.
func NewSnapshot(symbol string) *Snapshot {
	return &Snapshot{Symbol: symbol}
}

// Revision increases every time the snapshot is modified.
func (s *Snapshot) Revision() uint64 { return s.revision }

// Bump records a modification and returns the new revision.
func (s *Snapshot) Bump() uint64 {
	s.revision++

	return s.revision
}

// BestQuote returns the quote, or one synthesized from the latest tick or bar
// when no quote is subscribed.
func (s *Snapshot) BestQuote() (Quote, bool) {
	if s.Quote != nil && s.Quote.LastPrice > 0 {
		return *s.Quote, true
	}

	if s.Ticks != nil {
		if tick, ok := s.Ticks.Latest(); ok {
			return Quote{
				Symbol:     s.Symbol,
				Datetime:   tick.Datetime,
				LastPrice:  tick.LastPrice,
				AskPrice1:  tick.AskPrice1,
				AskVolume1: tick.AskVolume1,
				BidPrice1:  tick.BidPrice1,
				BidVolume1: tick.BidVolume1,
			}, true
		}
	}

	if s.Klines != nil {
		if bar, ok := s.Klines.Latest(); ok {
			return Quote{
				Symbol:    s.Symbol,
				Datetime:  bar.Datetime,
				LastPrice: bar.Close,
			}, true
		}
	}

	if s.Quote != nil {
		return *s.Quote, true
	}

	return Quote{}, false
}
