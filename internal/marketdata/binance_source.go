package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"go.uber.org/zap"
)

// BinanceStreams is the subset of the futures websocket and REST API used by BinanceSource.
type BinanceStreams interface {
	WsKlineServe(symbol string, interval string, handler futures.WsKlineHandler, errHandler futures.ErrHandler) (doneC, stopC chan struct{}, err error)
	WsBookTickerServe(symbol string, handler futures.WsBookTickerHandler, errHandler futures.ErrHandler) (doneC, stopC chan struct{}, err error)
	WsAggTradeServe(symbol string, handler futures.WsAggTradeHandler, errHandler futures.ErrHandler) (doneC, stopC chan struct{}, err error)
	// Klines fetches bars over REST. Zero start or end times are left unset.
	Klines(ctx context.Context, symbol string, interval string, limit int, startTime, endTime int64) ([]*futures.Kline, error)
}

type realBinanceStreams struct {
	client *futures.Client
}

func (r *realBinanceStreams) WsKlineServe(symbol string, interval string, handler futures.WsKlineHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
	return futures.WsKlineServe(symbol, interval, handler, errHandler)
}

func (r *realBinanceStreams) WsBookTickerServe(symbol string, handler futures.WsBookTickerHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
	return futures.WsBookTickerServe(symbol, handler, errHandler)
}

func (r *realBinanceStreams) WsAggTradeServe(symbol string, handler futures.WsAggTradeHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
	return futures.WsAggTradeServe(symbol, handler, errHandler)
}

func (r *realBinanceStreams) Klines(ctx context.Context, symbol string, interval string, limit int, startTime, endTime int64) ([]*futures.Kline, error) {
	service := r.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
	if startTime > 0 {
		service = service.StartTime(startTime)
	}

	if endTime > 0 {
		service = service.EndTime(endTime)
	}

	return service.Do(ctx)
}

// BinanceSource streams USDⓈ-M futures market data. Quotes merge the book
// ticker with aggregated trades; ticks are aggregated trades.
type BinanceSource struct {
	streams BinanceStreams
	logger  *logger.Logger

	mu     sync.Mutex
	quotes map[string]types.Quote
}

// NewBinanceSource creates a source on the public futures endpoints.
func NewBinanceSource(useTestnet bool, log *logger.Logger) *BinanceSource {
	futures.UseTestnet = useTestnet

	return NewBinanceSourceWithStreams(&realBinanceStreams{client: futures.NewClient("", "")}, log)
}

// NewBinanceSourceWithStreams creates a source over custom streams. Used in tests.
func NewBinanceSourceWithStreams(streams BinanceStreams, log *logger.Logger) *BinanceSource {
	if log == nil {
		log = logger.NewNop()
	}

	return &BinanceSource{
		streams: streams,
		logger:  log.Named("binance-source"),
		quotes:  map[string]types.Quote{},
	}
}

// Verify BinanceSource implements Source.
var _ Source = (*BinanceSource)(nil)

func (s *BinanceSource) Name() string {
	return "binance"
}

func (s *BinanceSource) History(ctx context.Context, symbol string, duration time.Duration, length int) ([]types.Kline, error) {
	interval, err := binanceInterval(duration)
	if err != nil {
		return nil, err
	}

	klines, err := s.streams.Klines(ctx, symbol, interval, length, 0, 0)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeSubscribeFailed, err, "failed to fetch %s klines of %s", interval, symbol)
	}

	bars := make([]types.Kline, 0, len(klines))

	for _, k := range klines {
		bar, err := parseKline(symbol, duration, k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, err
		}

		bars = append(bars, bar)
	}

	return bars, nil
}

func (s *BinanceSource) Run(ctx context.Context, subs Subscriptions, emit Emit) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	failures := make(chan error, 1)
	fail := func(err error) {
		select {
		case failures <- err:
		default:
		}
	}

	var stops []chan struct{}

	defer func() {
		for _, stop := range stops {
			close(stop)
		}
	}()

	watch := func(name string, doneC, stopC chan struct{}) {
		stops = append(stops, stopC)

		go func() {
			select {
			case <-doneC:
				if ctx.Err() == nil {
					fail(fmt.Errorf("%s stream closed", name))
				}
			case <-ctx.Done():
			}
		}()
	}

	ticks := map[string]bool{}
	for _, symbol := range subs.Ticks {
		ticks[symbol] = true
	}

	trades := map[string]bool{}

	for _, symbol := range subs.Quotes {
		doneC, stopC, err := s.streams.WsBookTickerServe(symbol, s.onBookTicker(emit), fail)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeFeedTransient, err, "failed to open book ticker of %s", symbol)
		}

		watch("book ticker "+symbol, doneC, stopC)

		trades[symbol] = true
	}

	for symbol := range ticks {
		trades[symbol] = true
	}

	for symbol := range trades {
		doneC, stopC, err := s.streams.WsAggTradeServe(symbol, s.onAggTrade(emit, ticks[symbol]), fail)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeFeedTransient, err, "failed to open trades of %s", symbol)
		}

		watch("trades "+symbol, doneC, stopC)
	}

	for _, sub := range subs.Klines {
		interval, err := binanceInterval(sub.Duration)
		if err != nil {
			return err
		}

		doneC, stopC, err := s.streams.WsKlineServe(sub.Symbol, interval, s.onKline(emit, sub.Duration), fail)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeFeedTransient, err, "failed to open %s klines of %s", interval, sub.Symbol)
		}

		watch("klines "+sub.Symbol, doneC, stopC)
	}

	s.logger.Info("Binance streams open",
		zap.Strings("quotes", subs.Quotes),
		zap.Strings("ticks", subs.Ticks),
		zap.Int("klines", len(subs.Klines)),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-failures:
		return errors.Wrap(errors.ErrCodeFeedTransient, "binance stream failed", err)
	}
}

func (s *BinanceSource) onBookTicker(emit Emit) futures.WsBookTickerHandler {
	return func(event *futures.WsBookTickerEvent) {
		bid, bidErr := strconv.ParseFloat(event.BestBidPrice, 64)
		bidQty, _ := strconv.ParseFloat(event.BestBidQty, 64)
		ask, askErr := strconv.ParseFloat(event.BestAskPrice, 64)
		askQty, _ := strconv.ParseFloat(event.BestAskQty, 64)

		if bidErr != nil || askErr != nil {
			s.logger.Warn("Dropping malformed book ticker", zap.String("symbol", event.Symbol))

			return
		}

		s.mu.Lock()
		quote := s.quotes[event.Symbol]
		quote.Symbol = event.Symbol
		quote.BidPrice1, quote.BidVolume1 = bid, bidQty
		quote.AskPrice1, quote.AskVolume1 = ask, askQty

		if event.Time > 0 {
			quote.Datetime = time.UnixMilli(event.Time)
		}

		s.quotes[event.Symbol] = quote
		s.mu.Unlock()

		emit(Update{Kind: UpdateQuote, Quote: quote})
	}
}

func (s *BinanceSource) onAggTrade(emit Emit, tick bool) futures.WsAggTradeHandler {
	return func(event *futures.WsAggTradeEvent) {
		price, err := strconv.ParseFloat(event.Price, 64)
		if err != nil {
			s.logger.Warn("Dropping malformed trade", zap.String("symbol", event.Symbol), zap.Error(err))

			return
		}

		qty, _ := strconv.ParseFloat(event.Quantity, 64)
		at := time.UnixMilli(event.TradeTime)

		s.mu.Lock()
		quote := s.quotes[event.Symbol]
		quote.Symbol = event.Symbol
		quote.LastPrice = price
		quote.Datetime = at
		quote.Volume += qty
		quote.Amount += qty * price
		s.quotes[event.Symbol] = quote
		s.mu.Unlock()

		if !emit(Update{Kind: UpdateQuote, Quote: quote}) {
			return
		}

		if tick {
			emit(Update{Kind: UpdateTick, Tick: types.Tick{
				Symbol:     event.Symbol,
				Datetime:   at,
				LastPrice:  price,
				AskPrice1:  quote.AskPrice1,
				AskVolume1: quote.AskVolume1,
				BidPrice1:  quote.BidPrice1,
				BidVolume1: quote.BidVolume1,
				Volume:     qty,
				Amount:     qty * price,
			}})
		}
	}
}

func (s *BinanceSource) onKline(emit Emit, duration time.Duration) futures.WsKlineHandler {
	return func(event *futures.WsKlineEvent) {
		k := event.Kline

		bar, err := parseKline(event.Symbol, duration, k.StartTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			s.logger.Warn("Dropping malformed kline", zap.String("symbol", event.Symbol), zap.Error(err))

			return
		}

		emit(Update{Kind: UpdateKline, Kline: bar})
	}
}

func (s *BinanceSource) Close() error {
	return nil
}

func parseKline(symbol string, duration time.Duration, openTime int64, open, high, low, closePrice, volume string) (types.Kline, error) {
	values := make([]float64, 5)

	for i, raw := range []string{open, high, low, closePrice, volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Kline{}, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "invalid kline value %q for %s", raw, symbol)
		}

		values[i] = v
	}

	return types.Kline{
		Symbol:   symbol,
		Duration: duration,
		Datetime: time.UnixMilli(openTime).UTC(),
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   values[4],
	}, nil
}

var binanceIntervals = map[time.Duration]string{
	time.Minute:        "1m",
	3 * time.Minute:    "3m",
	5 * time.Minute:    "5m",
	15 * time.Minute:   "15m",
	30 * time.Minute:   "30m",
	time.Hour:          "1h",
	2 * time.Hour:      "2h",
	4 * time.Hour:      "4h",
	6 * time.Hour:      "6h",
	8 * time.Hour:      "8h",
	12 * time.Hour:     "12h",
	24 * time.Hour:     "1d",
	3 * 24 * time.Hour: "3d",
	7 * 24 * time.Hour: "1w",
}

// binanceInterval converts a bar duration into a Binance kline interval.
// Ref: https://developers.binance.com/docs/derivatives/usds-margined-futures/market-data/rest-api/Kline-Candlestick-Data
func binanceInterval(duration time.Duration) (string, error) {
	interval, ok := binanceIntervals[duration]
	if !ok {
		return "", errors.Newf(errors.ErrCodeSubscribeFailed, "binance has no %s klines", duration)
	}

	return interval, nil
}
