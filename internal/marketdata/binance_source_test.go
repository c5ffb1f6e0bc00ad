package marketdata

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// mockBinanceStreams implements BinanceStreams for testing
type mockBinanceStreams struct {
	mu          sync.Mutex
	opened      chan string
	openErr     error
	bookTickers map[string]futures.WsBookTickerHandler
	trades      map[string]futures.WsAggTradeHandler
	klines      map[string]futures.WsKlineHandler
	doneCs      []chan struct{}

	restKlines func(symbol string, startTime, endTime int64) ([]*futures.Kline, error)
	restCalls  int
}

func newMockBinanceStreams() *mockBinanceStreams {
	return &mockBinanceStreams{
		opened:      make(chan string, 32),
		bookTickers: map[string]futures.WsBookTickerHandler{},
		trades:      map[string]futures.WsAggTradeHandler{},
		klines:      map[string]futures.WsKlineHandler{},
	}
}

func (m *mockBinanceStreams) serve(name string) (chan struct{}, chan struct{}, error) {
	if m.openErr != nil {
		return nil, nil, m.openErr
	}

	doneC := make(chan struct{})
	stopC := make(chan struct{})
	m.doneCs = append(m.doneCs, doneC)
	m.opened <- name

	return doneC, stopC, nil
}

func (m *mockBinanceStreams) WsKlineServe(symbol string, interval string, handler futures.WsKlineHandler, _ futures.ErrHandler) (chan struct{}, chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.klines[symbol+"@"+interval] = handler

	return m.serve("kline " + symbol + " " + interval)
}

func (m *mockBinanceStreams) WsBookTickerServe(symbol string, handler futures.WsBookTickerHandler, _ futures.ErrHandler) (chan struct{}, chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bookTickers[symbol] = handler

	return m.serve("book " + symbol)
}

func (m *mockBinanceStreams) WsAggTradeServe(symbol string, handler futures.WsAggTradeHandler, _ futures.ErrHandler) (chan struct{}, chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trades[symbol] = handler

	return m.serve("trade " + symbol)
}

func (m *mockBinanceStreams) Klines(_ context.Context, symbol string, _ string, _ int, startTime, endTime int64) ([]*futures.Kline, error) {
	m.mu.Lock()
	m.restCalls++
	m.mu.Unlock()

	return m.restKlines(symbol, startTime, endTime)
}

func (m *mockBinanceStreams) closeFirstStream() {
	m.mu.Lock()
	defer m.mu.Unlock()

	close(m.doneCs[0])
}

func restKline(openTime int64, closePrice string) *futures.Kline {
	return &futures.Kline{OpenTime: openTime, Open: "100", High: "110", Low: "90", Close: closePrice, Volume: "3"}
}

type BinanceSourceTestSuite struct {
	suite.Suite
	streams *mockBinanceStreams
	source  *BinanceSource
	updates chan Update
	ctx     context.Context
	cancel  context.CancelFunc
}

func TestBinanceSourceSuite(t *testing.T) {
	suite.Run(t, new(BinanceSourceTestSuite))
}

func (s *BinanceSourceTestSuite) SetupTest() {
	s.streams = newMockBinanceStreams()
	s.source = NewBinanceSourceWithStreams(s.streams, nil)
	s.updates = make(chan Update, 32)
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Second)
}

func (s *BinanceSourceTestSuite) TearDownTest() {
	s.cancel()
}

func (s *BinanceSourceTestSuite) emit(u Update) bool {
	s.updates <- u

	return true
}

// start runs the source in the background and waits until n streams are open.
func (s *BinanceSourceTestSuite) start(subs Subscriptions, n int) chan error {
	result := make(chan error, 1)

	go func() {
		result <- s.source.Run(s.ctx, subs, s.emit)
	}()

	for range n {
		select {
		case <-s.streams.opened:
		case <-s.ctx.Done():
			s.FailNow("streams were not opened")
		}
	}

	return result
}

func (s *BinanceSourceTestSuite) next() Update {
	select {
	case u := <-s.updates:
		return u
	case <-s.ctx.Done():
		s.FailNow("no update received")

		return Update{}
	}
}

func (s *BinanceSourceTestSuite) TestQuoteMergesBookTickerAndTrades() {
	result := s.start(Subscriptions{Quotes: []string{"BTCUSDT"}, Ticks: []string{"BTCUSDT"}}, 2)

	s.streams.mu.Lock()
	onBook := s.streams.bookTickers["BTCUSDT"]
	onTrade := s.streams.trades["BTCUSDT"]
	s.streams.mu.Unlock()

	onBook(&futures.WsBookTickerEvent{Symbol: "BTCUSDT", BestBidPrice: "99.5", BestBidQty: "2", BestAskPrice: "100.5", BestAskQty: "1"})

	u := s.next()
	s.Equal(UpdateQuote, u.Kind)
	s.Equal(99.5, u.Quote.BidPrice1)
	s.Equal(100.5, u.Quote.AskPrice1)

	onTrade(&futures.WsAggTradeEvent{Symbol: "BTCUSDT", Price: "100", Quantity: "0.5", TradeTime: 1704067200000})

	u = s.next()
	s.Equal(UpdateQuote, u.Kind)
	s.Equal(100.0, u.Quote.LastPrice)
	s.Equal(99.5, u.Quote.BidPrice1, "trade keeps the book")
	s.Equal(0.5, u.Quote.Volume)

	u = s.next()
	s.Equal(UpdateTick, u.Kind)
	s.Equal(100.0, u.Tick.LastPrice)
	s.Equal(100.5, u.Tick.AskPrice1)
	s.Equal(time.UnixMilli(1704067200000), u.Tick.Datetime)

	// malformed events are dropped
	onTrade(&futures.WsAggTradeEvent{Symbol: "BTCUSDT", Price: "n/a"})
	s.Empty(s.updates)

	s.cancel()
	s.ErrorIs(<-result, context.Canceled)
}

func (s *BinanceSourceTestSuite) TestKlineStream() {
	result := s.start(Subscriptions{Klines: []KlineSubscription{{Symbol: "ETHUSDT", Duration: 5 * time.Minute}}}, 1)

	s.streams.mu.Lock()
	onKline := s.streams.klines["ETHUSDT@5m"]
	s.streams.mu.Unlock()
	s.Require().NotNil(onKline)

	onKline(&futures.WsKlineEvent{Symbol: "ETHUSDT", Kline: futures.WsKline{
		StartTime: 1704067200000, Open: "1", High: "3", Low: "0.5", Close: "2", Volume: "10",
	}})

	u := s.next()
	s.Equal(UpdateKline, u.Kind)
	s.Equal(types.Kline{
		Symbol:   "ETHUSDT",
		Duration: 5 * time.Minute,
		Datetime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Open:     1,
		High:     3,
		Low:      0.5,
		Close:    2,
		Volume:   10,
	}, u.Kline)

	s.cancel()
	<-result
}

func (s *BinanceSourceTestSuite) TestClosedStreamIsTransient() {
	result := s.start(Subscriptions{Quotes: []string{"BTCUSDT"}}, 2)

	s.streams.closeFirstStream()

	err := <-result
	s.True(errors.HasCode(err, errors.ErrCodeFeedTransient))
}

func (s *BinanceSourceTestSuite) TestOpenFailureIsTransient() {
	s.streams.openErr = fmt.Errorf("dial tcp: connection refused")

	err := s.source.Run(s.ctx, Subscriptions{Quotes: []string{"BTCUSDT"}}, s.emit)
	s.True(errors.HasCode(err, errors.ErrCodeFeedTransient))
}

func (s *BinanceSourceTestSuite) TestUnsupportedInterval() {
	err := s.source.Run(s.ctx, Subscriptions{Klines: []KlineSubscription{{Symbol: "BTCUSDT", Duration: 7 * time.Minute}}}, s.emit)
	s.True(errors.HasCode(err, errors.ErrCodeSubscribeFailed))
}

func (s *BinanceSourceTestSuite) TestHistory() {
	s.streams.restKlines = func(string, int64, int64) ([]*futures.Kline, error) {
		return []*futures.Kline{restKline(1704067200000, "105"), restKline(1704067260000, "106")}, nil
	}

	bars, err := s.source.History(s.ctx, "BTCUSDT", time.Minute, 2)
	s.Require().NoError(err)
	s.Require().Len(bars, 2)
	s.Equal(106.0, bars[1].Close)
	s.Equal(time.Minute, bars[1].Duration)

	s.streams.restKlines = func(string, int64, int64) ([]*futures.Kline, error) {
		return []*futures.Kline{restKline(1704067200000, "oops")}, nil
	}

	_, err = s.source.History(s.ctx, "BTCUSDT", time.Minute, 2)
	s.True(errors.HasCode(err, errors.ErrCodeMarketDataParseFailed))

	s.streams.restKlines = func(string, int64, int64) ([]*futures.Kline, error) {
		return nil, fmt.Errorf("HTTP 429")
	}

	_, err = s.source.History(s.ctx, "BTCUSDT", time.Minute, 2)
	s.True(errors.HasCode(err, errors.ErrCodeSubscribeFailed))
}

func (s *BinanceSourceTestSuite) TestBinanceInterval() {
	tests := []struct {
		duration time.Duration
		want     string
	}{
		{time.Minute, "1m"},
		{15 * time.Minute, "15m"},
		{4 * time.Hour, "4h"},
		{24 * time.Hour, "1d"},
	}

	for _, tt := range tests {
		s.Run(tt.want, func() {
			got, err := binanceInterval(tt.duration)
			s.NoError(err)
			s.Equal(tt.want, got)
		})
	}
}
