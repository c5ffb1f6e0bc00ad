package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-futures/internal/gateway"
	"github.com/rxtech-lab/argo-futures/internal/session"
	"github.com/rxtech-lab/argo-futures/internal/strategy"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/mocks"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

const scriptedName = "scripted"

type recordingObserver struct {
	mu      sync.Mutex
	targets []string
}

func (o *recordingObserver) OnTarget(accountID, symbol string, target int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.targets = append(o.targets, fmt.Sprintf("%s/%s/%d", accountID, symbol, target))
}

func (o *recordingObserver) OnOrder(types.Order, error)     {}
func (o *recordingObserver) OnCancel(string, string, error) {}

func (o *recordingObserver) recorded() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]string{}, o.targets...)
}

type EngineTestSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	provider   *mocks.MockProvider
	feed       *mocks.MockFeed
	gateway    *gateway.SimGateway
	observer   *recordingObserver
	snapshots  map[string]*types.Snapshot
	strategies map[string]*mocks.MockStrategy
	accounts   []types.Account

	states         []types.EngineState
	decisions      []string
	strategyErrors []error
	errs           []error
	stopErr        error
	stopped        bool
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.provider = mocks.NewMockProvider(s.ctrl)
	s.feed = mocks.NewMockFeed(s.ctrl)
	s.observer = &recordingObserver{}
	s.snapshots = map[string]*types.Snapshot{}
	s.strategies = map[string]*mocks.MockStrategy{}
	s.accounts = []types.Account{{ID: "sim"}}

	s.states = nil
	s.decisions = nil
	s.strategyErrors = nil
	s.errs = nil
	s.stopErr = nil
	s.stopped = false

	s.feed.EXPECT().Snapshot(gomock.Any()).DoAndReturn(func(symbol string) (*types.Snapshot, bool) {
		snapshot, ok := s.snapshots[symbol]

		return snapshot, ok
	}).AnyTimes()
}

func (s *EngineTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

// withSymbols creates quoted snapshots and one mocked strategy per symbol.
func (s *EngineTestSuite) withSymbols(symbols ...string) {
	for _, symbol := range symbols {
		snapshot := types.NewSnapshot(symbol)
		snapshot.Quote = &types.Quote{
			Symbol:     symbol,
			Datetime:   time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
			LastPrice:  100,
			AskPrice1:  100.5,
			AskVolume1: 10,
			BidPrice1:  99.5,
			BidVolume1: 10,
		}
		snapshot.Bump()
		s.snapshots[symbol] = snapshot

		mock := mocks.NewMockStrategy(s.ctrl)
		mock.EXPECT().Name().Return(scriptedName).AnyTimes()
		s.strategies[symbol] = mock
	}
}

func (s *EngineTestSuite) authenticates() {
	ids := make([]string, len(s.accounts))
	for i, account := range s.accounts {
		ids[i] = account.ID
	}

	s.gateway = gateway.NewSimGateway(ids, gateway.DefaultSimConfig(1_000_000), nil)

	s.provider.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(&session.Session{
		Mode:     session.ModePaper,
		Accounts: s.accounts,
		Feed:     s.feed,
		Gateway:  s.gateway,
	}, nil)
}

// script makes WaitForUpdate run one step per wake-up and report the feed
// closed afterwards.
func (s *EngineTestSuite) script(steps ...func()) {
	next := 0

	s.feed.EXPECT().WaitForUpdate(gomock.Any()).DoAndReturn(func(context.Context) (bool, error) {
		if next >= len(steps) {
			return false, nil
		}

		steps[next]()
		next++

		return true, nil
	}).AnyTimes()
}

func (s *EngineTestSuite) bump(symbols ...string) func() {
	return func() {
		for _, symbol := range symbols {
			s.snapshots[symbol].Bump()
		}
	}
}

func (s *EngineTestSuite) subscribesQuotes(symbols ...string) {
	args := []any{gomock.Any()}
	for _, symbol := range symbols {
		args = append(args, symbol)
	}

	s.feed.EXPECT().SubscribeQuote(args...).Return(nil)
}

func (s *EngineTestSuite) registry() *strategy.Registry {
	registry := strategy.NewRegistry()
	s.Require().NoError(registry.Register(strategy.Registration{
		Name: scriptedName,
		Factory: func(strategy.Params) (strategy.Strategy, error) {
			return &symbolDispatch{suite: s}, nil
		},
	}))

	return registry
}

// symbolDispatch forwards to the mock of the symbol it is initialized for.
type symbolDispatch struct {
	suite  *EngineTestSuite
	target strategy.Strategy
}

func (d *symbolDispatch) Name() string { return scriptedName }

func (d *symbolDispatch) Init(ctx strategy.MarketContext) error {
	d.target = d.suite.strategies[ctx.Symbol]

	return d.target.Init(ctx)
}

func (d *symbolDispatch) Execution() (optional.Option[int], error) {
	return d.target.Execution()
}

func (s *EngineTestSuite) newEngine(config Config) *Engine {
	e, err := New(config, Dependencies{
		Provider:   s.provider,
		Strategies: s.registry(),
		Observer:   s.observer,
	})
	s.Require().NoError(err)

	return e
}

func (s *EngineTestSuite) callbacks() Callbacks {
	onState := OnStateChangeCallback(func(state types.EngineState) { s.states = append(s.states, state) })
	onDecision := OnDecisionCallback(func(symbol string, target int) {
		s.decisions = append(s.decisions, fmt.Sprintf("%s/%d", symbol, target))
	})
	onStrategyError := OnStrategyErrorCallback(func(_, _ string, err error) { s.strategyErrors = append(s.strategyErrors, err) })
	onError := OnErrorCallback(func(err error) { s.errs = append(s.errs, err) })
	onStop := OnEngineStopCallback(func(err error) {
		s.stopped = true
		s.stopErr = err
	})

	return Callbacks{
		OnStateChange:   &onState,
		OnDecision:      &onDecision,
		OnStrategyError: &onStrategyError,
		OnError:         &onError,
		OnEngineStop:    &onStop,
	}
}

func (s *EngineTestSuite) config(quotes ...string) Config {
	config := DefaultConfig()
	config.Quotes = quotes
	config.Strategy = scriptedName

	return config
}

func (s *EngineTestSuite) TestAuthFailureIsFatalWithoutSubscribing() {
	s.provider.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("connection refused"))

	// the feed mock fails the test on any subscribe call
	err := s.newEngine(s.config("BTCUSDT")).Run(context.Background(), s.callbacks())

	s.Require().Error(err)
	s.True(errors.IsAuthError(err))
	s.True(s.stopped)
	s.Equal(err, s.stopErr)
	s.Equal([]types.EngineState{
		types.EngineStateInitializing,
		types.EngineStateDraining,
		types.EngineStateClosed,
	}, s.states)
}

func (s *EngineTestSuite) TestTypedAuthErrorIsKept() {
	s.provider.EXPECT().Authenticate(gomock.Any(), gomock.Any()).
		Return(nil, errors.New(errors.ErrCodeUnsupportedBroker, "unsupported broker: ctp"))

	err := s.newEngine(s.config("BTCUSDT")).Run(context.Background(), Callbacks{})

	s.Equal(errors.ErrCodeUnsupportedBroker, errors.GetCode(err))
}

func (s *EngineTestSuite) TestNoSubscriptionsIsConfigError() {
	s.authenticates()

	config := DefaultConfig()
	config.Strategy = scriptedName

	err := s.newEngine(config).Run(context.Background(), s.callbacks())

	s.True(errors.HasCode(err, errors.ErrCodeNoSubscriptions))
	s.True(errors.IsConfigError(err))
	s.Equal(types.EngineStateClosed, s.states[len(s.states)-1])
}

func (s *EngineTestSuite) TestStrategyWithoutQuotesIsConfigError() {
	s.withSymbols("BTCUSDT")
	s.authenticates()

	// the feed mock fails the test on any subscribe call
	config := DefaultConfig()
	config.Klines = []KlineSubscription{{Symbol: "BTCUSDT", Duration: time.Minute, Length: 10}}
	config.Strategy = scriptedName

	err := s.newEngine(config).Run(context.Background(), s.callbacks())

	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
	s.True(errors.IsConfigError(err))
	s.Equal(err, s.stopErr)
	s.Equal(types.EngineStateClosed, s.states[len(s.states)-1])
}

func (s *EngineTestSuite) TestKlineOnlyRunWithoutStrategy() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.feed.EXPECT().SubscribeKline(gomock.Any(), []string{"BTCUSDT"}, time.Minute, 10).Return(nil)
	s.script(s.bump("BTCUSDT"))

	config := DefaultConfig()
	config.Klines = []KlineSubscription{{Symbol: "BTCUSDT", Duration: time.Minute, Length: 10}}

	s.NoError(s.newEngine(config).Run(context.Background(), s.callbacks()))
	s.Empty(s.decisions)
}

func (s *EngineTestSuite) TestSubscribesInConfigurationOrder() {
	s.withSymbols("BTCUSDT", "ETHUSDT")
	s.authenticates()

	config := s.config("BTCUSDT", "ETHUSDT")
	config.Klines = []KlineSubscription{
		{Symbol: "BTCUSDT", Duration: time.Minute, Length: 10},
		{Symbol: "ETHUSDT", Duration: time.Hour, Length: 5},
	}
	config.Ticks = []TickSubscription{{Symbol: "BTCUSDT", Length: 200}}

	gomock.InOrder(
		s.feed.EXPECT().SubscribeQuote(gomock.Any(), "BTCUSDT", "ETHUSDT").Return(nil),
		s.feed.EXPECT().SubscribeKline(gomock.Any(), []string{"BTCUSDT"}, time.Minute, 10).Return(nil),
		s.feed.EXPECT().SubscribeKline(gomock.Any(), []string{"ETHUSDT"}, time.Hour, 5).Return(nil),
		s.feed.EXPECT().SubscribeTick(gomock.Any(), "BTCUSDT", 200).Return(nil),
	)

	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(nil)
	s.strategies["ETHUSDT"].EXPECT().Init(gomock.Any()).Return(nil)
	s.script()

	e := s.newEngine(config)
	s.Require().NoError(e.Run(context.Background(), s.callbacks()))

	s.Equal([]types.EngineState{
		types.EngineStateInitializing,
		types.EngineStateSubscribing,
		types.EngineStateRunning,
		types.EngineStateDraining,
		types.EngineStateClosed,
	}, s.states)
	s.Nil(s.stopErr)
	s.Len(e.Targets(), 2)
}

func (s *EngineTestSuite) TestMergedKlinesUseFirstSeries() {
	s.authenticates()

	config := DefaultConfig()
	config.MergeKlines = true
	config.Klines = []KlineSubscription{
		{Symbol: "BTCUSDT", Duration: time.Minute, Length: 10},
		{Symbol: "ETHUSDT", Duration: time.Hour, Length: 5},
	}

	s.feed.EXPECT().SubscribeKline(gomock.Any(), []string{"BTCUSDT", "ETHUSDT"}, time.Minute, 10).Return(nil)
	s.script()

	s.NoError(s.newEngine(config).Run(context.Background(), Callbacks{}))
}

func (s *EngineTestSuite) TestSubscribeFailureIsFeedError() {
	s.authenticates()
	s.feed.EXPECT().SubscribeQuote(gomock.Any(), "BTCUSDT").Return(fmt.Errorf("unknown symbol"))

	err := s.newEngine(s.config("BTCUSDT")).Run(context.Background(), Callbacks{})

	s.True(errors.HasCode(err, errors.ErrCodeSubscribeFailed))
	s.True(errors.IsFeedError(err))
}

func (s *EngineTestSuite) TestStrategyInitFailureIsFatal() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(fmt.Errorf("bad parameters"))

	err := s.newEngine(s.config("BTCUSDT")).Run(context.Background(), s.callbacks())

	s.True(errors.HasCode(err, errors.ErrCodeStrategyInitFailed))
	s.True(errors.IsStrategyError(err))
	s.True(s.stopped)
}

func (s *EngineTestSuite) TestUnknownStrategyIsConfigError() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")

	config := s.config("BTCUSDT")
	config.Strategy = "martingale"

	err := s.newEngine(config).Run(context.Background(), Callbacks{})

	s.True(errors.HasCode(err, errors.ErrCodeUnknownStrategy))
	s.True(errors.IsConfigError(err))
}

func (s *EngineTestSuite) TestInitReceivesMarketContext() {
	s.withSymbols("BTCUSDT")
	s.accounts = []types.Account{{ID: "alpha"}, {ID: "beta"}}
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).DoAndReturn(func(ctx strategy.MarketContext) error {
		s.Equal("BTCUSDT", ctx.Symbol)
		s.Same(s.snapshots["BTCUSDT"], ctx.Snapshot)
		s.Equal(s.accounts, ctx.Accounts)
		s.NotNil(ctx.Broker)
		s.NotNil(ctx.Logger)

		return nil
	})
	s.script()

	s.NoError(s.newEngine(s.config("BTCUSDT")).Run(context.Background(), Callbacks{}))
}

func (s *EngineTestSuite) TestOnlyChangedInstrumentsExecute() {
	s.withSymbols("BTCUSDT", "ETHUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT", "ETHUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(nil)
	s.strategies["ETHUSDT"].EXPECT().Init(gomock.Any()).Return(nil)

	s.strategies["BTCUSDT"].EXPECT().Execution().Return(optional.None[int](), nil).Times(2)
	s.strategies["ETHUSDT"].EXPECT().Execution().Return(optional.None[int](), nil).Times(1)

	// a wake-up where nothing of ours moved executes no strategy
	s.script(s.bump("BTCUSDT"), s.bump("BTCUSDT", "ETHUSDT"), func() {})

	s.NoError(s.newEngine(s.config("BTCUSDT", "ETHUSDT")).Run(context.Background(), s.callbacks()))
	s.Empty(s.decisions)
}

func (s *EngineTestSuite) TestDecisionConvergesEveryAccount() {
	s.withSymbols("BTCUSDT")
	s.accounts = []types.Account{{ID: "alpha"}, {ID: "beta"}}
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(nil)
	s.strategies["BTCUSDT"].EXPECT().Execution().Return(optional.Some(2), nil)
	s.script(s.bump("BTCUSDT"))

	e := s.newEngine(s.config("BTCUSDT"))
	s.Require().NoError(e.Run(context.Background(), s.callbacks()))

	s.Equal([]string{"BTCUSDT/2"}, s.decisions)
	s.Equal([]string{"alpha/BTCUSDT/2", "beta/BTCUSDT/2"}, s.observer.recorded())

	for _, account := range []string{"alpha", "beta"} {
		orders, err := s.gateway.Orders(context.Background(), account)
		s.Require().NoError(err)
		s.Require().Len(orders, 1)
		s.Equal(types.DirectionBuy, orders[0].Direction)
		s.Equal(2, orders[0].Volume)
	}

	for _, entry := range e.Targets() {
		s.Equal(optional.Some(2), entry.Target)
	}

	// tasks are left as they are when the engine stops
	s.Empty(s.errs)
}

func (s *EngineTestSuite) TestFlatIsDifferentFromNoDecision() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(nil)

	gomock.InOrder(
		s.strategies["BTCUSDT"].EXPECT().Execution().Return(optional.None[int](), nil),
		s.strategies["BTCUSDT"].EXPECT().Execution().Return(optional.Some(0), nil),
	)
	s.script(s.bump("BTCUSDT"), s.bump("BTCUSDT"))

	e := s.newEngine(s.config("BTCUSDT"))
	s.Require().NoError(e.Run(context.Background(), s.callbacks()))

	s.Equal([]string{"BTCUSDT/0"}, s.decisions)
	s.Equal([]string{"sim/BTCUSDT/0"}, s.observer.recorded())
	s.Equal(optional.Some(0), e.Targets()[0].Target)
}

func (s *EngineTestSuite) TestRepeatedFailuresDisableStrategy() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(nil)
	s.strategies["BTCUSDT"].EXPECT().Execution().Return(optional.None[int](), fmt.Errorf("division by zero")).Times(2)
	s.script(s.bump("BTCUSDT"), s.bump("BTCUSDT"), s.bump("BTCUSDT"), s.bump("BTCUSDT"))

	config := s.config("BTCUSDT")
	config.MaxStrategyFailures = 2

	e := s.newEngine(config)
	s.Require().NoError(e.Run(context.Background(), s.callbacks()))

	s.Len(s.strategyErrors, 2)
	s.True(errors.HasCode(s.strategyErrors[0], errors.ErrCodeStrategyRuntimeError))
	s.Equal([]string{"BTCUSDT"}, e.DisabledStrategies())
	s.Require().Len(s.errs, 1)
	s.True(errors.HasCode(s.errs[0], errors.ErrCodeStrategyDisabled))
}

func (s *EngineTestSuite) TestSuccessResetsFailureCount() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(nil)

	failure := fmt.Errorf("flaky")
	gomock.InOrder(
		s.strategies["BTCUSDT"].EXPECT().Execution().Return(optional.None[int](), failure),
		s.strategies["BTCUSDT"].EXPECT().Execution().Return(optional.None[int](), nil),
		s.strategies["BTCUSDT"].EXPECT().Execution().Return(optional.None[int](), failure),
	)
	s.script(s.bump("BTCUSDT"), s.bump("BTCUSDT"), s.bump("BTCUSDT"))

	config := s.config("BTCUSDT")
	config.MaxStrategyFailures = 2

	e := s.newEngine(config)
	s.Require().NoError(e.Run(context.Background(), s.callbacks()))

	s.Len(s.strategyErrors, 2)
	s.Empty(e.DisabledStrategies())
}

func (s *EngineTestSuite) TestWarmUpIsNotAFailure() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(nil)
	s.strategies["BTCUSDT"].EXPECT().Execution().
		Return(optional.None[int](), errors.NewInsufficientDataError(5, 2, "BTCUSDT", "not enough bars")).Times(3)
	s.script(s.bump("BTCUSDT"), s.bump("BTCUSDT"), s.bump("BTCUSDT"))

	config := s.config("BTCUSDT")
	config.MaxStrategyFailures = 1

	e := s.newEngine(config)
	s.Require().NoError(e.Run(context.Background(), s.callbacks()))

	s.Empty(s.strategyErrors)
	s.Empty(e.DisabledStrategies())
}

func (s *EngineTestSuite) TestPanicIsRecovered() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(nil)

	gomock.InOrder(
		s.strategies["BTCUSDT"].EXPECT().Execution().DoAndReturn(func() (optional.Option[int], error) {
			panic("index out of range")
		}),
		s.strategies["BTCUSDT"].EXPECT().Execution().Return(optional.Some(1), nil),
	)
	s.script(s.bump("BTCUSDT"), s.bump("BTCUSDT"))

	s.Require().NoError(s.newEngine(s.config("BTCUSDT")).Run(context.Background(), s.callbacks()))

	s.Require().Len(s.strategyErrors, 1)
	s.True(errors.HasCode(s.strategyErrors[0], errors.ErrCodeStrategyPanic))
	s.Equal([]string{"BTCUSDT/1"}, s.decisions)
}

func (s *EngineTestSuite) TestParallelEvaluationConvergesInConfigurationOrder() {
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"}
	s.withSymbols(symbols...)
	s.authenticates()
	s.subscribesQuotes(symbols...)

	for i, symbol := range symbols {
		s.strategies[symbol].EXPECT().Init(gomock.Any()).Return(nil)
		s.strategies[symbol].EXPECT().Execution().Return(optional.Some(i+1), nil)
	}

	s.script(s.bump(symbols...))

	config := s.config(symbols...)
	config.Parallelism = 4

	s.Require().NoError(s.newEngine(config).Run(context.Background(), s.callbacks()))

	s.Equal([]string{"BTCUSDT/1", "ETHUSDT/2", "SOLUSDT/3", "BNBUSDT/4"}, s.decisions)
	s.Equal([]string{"sim/BTCUSDT/1", "sim/ETHUSDT/2", "sim/SOLUSDT/3", "sim/BNBUSDT/4"}, s.observer.recorded())
}

func (s *EngineTestSuite) TestFeedErrorStopsRun() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(nil)
	s.feed.EXPECT().WaitForUpdate(gomock.Any()).
		Return(false, errors.New(errors.ErrCodeFeedClosed, "market data source retries exhausted"))

	err := s.newEngine(s.config("BTCUSDT")).Run(context.Background(), s.callbacks())

	s.True(errors.IsFeedError(err))
	s.Equal(err, s.stopErr)
	s.Equal(types.EngineStateClosed, s.states[len(s.states)-1])
}

func (s *EngineTestSuite) TestCancellationDrains() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.feed.EXPECT().WaitForUpdate(gomock.Any()).DoAndReturn(func(context.Context) (bool, error) {
		cancel()

		return false, nil
	})

	e := s.newEngine(s.config("BTCUSDT"))
	s.NoError(e.Run(ctx, s.callbacks()))
	s.Equal(types.EngineStateClosed, e.State())
}

func (s *EngineTestSuite) TestIterationCallbackErrorAborts() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")
	s.strategies["BTCUSDT"].EXPECT().Init(gomock.Any()).Return(nil)
	s.strategies["BTCUSDT"].EXPECT().Execution().Return(optional.None[int](), nil)
	s.script(s.bump("BTCUSDT"), s.bump("BTCUSDT"))

	iterations := 0
	onIteration := OnIterationCallback(func(n int) error {
		iterations = n

		return fmt.Errorf("monitor gone")
	})

	err := s.newEngine(s.config("BTCUSDT")).Run(context.Background(), Callbacks{OnIteration: &onIteration})

	s.True(errors.HasCode(err, errors.ErrCodeCallbackFailed))
	s.Equal(1, iterations)
}

func (s *EngineTestSuite) TestEngineRunsOnce() {
	s.authenticates()

	config := DefaultConfig()
	config.Ticks = []TickSubscription{{Symbol: "BTCUSDT", Length: 10}}
	s.feed.EXPECT().SubscribeTick(gomock.Any(), "BTCUSDT", 10).Return(nil)
	s.script()

	e := s.newEngine(config)
	s.NoError(e.Run(context.Background(), Callbacks{}))

	err := e.Run(context.Background(), Callbacks{})
	s.True(errors.HasCode(err, errors.ErrCodeEngineState))
}

func (s *EngineTestSuite) TestNewValidation() {
	_, err := New(DefaultConfig(), Dependencies{})
	s.True(errors.HasCode(err, errors.ErrCodeEngineInitFailed))

	config := DefaultConfig()
	config.MaxStrategyFailures = -1

	_, err = New(config, Dependencies{Provider: s.provider})
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *EngineTestSuite) TestDualThrustBreakoutBuysOnEveryAccount() {
	s.withSymbols("BTCUSDT")
	s.accounts = []types.Account{{ID: "alpha"}, {ID: "beta"}}
	s.authenticates()

	generated := mocks.DefaultConfig()
	generated.Count = 10
	generated.InitialPrice = 100
	s.snapshots["BTCUSDT"].Klines = mocks.Series(mocks.NewDataGenerator(7).Generate(generated), 10)

	gomock.InOrder(
		s.feed.EXPECT().SubscribeQuote(gomock.Any(), "BTCUSDT").Return(nil),
		s.feed.EXPECT().SubscribeKline(gomock.Any(), []string{"BTCUSDT"}, time.Minute, 10).Return(nil),
	)

	s.script(func() {
		s.snapshots["BTCUSDT"].Quote.LastPrice = 1000
		s.snapshots["BTCUSDT"].Bump()
	})

	config := DefaultConfig()
	config.Quotes = []string{"BTCUSDT"}
	config.Klines = []KlineSubscription{{Symbol: "BTCUSDT", Duration: time.Minute, Length: 10}}
	config.Strategy = strategy.DualThrustName

	e, err := New(config, Dependencies{Provider: s.provider, Observer: s.observer})
	s.Require().NoError(err)
	s.Require().NoError(e.Run(context.Background(), s.callbacks()))

	s.Equal([]string{"BTCUSDT/3"}, s.decisions)
	s.Empty(s.strategyErrors)

	for _, account := range []string{"alpha", "beta"} {
		orders, err := s.gateway.Orders(context.Background(), account)
		s.Require().NoError(err)
		s.Require().Len(orders, 1)
		s.Equal(types.DirectionBuy, orders[0].Direction)
		s.Equal(3, orders[0].Volume)
	}
}

// lastPriceWatcher records whether the last price changed since its previous execution.
type lastPriceWatcher struct {
	strategy.Base
	seen *[]bool
}

func (w *lastPriceWatcher) Name() string { return "last_price_watcher" }

func (w *lastPriceWatcher) Init(ctx strategy.MarketContext) error {
	w.Bind(ctx)

	return nil
}

func (w *lastPriceWatcher) Execution() (optional.Option[int], error) {
	*w.seen = append(*w.seen, w.Changed(w.Quote(), "last_price"))

	return optional.None[int](), nil
}

func (s *EngineTestSuite) TestIterationsSeeValuesOfPreviousIteration() {
	s.withSymbols("BTCUSDT")
	s.authenticates()
	s.subscribesQuotes("BTCUSDT")

	seen := []bool{}
	registry := strategy.NewRegistry()
	s.Require().NoError(registry.Register(strategy.Registration{
		Name: "last_price_watcher",
		Factory: func(strategy.Params) (strategy.Strategy, error) {
			return &lastPriceWatcher{seen: &seen}, nil
		},
	}))

	price := func(value float64) func() {
		return func() {
			s.snapshots["BTCUSDT"].Quote.LastPrice = value
			s.snapshots["BTCUSDT"].Bump()
		}
	}

	// every update bumps the revision, only the value decides the change
	s.script(price(100), price(100), price(101), price(101))

	config := DefaultConfig()
	config.Quotes = []string{"BTCUSDT"}
	config.Strategy = "last_price_watcher"

	e, err := New(config, Dependencies{Provider: s.provider, Strategies: registry})
	s.Require().NoError(err)
	s.Require().NoError(e.Run(context.Background(), s.callbacks()))

	s.Equal([]bool{true, false, true, false}, seen)
}
