package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-futures/internal/gateway"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/reconcile"
	"github.com/rxtech-lab/argo-futures/internal/session"
	"github.com/rxtech-lab/argo-futures/internal/strategy"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dependencies are the collaborators of an engine.
type Dependencies struct {
	Provider    session.Provider
	Credentials session.Credentials
	// Strategies defaults to strategy.DefaultRegistry.
	Strategies *strategy.Registry
	// Observer receives reconciliation events, e.g. a journal.
	Observer reconcile.Observer
	Logger   *logger.Logger
}

// binding ties one strategy instance to its instrument.
type binding struct {
	symbol   string
	snapshot *types.Snapshot
	strategy strategy.Strategy
	// lastRevision is the snapshot revision of the last execution.
	lastRevision uint64
	failures     int
	disabled     bool
}

type executionResult struct {
	target optional.Option[int]
	err    error
}

// Engine drives one run. An Engine is single use.
type Engine struct {
	config Config
	deps   Dependencies
	runID  string
	logger *logger.Logger

	mu       sync.RWMutex
	state    types.EngineState
	registry *reconcile.Registry
	session  *session.Session
	bindings []*binding
	started  bool
}

// New creates an engine in the Initializing state.
func New(config Config, deps Dependencies) (*Engine, error) {
	if deps.Provider == nil {
		return nil, errors.New(errors.ErrCodeEngineInitFailed, "engine needs a session provider")
	}

	if deps.Strategies == nil {
		deps.Strategies = strategy.DefaultRegistry()
	}

	if config.MaxStrategyFailures < 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "max strategy failures must not be negative, got %d", config.MaxStrategyFailures)
	}

	if config.Parallelism < 1 {
		config.Parallelism = 1
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	runID := uuid.New().String()

	return &Engine{
		config: config,
		deps:   deps,
		runID:  runID,
		logger: log.Named("engine").With(zap.String("run_id", runID)),
		state:  types.EngineStateInitializing,
	}, nil
}

// RunID identifies the run in logs.
func (e *Engine) RunID() string {
	return e.runID
}

// State returns the current engine state.
func (e *Engine) State() types.EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.state
}

// Targets returns the standing target of every reconciliation task. It is
// empty before the engine finished subscribing.
func (e *Engine) Targets() []reconcile.TargetEntry {
	e.mu.RLock()
	registry := e.registry
	e.mu.RUnlock()

	if registry == nil {
		return []reconcile.TargetEntry{}
	}

	return registry.Targets()
}

// Broker returns the read-only gateway of the session once it is authenticated.
func (e *Engine) Broker() (gateway.Broker, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.session == nil {
		return nil, false
	}

	return e.session.Gateway, true
}

// Accounts returns the session accounts once it is authenticated.
func (e *Engine) Accounts() []types.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.session == nil {
		return []types.Account{}
	}

	return append([]types.Account{}, e.session.Accounts...)
}

// DisabledStrategies returns the instruments whose strategy was disabled after repeated failures.
func (e *Engine) DisabledStrategies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	symbols := []string{}

	for _, b := range e.bindings {
		if b.disabled {
			symbols = append(symbols, b.symbol)
		}
	}

	return symbols
}

func (e *Engine) setState(state types.EngineState, callbacks Callbacks) {
	e.mu.Lock()
	previous := e.state
	e.state = state
	e.mu.Unlock()

	e.logger.Info("Engine state changed",
		zap.String("from", string(previous)),
		zap.String("to", string(state)),
	)

	if callbacks.OnStateChange != nil {
		(*callbacks.OnStateChange)(state)
	}
}

// Run executes the engine until ctx is done or the feed closes. It returns
// nil on cancellation and terminal feed closure. Setup failures and feed
// errors are returned typed.
func (e *Engine) Run(ctx context.Context, callbacks Callbacks) (runErr error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()

		return errors.New(errors.ErrCodeEngineState, "engine has already been run")
	}

	e.started = true
	e.mu.Unlock()

	e.setState(types.EngineStateInitializing, callbacks)

	defer func() {
		e.shutdown(callbacks)

		if runErr != nil {
			e.logger.Error("Engine stopped with error", zap.Error(runErr))
		}

		if callbacks.OnEngineStop != nil {
			(*callbacks.OnEngineStop)(runErr)
		}
	}()

	if err := e.initialize(ctx); err != nil {
		return err
	}

	e.setState(types.EngineStateSubscribing, callbacks)

	if err := e.subscribe(ctx); err != nil {
		return err
	}

	e.setState(types.EngineStateRunning, callbacks)

	return e.loop(ctx, callbacks)
}

func (e *Engine) initialize(ctx context.Context) error {
	sess, err := e.deps.Provider.Authenticate(ctx, e.deps.Credentials)
	if err != nil {
		if errors.IsAuthError(err) || errors.IsConfigError(err) {
			return err
		}

		return errors.Wrap(errors.ErrCodeAuthFailed, "failed to authenticate session", err)
	}

	e.mu.Lock()
	e.session = sess
	e.mu.Unlock()

	e.logger.Info("Session authenticated",
		zap.String("mode", string(sess.Mode)),
		zap.Strings("accounts", sess.AccountIDs()),
	)

	return nil
}

func (e *Engine) subscribe(ctx context.Context) error {
	if !e.config.HasSubscriptions() {
		return errors.New(errors.ErrCodeNoSubscriptions, "at least one of quotes, klines or ticks must be subscribed")
	}

	// strategies and tasks are bound per quoted instrument
	if e.config.Strategy != "" && len(e.config.Quotes) == 0 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "strategy %s needs at least one quoted instrument", e.config.Strategy)
	}

	feed := e.session.Feed

	if len(e.config.Quotes) > 0 {
		if err := feed.SubscribeQuote(ctx, e.config.Quotes...); err != nil {
			return errors.Ensure(errors.ErrCodeSubscribeFailed, "failed to subscribe quotes", err)
		}
	}

	if err := e.subscribeKlines(ctx); err != nil {
		return err
	}

	for _, tick := range e.config.Ticks {
		if err := feed.SubscribeTick(ctx, tick.Symbol, tick.Length); err != nil {
			return errors.Ensure(errors.ErrCodeSubscribeFailed, fmt.Sprintf("failed to subscribe ticks of %s", tick.Symbol), err)
		}
	}

	registry, err := reconcile.NewRegistry(reconcile.RegistryConfig{
		Gateway:   e.session.Gateway,
		Snapshots: feed,
		Accounts:  e.session.Accounts,
		Quotes:    e.config.Quotes,
		Options:   e.config.Order,
		Observer:  e.deps.Observer,
		Logger:    e.logger,
	})
	if err != nil {
		return err
	}

	if _, err := registry.SetTasksForAllAccounts(); err != nil {
		return err
	}

	registry.Freeze()

	bindings, err := e.bind()
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.registry = registry
	e.bindings = bindings
	e.mu.Unlock()

	e.logger.Info("Subscriptions ready",
		zap.Strings("quotes", e.config.Quotes),
		zap.Int("klines", len(e.config.Klines)),
		zap.Int("ticks", len(e.config.Ticks)),
		zap.Int("tasks", registry.Len()),
	)

	return nil
}

func (e *Engine) subscribeKlines(ctx context.Context) error {
	if len(e.config.Klines) == 0 {
		return nil
	}

	feed := e.session.Feed

	if e.config.MergeKlines {
		first := e.config.Klines[0]
		symbols := make([]string, len(e.config.Klines))

		for i, kline := range e.config.Klines {
			symbols[i] = kline.Symbol
		}

		if err := feed.SubscribeKline(ctx, symbols, first.Duration, first.Length); err != nil {
			return errors.Ensure(errors.ErrCodeSubscribeFailed, "failed to subscribe merged klines", err)
		}

		return nil
	}

	for _, kline := range e.config.Klines {
		if err := feed.SubscribeKline(ctx, []string{kline.Symbol}, kline.Duration, kline.Length); err != nil {
			return errors.Ensure(errors.ErrCodeSubscribeFailed, fmt.Sprintf("failed to subscribe klines of %s", kline.Symbol), err)
		}
	}

	return nil
}

// bind creates and initializes one strategy per quote instrument.
func (e *Engine) bind() ([]*binding, error) {
	if e.config.Strategy == "" {
		e.logger.Warn("No strategy configured, the engine only follows market data")

		return []*binding{}, nil
	}

	bindings := make([]*binding, 0, len(e.config.Quotes))

	for _, symbol := range e.config.Quotes {
		snapshot, ok := e.session.Feed.Snapshot(symbol)
		if !ok {
			return nil, errors.Newf(errors.ErrCodeEngineInitFailed, "no snapshot for subscribed instrument %s", symbol)
		}

		instance, err := e.deps.Strategies.New(e.config.Strategy, e.config.StrategyParams)
		if err != nil {
			return nil, err
		}

		err = instance.Init(strategy.MarketContext{
			Symbol:   symbol,
			Snapshot: snapshot,
			Accounts: e.session.Accounts,
			Broker:   e.session.Gateway,
			Logger:   e.logger.Named(instance.Name()).With(zap.String("symbol", symbol)),
		})
		if err != nil {
			return nil, errors.Ensure(errors.ErrCodeStrategyInitFailed, fmt.Sprintf("failed to initialize strategy %s for %s", instance.Name(), symbol), err)
		}

		bindings = append(bindings, &binding{
			symbol:       symbol,
			snapshot:     snapshot,
			strategy:     instance,
			lastRevision: snapshot.Revision(),
		})
	}

	return bindings, nil
}

func (e *Engine) loop(ctx context.Context, callbacks Callbacks) error {
	feed := e.session.Feed
	iteration := 0

	for {
		updated, err := feed.WaitForUpdate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return errors.Ensure(errors.ErrCodeFeedClosed, "market data feed failed", err)
		}

		if !updated {
			if ctx.Err() != nil {
				e.logger.Info("Engine cancelled")
			} else {
				e.logger.Info("Market data feed closed")
			}

			return nil
		}

		iteration++

		e.iterate(ctx, callbacks)

		if err := e.registry.AdvanceAll(ctx); err != nil {
			e.reportError(callbacks, err)
		}

		if callbacks.OnIteration != nil {
			if err := (*callbacks.OnIteration)(iteration); err != nil {
				return errors.Wrap(errors.ErrCodeCallbackFailed, "iteration callback failed", err)
			}
		}
	}
}

// iterate executes the strategies whose snapshot moved and converges their decisions.
func (e *Engine) iterate(ctx context.Context, callbacks Callbacks) {
	due := []*binding{}

	for _, b := range e.bindings {
		if b.disabled {
			continue
		}

		if revision := b.snapshot.Revision(); revision != b.lastRevision {
			b.lastRevision = revision
			due = append(due, b)
		}
	}

	if len(due) == 0 {
		return
	}

	results := e.evaluate(due)

	for i, b := range due {
		e.handleResult(ctx, callbacks, b, results[i])
	}
}

// evaluate runs Execution on every due binding. Results keep the order of due.
func (e *Engine) evaluate(due []*binding) []executionResult {
	results := make([]executionResult, len(due))

	if e.config.Parallelism <= 1 || len(due) == 1 {
		for i, b := range due {
			results[i] = execute(b.strategy)
		}

		return results
	}

	var group errgroup.Group
	group.SetLimit(e.config.Parallelism)

	for i, b := range due {
		group.Go(func() error {
			results[i] = execute(b.strategy)

			return nil
		})
	}

	_ = group.Wait()

	return results
}

func execute(s strategy.Strategy) (result executionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = executionResult{
				target: optional.None[int](),
				err:    errors.Newf(errors.ErrCodeStrategyPanic, "strategy %s panicked: %v", s.Name(), r),
			}
		}
	}()

	target, err := s.Execution()

	return executionResult{target: target, err: err}
}

func (e *Engine) handleResult(ctx context.Context, callbacks Callbacks, b *binding, result executionResult) {
	log := e.logger.With(zap.String("symbol", b.symbol), zap.String("strategy", b.strategy.Name()))

	if result.err != nil {
		if errors.IsInsufficientDataError(result.err) {
			log.Debug("Strategy is warming up", zap.Error(result.err))

			return
		}

		err := errors.Ensure(errors.ErrCodeStrategyRuntimeError, "strategy execution failed", result.err)
		b.failures++

		log.Error("Strategy execution failed", zap.Int("consecutive_failures", b.failures), zap.Error(err))

		if callbacks.OnStrategyError != nil {
			(*callbacks.OnStrategyError)(b.strategy.Name(), b.symbol, err)
		}

		if e.config.MaxStrategyFailures > 0 && b.failures >= e.config.MaxStrategyFailures {
			e.mu.Lock()
			b.disabled = true
			e.mu.Unlock()

			log.Warn("Strategy disabled after repeated failures", zap.Int("failures", b.failures))
			e.reportError(callbacks, errors.Newf(errors.ErrCodeStrategyDisabled,
				"strategy %s for %s disabled after %d consecutive failures", b.strategy.Name(), b.symbol, b.failures))
		}

		return
	}

	b.failures = 0

	if result.target.IsNone() {
		return
	}

	target := result.target.Unwrap()
	log.Debug("Strategy decided target", zap.Int("target", target))

	if callbacks.OnDecision != nil {
		(*callbacks.OnDecision)(b.symbol, target)
	}

	for _, task := range e.registry.TasksForSymbol(b.symbol) {
		if err := task.Converge(ctx, target); err != nil {
			log.Warn("Failed to converge position", zap.String("account", task.AccountID()), zap.Error(err))
			e.reportError(callbacks, err)
		}
	}
}

func (e *Engine) reportError(callbacks Callbacks, err error) {
	if callbacks.OnError != nil {
		(*callbacks.OnError)(err)
	}
}

// shutdown drains the run: reconciliation tasks are left as they are and the session is closed.
func (e *Engine) shutdown(callbacks Callbacks) {
	e.setState(types.EngineStateDraining, callbacks)

	e.mu.RLock()
	sess := e.session
	e.mu.RUnlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			e.logger.Warn("Failed to close session", zap.Error(err))
		}
	}

	e.setState(types.EngineStateClosed, callbacks)
}
