package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/argo-futures/internal/gateway"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"go.uber.org/zap"
)

const (
	// DefaultMaxRetries is how many times a transient source failure is retried.
	DefaultMaxRetries = 5
	// maxBatch bounds the updates applied by one WaitForUpdate.
	maxBatch = 4096
)

// HubOptions configures a Hub.
type HubOptions struct {
	// MaxRetries for transient source errors. Zero means DefaultMaxRetries,
	// a negative value disables retrying.
	MaxRetries int
	// RetryInterval is the first backoff interval. Defaults to 500ms.
	RetryInterval time.Duration
	// MaxRetryInterval caps the backoff. Defaults to 30s.
	MaxRetryInterval time.Duration
	Logger           *logger.Logger
}

type event struct {
	update Update
	err    error
	done   bool
}

type klineKey struct {
	symbol   string
	duration time.Duration
}

type klineRoute struct {
	series *types.KlineSeries
	owner  *types.Snapshot
}

// Hub implements Feed on top of a Source.
type Hub struct {
	mu        sync.Mutex
	source    Source
	options   HubOptions
	logger    *logger.Logger
	snapshots map[string]*types.Snapshot
	symbols   []string
	klines    map[klineKey][]klineRoute
	subs      Subscriptions
	listeners []gateway.SnapshotListener

	events  chan event
	started bool
	closed  bool
	err     error
	cancel  context.CancelFunc
	done    chan struct{}
}

// Verify Hub implements Feed.
var _ Feed = (*Hub)(nil)

// NewHub creates a feed over source. Nothing is streamed before the first WaitForUpdate.
func NewHub(source Source, options HubOptions) *Hub {
	if options.MaxRetries == 0 {
		options.MaxRetries = DefaultMaxRetries
	}

	if options.RetryInterval <= 0 {
		options.RetryInterval = 500 * time.Millisecond
	}

	if options.MaxRetryInterval <= 0 {
		options.MaxRetryInterval = 30 * time.Second
	}

	log := options.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Hub{
		source:    source,
		options:   options,
		logger:    log.Named("marketdata").With(zap.String("source", source.Name())),
		snapshots: map[string]*types.Snapshot{},
		klines:    map[klineKey][]klineRoute{},
		events:    make(chan event, 256),
	}
}

// AddListener registers a listener notified after every applied batch, for
// each snapshot that changed.
func (h *Hub) AddListener(listener gateway.SnapshotListener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.listeners = append(h.listeners, listener)
}

func (h *Hub) snapshot(symbol string) *types.Snapshot {
	snapshot, ok := h.snapshots[symbol]
	if !ok {
		snapshot = types.NewSnapshot(symbol)
		h.snapshots[symbol] = snapshot
		h.symbols = append(h.symbols, symbol)
	}

	return snapshot
}

func (h *Hub) checkSubscribable() error {
	if h.closed {
		return errors.New(errors.ErrCodeFeedClosed, "market data feed is closed")
	}

	if h.started {
		return errors.New(errors.ErrCodeSubscribeFailed, "cannot subscribe after streaming started")
	}

	return nil
}

func (h *Hub) SubscribeQuote(_ context.Context, symbols ...string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkSubscribable(); err != nil {
		return err
	}

	for _, symbol := range symbols {
		if symbol == "" {
			return errors.New(errors.ErrCodeSubscribeFailed, "quote symbol is empty")
		}

		snapshot := h.snapshot(symbol)
		if snapshot.Quote != nil {
			continue
		}

		snapshot.Quote = &types.Quote{Symbol: symbol}
		h.subs.Quotes = append(h.subs.Quotes, symbol)

		h.logger.Info("Subscribed quote", zap.String("symbol", symbol))
	}

	return nil
}

func (h *Hub) SubscribeKline(ctx context.Context, symbols []string, duration time.Duration, length int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkSubscribable(); err != nil {
		return err
	}

	if len(symbols) == 0 {
		return errors.New(errors.ErrCodeSubscribeFailed, "kline subscription has no symbols")
	}

	if duration <= 0 || length <= 0 {
		return errors.Newf(errors.ErrCodeSubscribeFailed, "kline subscription needs a positive duration and length, got %s and %d", duration, length)
	}

	primary := h.snapshot(symbols[0])
	if primary.Klines != nil {
		if primary.Klines.Duration == duration && primary.Klines.Cap() == length && len(symbols) == 1 {
			return nil
		}

		return errors.Newf(errors.ErrCodeSubscribeFailed, "%s already has a kline series", symbols[0])
	}

	series := types.NewKlineSeries(symbols[0], duration, length)
	primary.Klines = series

	type target struct {
		symbol string
		series *types.KlineSeries
	}

	routes := []target{{symbols[0], series}}
	for _, symbol := range symbols[1:] {
		routes = append(routes, target{symbol, series.AddLeg(symbol)})
	}

	for _, route := range routes {
		key := klineKey{symbol: route.symbol, duration: duration}
		if len(h.klines[key]) == 0 {
			h.subs.Klines = append(h.subs.Klines, KlineSubscription{Symbol: route.symbol, Duration: duration})
		}

		h.klines[key] = append(h.klines[key], klineRoute{series: route.series, owner: primary})

		history, err := h.source.History(ctx, route.symbol, duration, length)
		if err != nil {
			return errors.Ensure(errors.ErrCodeSubscribeFailed, fmt.Sprintf("failed to load %s history of %s", duration, route.symbol), err)
		}

		for _, bar := range history {
			route.series.Upsert(bar)
		}
	}

	if series.Len() > 0 {
		primary.Bump()
	}

	h.logger.Info("Subscribed klines",
		zap.Strings("symbols", symbols),
		zap.Duration("duration", duration),
		zap.Int("length", length),
		zap.Int("history", series.Len()),
	)

	return nil
}

func (h *Hub) SubscribeTick(_ context.Context, symbol string, length int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkSubscribable(); err != nil {
		return err
	}

	if symbol == "" || length <= 0 {
		return errors.Newf(errors.ErrCodeSubscribeFailed, "tick subscription needs a symbol and a positive length, got %q and %d", symbol, length)
	}

	snapshot := h.snapshot(symbol)
	if snapshot.Ticks != nil {
		return nil
	}

	snapshot.Ticks = types.NewTickSeries(symbol, length)
	h.subs.Ticks = append(h.subs.Ticks, symbol)

	h.logger.Info("Subscribed ticks", zap.String("symbol", symbol), zap.Int("length", length))

	return nil
}

// Snapshot returns the snapshot of a subscribed symbol.
func (h *Hub) Snapshot(symbol string) (*types.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	snapshot, ok := h.snapshots[symbol]

	return snapshot, ok
}

// Symbols lists subscribed symbols in subscription order.
func (h *Hub) Symbols() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.symbols...)
}

func (h *Hub) start() {
	if h.started {
		return
	}

	h.started = true

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})

	go h.run(ctx, h.subs)
}

func (h *Hub) run(ctx context.Context, subs Subscriptions) {
	defer close(h.done)

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = h.options.RetryInterval
	exponential.MaxInterval = h.options.MaxRetryInterval
	exponential.MaxElapsedTime = 0

	retries := uint64(0)
	if h.options.MaxRetries > 0 {
		retries = uint64(h.options.MaxRetries)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(exponential, retries), ctx)

	emit := func(u Update) bool {
		select {
		case h.events <- event{update: u}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	operation := func() error {
		delivered := false
		err := h.source.Run(ctx, subs, func(u Update) bool {
			delivered = true

			return emit(u)
		})

		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.HasCode(err, errors.ErrCodeFeedTransient):
			// a connection that worked for a while starts a fresh retry budget
			if delivered {
				policy.Reset()
			}

			return err
		default:
			return backoff.Permanent(err)
		}
	}

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		h.logger.Warn("Market data source failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	})

	if ctx.Err() != nil {
		return
	}

	if err != nil {
		if errors.HasCode(err, errors.ErrCodeFeedTransient) {
			err = errors.Wrap(errors.ErrCodeFeedClosed, "market data source retries exhausted", err)
		} else {
			err = errors.Ensure(errors.ErrCodeFeedClosed, "market data source failed", err)
		}

		h.logger.Error("Market data source stopped", zap.Error(err))
	} else {
		h.logger.Info("Market data source finished")
	}

	select {
	case h.events <- event{err: err, done: true}:
	case <-ctx.Done():
	}
}

// WaitForUpdate applies the next batch of updates. It returns true when at
// least one snapshot revision advanced.
func (h *Hub) WaitForUpdate(ctx context.Context) (bool, error) {
	h.mu.Lock()
	if h.closed {
		err := h.err
		h.mu.Unlock()

		return false, err
	}

	h.start()
	h.mu.Unlock()

	for {
		var first event

		select {
		case <-ctx.Done():
			return false, nil
		case first = <-h.events:
		}

		changed, terminal := h.applyBatch(first)

		if terminal != nil {
			h.mu.Lock()
			h.closed = true
			h.err = terminal.err
			h.mu.Unlock()

			if len(changed) == 0 {
				return false, terminal.err
			}
		}

		if len(changed) > 0 {
			h.notify(changed)

			return true, nil
		}
	}
}

// applyBatch applies first and whatever else is queued, up to a flush.
func (h *Hub) applyBatch(first event) ([]*types.Snapshot, *event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	changed := []*types.Snapshot{}
	seen := map[*types.Snapshot]bool{}

	handle := func(ev event) (stop bool, terminal *event) {
		if ev.done {
			return true, &ev
		}

		if ev.update.Kind == UpdateFlush {
			return true, nil
		}

		for _, snapshot := range h.apply(ev.update) {
			if !seen[snapshot] {
				seen[snapshot] = true
				changed = append(changed, snapshot)
			}
		}

		return false, nil
	}

	stop, terminal := handle(first)

	for n := 1; !stop && n < maxBatch; n++ {
		select {
		case ev := <-h.events:
			stop, terminal = handle(ev)
		default:
			stop = true
		}
	}

	for _, snapshot := range changed {
		snapshot.Bump()
	}

	return changed, terminal
}

// apply mutates the snapshots touched by u and returns the changed ones.
func (h *Hub) apply(u Update) []*types.Snapshot {
	switch u.Kind {
	case UpdateQuote:
		snapshot, ok := h.snapshots[u.Quote.Symbol]
		if !ok || snapshot.Quote == nil || *snapshot.Quote == u.Quote {
			return nil
		}

		quote := u.Quote
		snapshot.Quote = &quote

		return []*types.Snapshot{snapshot}
	case UpdateKline:
		changed := []*types.Snapshot{}

		for _, route := range h.klines[klineKey{symbol: u.Kline.Symbol, duration: u.Kline.Duration}] {
			if route.series.Upsert(u.Kline) {
				changed = append(changed, route.owner)
			}
		}

		return changed
	case UpdateTick:
		snapshot, ok := h.snapshots[u.Tick.Symbol]
		if !ok || snapshot.Ticks == nil {
			return nil
		}

		snapshot.Ticks.Append(u.Tick)

		return []*types.Snapshot{snapshot}
	default:
		return nil
	}
}

func (h *Hub) notify(changed []*types.Snapshot) {
	h.mu.Lock()
	listeners := append([]gateway.SnapshotListener(nil), h.listeners...)
	h.mu.Unlock()

	for _, snapshot := range changed {
		for _, listener := range listeners {
			listener.OnSnapshot(snapshot)
		}
	}
}

// Close stops the source. Snapshots stay readable.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed && h.cancel == nil {
		h.mu.Unlock()

		return nil
	}

	h.closed = true
	cancel, done := h.cancel, h.done
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	return h.source.Close()
}
