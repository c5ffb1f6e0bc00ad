// Package journal persists what an engine run did: every target handed to a
// reconciliation task, every order submitted, and run counters.
//
// Each run writes to its own folder:
//
//	{path}/{YYYY-MM-DD}/run_N/orders.parquet
//	{path}/{YYYY-MM-DD}/run_N/targets.parquet
//	{path}/{YYYY-MM-DD}/run_N/stats.yaml
package journal

import (
	stderrors "errors"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"go.uber.org/zap"
)

const (
	OrdersFile  = "orders.parquet"
	TargetsFile = "targets.parquet"
	StatsFile   = "stats.yaml"
)

// Config describes the run being journaled.
type Config struct {
	Path     string
	Mode     string
	Strategy string
	Symbols  []string
	Accounts []string
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *logger.Logger
}

// Journal records a run. It is safe for concurrent use.
type Journal struct {
	dir     *RunDir
	orders  *OrdersWriter
	targets *TargetsWriter
	now     func() time.Time
	logger  *logger.Logger

	mu    sync.Mutex
	stats types.RunStats
}

// Open creates the run folder and its writers.
func Open(config Config) (*Journal, error) {
	if config.Path == "" {
		return nil, errors.New(errors.ErrCodeJournalInitFailed, "journal path is empty")
	}

	now := config.Now
	if now == nil {
		now = time.Now
	}

	log := config.Logger
	if log == nil {
		log = logger.NewNop()
	}

	dir, err := NewRunDir(config.Path, now())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeJournalInitFailed, "failed to create run folder", err)
	}

	orders := NewOrdersWriter(dir.FilePath(OrdersFile))
	if err := orders.Initialize(); err != nil {
		return nil, err
	}

	targets := NewTargetsWriter(dir.FilePath(TargetsFile))
	if err := targets.Initialize(); err != nil {
		orders.Close()

		return nil, err
	}

	stats := types.NewRunStats(dir.ID(), config.Mode, config.Strategy, config.Symbols, config.Accounts)
	stats.Date = dir.Date()
	stats.SessionStart = now()
	stats.LastUpdated = stats.SessionStart
	stats.OrdersFilePath = orders.OutputPath()
	stats.TargetsFilePath = targets.OutputPath()

	j := &Journal{
		dir:     dir,
		orders:  orders,
		targets: targets,
		now:     now,
		logger:  log.Named("journal").With(zap.String("run_id", dir.ID())),
		stats:   stats,
	}

	if err := j.writeStats(); err != nil {
		j.closeWriters()

		return nil, err
	}

	j.logger.Info("Journal opened", zap.String("path", dir.Path()))

	return j, nil
}

// Dir returns the run folder.
func (j *Journal) Dir() *RunDir {
	return j.dir
}

// Stats returns a copy of the run counters.
func (j *Journal) Stats() types.RunStats {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.stats
}

// OnTarget records a target handed to a reconciliation task.
func (j *Journal) OnTarget(accountID, symbol string, target int) {
	err := j.targets.Write(TargetEntry{Time: j.now(), AccountID: accountID, Symbol: symbol, Target: target})
	if err != nil {
		j.logger.Warn("Failed to record target", zap.String("symbol", symbol), zap.Error(err))
	}
}

// OnOrder records a submitted order. Rejected orders are recorded with their reason.
func (j *Journal) OnOrder(order types.Order, err error) {
	j.mu.Lock()

	switch {
	case err == nil:
		j.stats.OrdersInserted++
	case order.Status == types.OrderStatusRejected || errors.HasCode(err, errors.ErrCodeOrderRejected):
		j.stats.OrdersRejected++
	}

	j.mu.Unlock()

	if order.OrderID == "" {
		return
	}

	if order.Message == "" && err != nil {
		order.Message = err.Error()
	}

	if writeErr := j.orders.Write(order); writeErr != nil {
		j.logger.Warn("Failed to record order", zap.String("order_id", order.OrderID), zap.Error(writeErr))
	}
}

// OnCancel counts successful cancellations.
func (j *Journal) OnCancel(_, _ string, err error) {
	if err != nil {
		return
	}

	j.mu.Lock()
	j.stats.OrdersCancelled++
	j.mu.Unlock()
}

// SetAccounts records the accounts of the authenticated session.
func (j *Journal) SetAccounts(accounts []string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stats.Accounts = accounts
}

// OnStateChange records the engine state and rewrites the stats file.
func (j *Journal) OnStateChange(state types.EngineState) {
	j.mu.Lock()
	j.stats.State = state
	j.mu.Unlock()

	if err := j.writeStats(); err != nil {
		j.logger.Warn("Failed to write run stats", zap.Error(err))
	}
}

// OnIteration counts a feed wake-up.
func (j *Journal) OnIteration() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stats.Iterations++
}

// OnDecision counts a strategy execution that returned a target.
func (j *Journal) OnDecision(string, int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stats.Decisions++
}

// OnStrategyError counts a failed strategy execution.
func (j *Journal) OnStrategyError(string, string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stats.StrategyErrors++
}

func (j *Journal) writeStats() error {
	j.mu.Lock()
	j.stats.LastUpdated = j.now()
	stats := j.stats
	j.mu.Unlock()

	if err := types.WriteRunStats(j.dir.FilePath(StatsFile), stats); err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to write run stats", err)
	}

	return nil
}

func (j *Journal) closeWriters() error {
	return stderrors.Join(j.orders.Close(), j.targets.Close())
}

// Close writes the final stats and releases the writers.
func (j *Journal) Close() error {
	err := stderrors.Join(j.writeStats(), j.closeWriters())

	stats := j.Stats()
	j.logger.Info("Journal closed",
		zap.Int("iterations", stats.Iterations),
		zap.Int("decisions", stats.Decisions),
		zap.Int("orders_inserted", stats.OrdersInserted),
		zap.Int("orders_rejected", stats.OrdersRejected),
	)

	return err
}
