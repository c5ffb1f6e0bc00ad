package reconcile

import (
	"context"
	stderrors "errors"
	"slices"
	"sync"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-futures/internal/gateway"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"go.uber.org/zap"
)

type taskKey struct {
	accountID string
	symbol    string
}

// TargetEntry is one row of Registry.Targets.
type TargetEntry struct {
	AccountID string
	Symbol    string
	Target    optional.Option[int]
}

// Registry holds exactly one task per (account, symbol). Tasks are created
// while the engine subscribes; after Freeze the registry only serves lookups.
type Registry struct {
	mu        sync.RWMutex
	gateway   gateway.Gateway
	snapshots SnapshotSource
	policy    policy
	observer  Observer
	logger    *logger.Logger
	accounts  []string
	quotes    []string
	tasks     map[taskKey]*Task
	order     []taskKey
	frozen    bool
}

// RegistryConfig wires a registry.
type RegistryConfig struct {
	Gateway   gateway.Gateway
	Snapshots SnapshotSource
	// Accounts in configuration order
	Accounts []types.Account
	// Quotes lists the subscribed quote instruments in configuration order
	Quotes   []string
	Options  Options
	Observer Observer
	Logger   *logger.Logger
}

// NewRegistry validates the order policy and creates an empty registry.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	p, err := config.Options.compile()
	if err != nil {
		return nil, err
	}

	if config.Gateway == nil || config.Snapshots == nil {
		return nil, errors.New(errors.ErrCodeMissingParameter, "reconcile registry needs a gateway and a snapshot source")
	}

	log := config.Logger
	if log == nil {
		log = logger.NewNop()
	}

	observer := config.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	accounts := make([]string, len(config.Accounts))
	for i, account := range config.Accounts {
		accounts[i] = account.ID
	}

	return &Registry{
		gateway:   config.Gateway,
		snapshots: config.Snapshots,
		policy:    p,
		observer:  observer,
		logger:    log.Named("reconcile"),
		accounts:  accounts,
		quotes:    append([]string(nil), config.Quotes...),
		tasks:     map[taskKey]*Task{},
	}, nil
}

// SetTask returns the task of (accountID, symbol), creating it if needed.
func (r *Registry) SetTask(accountID, symbol string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.setTaskLocked(accountID, symbol)
}

func (r *Registry) setTaskLocked(accountID, symbol string) (*Task, error) {
	key := taskKey{accountID: accountID, symbol: symbol}
	if task, ok := r.tasks[key]; ok {
		return task, nil
	}

	if r.frozen {
		return nil, errors.Newf(errors.ErrCodeEngineState, "cannot create task %s/%s after subscription finished", accountID, symbol)
	}

	if !slices.Contains(r.accounts, accountID) {
		return nil, errors.Newf(errors.ErrCodeUnknownAccount, "unknown account: %s", accountID)
	}

	if symbol == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "task symbol is empty")
	}

	task := newTask(accountID, symbol, r.gateway, r.snapshots, r.policy, r.observer, r.logger)
	r.tasks[key] = task
	r.order = append(r.order, key)

	r.logger.Debug("Reconciliation task created",
		zap.String("account", accountID),
		zap.String("symbol", symbol),
		zap.String("price", string(r.policy.price)),
		zap.String("offset_priority", r.policy.priority.String()),
	)

	return task, nil
}

// SetTasksForAllQuotes creates the tasks of one account for every quote instrument.
func (r *Registry) SetTasksForAllQuotes(accountID string) ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := make([]*Task, 0, len(r.quotes))

	for _, symbol := range r.quotes {
		task, err := r.setTaskLocked(accountID, symbol)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, task)
	}

	return tasks, nil
}

// SetTasksForAllAccounts creates a task for every account x quote instrument.
func (r *Registry) SetTasksForAllAccounts() ([]*Task, error) {
	tasks := []*Task{}

	for _, accountID := range r.accounts {
		created, err := r.SetTasksForAllQuotes(accountID)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, created...)
	}

	return tasks, nil
}

// Freeze stops task creation. Lookups keep working.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
}

// Task looks up the task of (accountID, symbol).
func (r *Registry) Task(accountID, symbol string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[taskKey{accountID: accountID, symbol: symbol}]

	return task, ok
}

// TasksForSymbol returns the task of every account trading symbol, in account order.
func (r *Registry) TasksForSymbol(symbol string) []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := []*Task{}

	for _, accountID := range r.accounts {
		if task, ok := r.tasks[taskKey{accountID: accountID, symbol: symbol}]; ok {
			tasks = append(tasks, task)
		}
	}

	return tasks
}

// Tasks returns every task in creation order.
func (r *Registry) Tasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]*Task, len(r.order))
	for i, key := range r.order {
		tasks[i] = r.tasks[key]
	}

	return tasks
}

// Len returns the number of tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tasks)
}

// AdvanceAll advances every task in creation order. A failing task does not
// stop the others; all failures are returned joined.
func (r *Registry) AdvanceAll(ctx context.Context) error {
	var errs []error

	for _, task := range r.Tasks() {
		if err := task.Advance(ctx); err != nil {
			r.logger.Warn("Failed to advance reconciliation task",
				zap.String("account", task.AccountID()),
				zap.String("symbol", task.Symbol()),
				zap.Error(err),
			)

			errs = append(errs, err)
		}
	}

	return stderrors.Join(errs...)
}

// Targets returns the current target of every task in creation order.
func (r *Registry) Targets() []TargetEntry {
	tasks := r.Tasks()
	entries := make([]TargetEntry, len(tasks))

	for i, task := range tasks {
		entries[i] = TargetEntry{
			AccountID: task.AccountID(),
			Symbol:    task.Symbol(),
			Target:    task.Target(),
		}
	}

	return entries
}
