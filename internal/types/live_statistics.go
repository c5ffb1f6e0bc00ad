package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineState represents the lifecycle phase of the engine loop.
type EngineState string

const (
	// EngineStateInitializing indicates the engine is authenticating the session.
	EngineStateInitializing EngineState = "initializing"

	// EngineStateSubscribing indicates subscriptions, tasks and strategies are being set up.
	EngineStateSubscribing EngineState = "subscribing"

	// EngineStateRunning indicates the engine is dispatching market updates to strategies.
	EngineStateRunning EngineState = "running"

	// EngineStateDraining indicates the engine is shutting down.
	EngineStateDraining EngineState = "draining"

	// EngineStateClosed indicates the session has been released.
	EngineStateClosed EngineState = "closed"
)

// RunStats contains counters for one engine run.
type RunStats struct {
	// ID is the unique identifier for this run (e.g., "run_1").
	ID string `yaml:"id" json:"id"`

	// Date is the date of this run in YYYY-MM-DD format.
	Date string `yaml:"date" json:"date"`

	// Mode is the account mode the run was started with.
	Mode string `yaml:"mode" json:"mode"`

	// Strategy is the name of the strategy driving the run.
	Strategy string `yaml:"strategy" json:"strategy"`

	SessionStart time.Time `yaml:"session_start" json:"session_start"`
	LastUpdated  time.Time `yaml:"last_updated" json:"last_updated"`

	// State is the last engine state observed.
	State EngineState `yaml:"state" json:"state"`

	Symbols  []string `yaml:"symbols" json:"symbols"`
	Accounts []string `yaml:"accounts" json:"accounts"`

	// Iterations counts feed wake-ups handled by the engine loop.
	Iterations int `yaml:"iterations" json:"iterations"`
	// Decisions counts strategy executions that returned a target.
	Decisions int `yaml:"decisions" json:"decisions"`
	// StrategyErrors counts failed strategy executions, warm-up excluded.
	StrategyErrors int `yaml:"strategy_errors" json:"strategy_errors"`

	OrdersInserted  int `yaml:"orders_inserted" json:"orders_inserted"`
	OrdersCancelled int `yaml:"orders_cancelled" json:"orders_cancelled"`
	OrdersRejected  int `yaml:"orders_rejected" json:"orders_rejected"`

	// OrdersFilePath is the path to the orders parquet file.
	OrdersFilePath string `yaml:"orders_file_path" json:"orders_file_path"`

	// TargetsFilePath is the path to the targets parquet file.
	TargetsFilePath string `yaml:"targets_file_path" json:"targets_file_path"`
}

// NewRunStats creates a new RunStats with initialized values.
func NewRunStats(runID, mode, strategy string, symbols, accounts []string) RunStats {
	now := time.Now()

	return RunStats{
		ID:           runID,
		Date:         now.Format("2006-01-02"),
		Mode:         mode,
		Strategy:     strategy,
		SessionStart: now,
		LastUpdated:  now,
		State:        EngineStateInitializing,
		Symbols:      symbols,
		Accounts:     accounts,
	}
}

// WriteRunStats writes run statistics to a YAML file.
func WriteRunStats(path string, stats RunStats) error {
	data, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run stats to file: %w", err)
	}

	return nil
}

// ReadRunStats reads run statistics from a YAML file.
func ReadRunStats(path string) (RunStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunStats{}, fmt.Errorf("failed to read run stats file: %w", err)
	}

	var stats RunStats
	if err := yaml.Unmarshal(data, &stats); err != nil {
		return RunStats{}, fmt.Errorf("failed to unmarshal run stats: %w", err)
	}

	return stats, nil
}
