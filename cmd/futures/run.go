package main

import (
	"context"
	stderrors "errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rxtech-lab/argo-futures/internal/config"
	"github.com/rxtech-lab/argo-futures/internal/engine"
	"github.com/rxtech-lab/argo-futures/internal/journal"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/monitor"
	"github.com/rxtech-lab/argo-futures/internal/reconcile"
	"github.com/rxtech-lab/argo-futures/internal/session"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	log, err := logger.NewLoggerWithOptions(cfg.LoggerOptions())
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, session.NewProvider(), log)
}

// run wires the optional journal and monitor around one engine run.
func run(ctx context.Context, cfg *config.Config, provider session.Provider, log *logger.Logger) (err error) {
	var runJournal *journal.Journal

	if cfg.Journal.Path != "" {
		runJournal, err = journal.Open(journal.Config{
			Path:     cfg.Journal.Path,
			Mode:     string(cfg.Mode),
			Strategy: cfg.Strategy,
			Symbols:  cfg.Symbols(),
			Logger:   log,
		})
		if err != nil {
			return err
		}

		defer func() {
			err = stderrors.Join(err, runJournal.Close())
		}()
	}

	deps := engine.Dependencies{
		Provider:    provider,
		Credentials: cfg.Credentials(log),
		Logger:      log,
	}
	if runJournal != nil {
		deps.Observer = runJournal
	}

	eng, err := engine.New(cfg.EngineConfig(), deps)
	if err != nil {
		return err
	}

	var status *monitor.Server

	if cfg.Monitor.Listen != "" {
		status = monitor.NewServer(eng, log)
		if err := status.Start(cfg.Monitor.Listen); err != nil {
			return err
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := status.Stop(shutdownCtx); err != nil {
				log.Warn("Failed to stop monitor", zap.Error(err))
			}
		}()
	}

	return eng.Run(ctx, buildCallbacks(eng, runJournal, status, log))
}

// buildCallbacks fans engine events out to the journal, the monitor and the log.
// runJournal and status may be nil.
func buildCallbacks(eng *engine.Engine, runJournal *journal.Journal, status *monitor.Server, log *logger.Logger) engine.Callbacks {
	onStateChange := engine.OnStateChangeCallback(func(state types.EngineState) {
		log.Info("Engine state changed", zap.String("state", string(state)))

		if runJournal == nil {
			return
		}

		if state == types.EngineStateSubscribing {
			runJournal.SetAccounts(accountIDs(eng.Accounts()))
		}

		runJournal.OnStateChange(state)
	})

	onIteration := engine.OnIterationCallback(func(iteration int) error {
		if runJournal != nil {
			runJournal.OnIteration()
		}

		if status != nil {
			return status.OnIteration(iteration)
		}

		return nil
	})

	onDecision := engine.OnDecisionCallback(func(symbol string, target int) {
		log.Info("Decision", zap.String("symbol", symbol), zap.Int("target", target))

		if runJournal != nil {
			runJournal.OnDecision(symbol, target)
		}

		if status != nil {
			status.OnDecision(symbol, target)
		}
	})

	onStrategyError := engine.OnStrategyErrorCallback(func(strategyName, symbol string, err error) {
		if runJournal != nil {
			runJournal.OnStrategyError(strategyName, symbol, err)
		}

		if status != nil {
			status.OnError(err)
		}
	})

	onError := engine.OnErrorCallback(func(err error) {
		if status != nil {
			status.OnError(err)
		}
	})

	// errors are already logged by the engine
	onStop := engine.OnEngineStopCallback(func(err error) {
		if err == nil {
			log.Info("Engine stopped")
		}
	})

	return engine.Callbacks{
		OnStateChange:   &onStateChange,
		OnIteration:     &onIteration,
		OnDecision:      &onDecision,
		OnStrategyError: &onStrategyError,
		OnError:         &onError,
		OnEngineStop:    &onStop,
	}
}

func accountIDs(accounts []types.Account) []string {
	ids := make([]string, len(accounts))
	for i, account := range accounts {
		ids[i] = account.ID
	}

	return ids
}

var _ reconcile.Observer = (*journal.Journal)(nil)
