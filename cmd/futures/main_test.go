package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rxtech-lab/argo-futures/internal/config"
	"github.com/rxtech-lab/argo-futures/internal/gateway"
	"github.com/rxtech-lab/argo-futures/internal/journal"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/marketdata"
	"github.com/rxtech-lab/argo-futures/internal/session"
	"github.com/rxtech-lab/argo-futures/internal/strategy"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/mocks"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type FuturesCmdTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	provider *mocks.MockProvider
	dir      string
}

func TestFuturesCmdSuite(t *testing.T) {
	suite.Run(t, new(FuturesCmdTestSuite))
}

func (s *FuturesCmdTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.provider = mocks.NewMockProvider(s.ctrl)
	s.dir = s.T().TempDir()
}

func (s *FuturesCmdTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *FuturesCmdTestSuite) config() *config.Config {
	cfg, err := config.Parse([]byte(`
version: "1.0"
mode: paper
quotes: [BTCUSDT]
strategy: price_logger
journal: {path: "` + filepath.ToSlash(filepath.Join(s.dir, "runs")) + `"}
monitor: {listen: "127.0.0.1:0"}
`))
	s.Require().NoError(err)

	return cfg
}

func (s *FuturesCmdTestSuite) readStats() types.RunStats {
	path := filepath.Join(s.dir, "runs")

	dates, err := os.ReadDir(path)
	s.Require().NoError(err)
	s.Require().Len(dates, 1)

	runs, err := journal.ListRuns(path, dates[0].Name())
	s.Require().NoError(err)
	s.Require().Equal([]string{"run_1"}, runs)

	stats, err := types.ReadRunStats(filepath.Join(path, dates[0].Name(), "run_1", journal.StatsFile))
	s.Require().NoError(err)

	return stats
}

func (s *FuturesCmdTestSuite) TestRunJournalsCompletedRun() {
	feed := mocks.NewMockFeed(s.ctrl)
	feed.EXPECT().SubscribeQuote(gomock.Any(), "BTCUSDT").Return(nil)
	feed.EXPECT().Snapshot("BTCUSDT").Return(types.NewSnapshot("BTCUSDT"), true).AnyTimes()
	feed.EXPECT().WaitForUpdate(gomock.Any()).Return(false, nil)

	s.provider.EXPECT().Authenticate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, credentials session.Credentials) (*session.Session, error) {
			s.Equal(session.ModePaper, credentials.Mode)

			return &session.Session{
				Mode:     session.ModePaper,
				Accounts: []types.Account{{ID: "paper"}},
				Feed:     feed,
				Gateway:  gateway.NewSimGateway([]string{"paper"}, gateway.DefaultSimConfig(credentials.Balance), nil),
			}, nil
		})

	s.Require().NoError(run(context.Background(), s.config(), s.provider, logger.NewNop()))

	stats := s.readStats()
	s.Equal(types.EngineStateClosed, stats.State)
	s.Equal("price_logger", stats.Strategy)
	s.Equal([]string{"paper"}, stats.Accounts)
	s.Equal([]string{"BTCUSDT"}, stats.Symbols)
}

func (s *FuturesCmdTestSuite) TestRunReturnsAuthError() {
	s.provider.EXPECT().Authenticate(gomock.Any(), gomock.Any()).
		Return(nil, errors.New(errors.ErrCodeAuthFailed, "bad key"))

	err := run(context.Background(), s.config(), s.provider, logger.NewNop())
	s.True(errors.IsAuthError(err))

	stats := s.readStats()
	s.Equal(types.EngineStateClosed, stats.State)
	s.Equal(0, stats.Iterations)
}

func (s *FuturesCmdTestSuite) TestBacktestOnGeneratedBars() {
	generator := mocks.NewDataGenerator(42)
	generated := mocks.DefaultConfig()
	generated.Count = 240

	writer := marketdata.NewBarWriter(filepath.Join(s.dir, "bars.parquet"))
	s.Require().NoError(writer.Initialize())

	defer writer.Close()

	for _, bar := range generator.Generate(generated) {
		s.Require().NoError(writer.Write(bar))
	}

	data, err := writer.Finalize()
	s.Require().NoError(err)

	cfg, err := config.Parse([]byte(`
version: "1.0"
mode: backtest
balance: 1000000
quotes: [BTCUSDT]
klines: {BTCUSDT: [60, 10]}
strategy: dual_thrust
strategy_params: {n: 3, volume: 1}
backtest_data: "` + filepath.ToSlash(data) + `"
journal: {path: "` + filepath.ToSlash(filepath.Join(s.dir, "runs")) + `"}
`))
	s.Require().NoError(err)

	s.Require().NoError(run(context.Background(), cfg, session.NewProvider(), logger.NewNop()))

	stats := s.readStats()
	s.Equal(types.EngineStateClosed, stats.State)
	s.Equal("backtest", stats.Mode)
	s.Equal([]string{session.BacktestAccountID}, stats.Accounts)
	s.Positive(stats.Iterations)
	s.Zero(stats.StrategyErrors)
}

func (s *FuturesCmdTestSuite) TestWriteSchemas() {
	registry := strategy.DefaultRegistry()

	paths, err := writeSchemas(filepath.Join(s.dir, "schema"), registry)
	s.Require().NoError(err)
	s.Len(paths, 1+len(registry.Names()))
	s.Equal(filepath.Join(s.dir, "schema", configSchemaFile), paths[0])

	for _, path := range paths {
		data, err := os.ReadFile(path)
		s.Require().NoError(err)
		s.NotEmpty(data)
	}

	s.FileExists(filepath.Join(s.dir, "schema", "strategy-"+strategy.DualThrustName+".json"))
}
