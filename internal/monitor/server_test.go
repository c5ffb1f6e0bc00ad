package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-futures/internal/gateway"
	"github.com/rxtech-lab/argo-futures/internal/reconcile"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/mocks"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type fakeEngine struct {
	state    types.EngineState
	targets  []reconcile.TargetEntry
	disabled []string
	accounts []types.Account
	broker   gateway.Broker
}

func (f *fakeEngine) RunID() string { return "run-1" }
func (f *fakeEngine) State() types.EngineState { return f.state }
func (f *fakeEngine) Targets() []reconcile.TargetEntry { return f.targets }
func (f *fakeEngine) DisabledStrategies() []string { return f.disabled }
func (f *fakeEngine) Accounts() []types.Account { return f.accounts }
func (f *fakeEngine) Broker() (gateway.Broker, bool) { return f.broker, f.broker != nil }

type ServerTestSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	broker *mocks.MockBroker
	engine *fakeEngine
	server *Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.broker = mocks.NewMockBroker(s.ctrl)
	s.engine = &fakeEngine{
		state:    types.EngineStateRunning,
		accounts: []types.Account{{ID: "alpha"}, {ID: "beta"}},
		broker:   s.broker,
		disabled: []string{},
	}
	s.server = NewServer(s.engine, nil)
}

func (s *ServerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServerTestSuite) get(path string, out any) int {
	recorder := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))

	if out != nil {
		s.Require().NoError(json.Unmarshal(recorder.Body.Bytes(), out))
	}

	return recorder.Code
}

func (s *ServerTestSuite) TestStatus() {
	s.engine.disabled = []string{"ETHUSDT"}
	s.Require().NoError(s.server.OnIteration(12))
	s.server.OnDecision("BTCUSDT", 3)
	s.server.OnDecision("BTCUSDT", -1)
	s.server.OnError(fmt.Errorf("order rejected"))

	var status Status
	s.Equal(http.StatusOK, s.get("/status", &status))

	s.Equal("run-1", status.RunID)
	s.Equal(types.EngineStateRunning, status.State)
	s.Equal(12, status.Iterations)
	s.Equal(map[string]int{"BTCUSDT": -1}, status.Decisions)
	s.Equal([]string{"ETHUSDT"}, status.Disabled)
	s.Equal("order rejected", status.LastError)
	s.Equal([]string{"alpha", "beta"}, status.Accounts)
}

func (s *ServerTestSuite) TestTargets() {
	s.engine.targets = []reconcile.TargetEntry{
		{AccountID: "alpha", Symbol: "BTCUSDT", Target: optional.Some(0)},
		{AccountID: "beta", Symbol: "BTCUSDT", Target: optional.None[int]()},
	}

	var targets []Target
	s.Equal(http.StatusOK, s.get("/targets", &targets))

	s.Require().Len(targets, 2)
	s.Require().NotNil(targets[0].Target)
	s.Equal(0, *targets[0].Target)
	s.Nil(targets[1].Target)
}

func (s *ServerTestSuite) TestAccountEndpoints() {
	s.broker.EXPECT().AccountInfo(gomock.Any(), "alpha").Return(types.AccountInfo{AccountID: "alpha", Balance: 1000}, nil)
	s.broker.EXPECT().Positions(gomock.Any(), "alpha").Return(map[string]types.Position{
		"BTCUSDT": {Symbol: "BTCUSDT", LongHistory: 2},
	}, nil)
	s.broker.EXPECT().Orders(gomock.Any(), "beta").Return(nil, fmt.Errorf("timeout"))

	var info types.AccountInfo
	s.Equal(http.StatusOK, s.get("/accounts/alpha", &info))
	s.Equal(1000.0, info.Balance)

	var positions map[string]types.Position
	s.Equal(http.StatusOK, s.get("/accounts/alpha/positions", &positions))
	s.Equal(2, positions["BTCUSDT"].LongHistory)

	var failure map[string]string
	s.Equal(http.StatusBadGateway, s.get("/accounts/beta/orders", &failure))
	s.Equal("timeout", failure["error"])

	s.Equal(http.StatusNotFound, s.get("/accounts/gamma/orders", &failure))
}

func (s *ServerTestSuite) TestNotAuthenticated() {
	s.engine.broker = nil

	var failure map[string]string
	s.Equal(http.StatusServiceUnavailable, s.get("/accounts/alpha", &failure))
}

func (s *ServerTestSuite) TestStartAndStop() {
	s.Require().NoError(s.server.Start("127.0.0.1:0"))
	s.NotEmpty(s.server.Address())

	response, err := http.Get("http://" + s.server.Address() + "/status")
	s.Require().NoError(err)
	response.Body.Close()
	s.Equal(http.StatusOK, response.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s.NoError(s.server.Stop(ctx))
}
