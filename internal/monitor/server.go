// Package monitor serves a read-only HTTP view of a running engine.
package monitor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rxtech-lab/argo-futures/internal/gateway"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/reconcile"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/internal/version"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"go.uber.org/zap"
)

// Engine is the part of the engine the monitor reads.
type Engine interface {
	RunID() string
	State() types.EngineState
	Targets() []reconcile.TargetEntry
	DisabledStrategies() []string
	Accounts() []types.Account
	Broker() (gateway.Broker, bool)
}

// Status is the body of GET /status. Disabled lists instruments whose
// strategy stopped after repeated failures.
type Status struct {
	RunID      string            `json:"run_id"`
	Version    string            `json:"version"`
	State      types.EngineState `json:"state"`
	StartedAt  time.Time         `json:"started_at"`
	Iterations int               `json:"iterations"`
	Disabled   []string          `json:"disabled"`
	Decisions  map[string]int    `json:"decisions"`
	LastError  string            `json:"last_error,omitempty"`
	Accounts   []string          `json:"accounts"`
}

// Target is one row of GET /targets. Target is null before the first decision.
type Target struct {
	AccountID string `json:"account_id"`
	Symbol    string `json:"symbol"`
	Target    *int   `json:"target"`
}

// Server serves engine status. Its On* methods are meant to be wired into engine callbacks.
type Server struct {
	engine Engine
	now    func() time.Time
	logger *logger.Logger
	router *mux.Router

	httpServer *http.Server
	listener   net.Listener

	mu         sync.RWMutex
	startedAt  time.Time
	iterations int
	decisions  map[string]int
	lastError  string
}

// NewServer creates a server reading from engine.
func NewServer(engine Engine, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}

	s := &Server{
		engine:    engine,
		now:       time.Now,
		logger:    log.Named("monitor"),
		decisions: map[string]int{},
	}
	s.startedAt = s.now()

	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/targets", s.handleTargets).Methods(http.MethodGet)
	router.HandleFunc("/accounts/{account}", s.handleAccount).Methods(http.MethodGet)
	router.HandleFunc("/accounts/{account}/positions", s.handlePositions).Methods(http.MethodGet)
	router.HandleFunc("/accounts/{account}/orders", s.handleOrders).Methods(http.MethodGet)
	s.router = router

	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on address and serves in the background. ":0" picks a free port.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to listen on %s", address)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Monitor server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("Monitor listening", zap.String("address", listener.Addr().String()))

	return nil
}

// Address returns the listen address after Start.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// OnIteration records a handled feed wake-up.
func (s *Server) OnIteration(iteration int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.iterations = iteration

	return nil
}

// OnDecision records the latest decision of an instrument.
func (s *Server) OnDecision(symbol string, target int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions[symbol] = target
}

// OnError records the latest non-fatal error.
func (s *Server) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = err.Error()
}

// Status returns the current status.
func (s *Server) Status() Status {
	accounts := s.engine.Accounts()
	ids := make([]string, len(accounts))

	for i, account := range accounts {
		ids[i] = account.ID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	decisions := make(map[string]int, len(s.decisions))
	for symbol, target := range s.decisions {
		decisions[symbol] = target
	}

	return Status{
		RunID:      s.engine.RunID(),
		Version:    version.GetVersion(),
		State:      s.engine.State(),
		StartedAt:  s.startedAt,
		Iterations: s.iterations,
		Disabled:   s.engine.DisabledStrategies(),
		Decisions:  decisions,
		LastError:  s.lastError,
		Accounts:   ids,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleTargets(w http.ResponseWriter, _ *http.Request) {
	entries := s.engine.Targets()
	targets := make([]Target, len(entries))

	for i, entry := range entries {
		targets[i] = Target{AccountID: entry.AccountID, Symbol: entry.Symbol}

		if entry.Target.IsSome() {
			value := entry.Target.Unwrap()
			targets[i].Target = &value
		}
	}

	s.writeJSON(w, http.StatusOK, targets)
}

// broker resolves the account of the request, writing an error response when it cannot.
func (s *Server) broker(w http.ResponseWriter, r *http.Request) (gateway.Broker, string, bool) {
	broker, ok := s.engine.Broker()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "session is not authenticated yet")

		return nil, "", false
	}

	account := mux.Vars(r)["account"]

	for _, known := range s.engine.Accounts() {
		if known.ID == account {
			return broker, account, true
		}
	}

	s.writeError(w, http.StatusNotFound, "unknown account: "+account)

	return nil, "", false
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	broker, account, ok := s.broker(w, r)
	if !ok {
		return
	}

	info, err := broker.AccountInfo(r.Context(), account)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())

		return
	}

	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	broker, account, ok := s.broker(w, r)
	if !ok {
		return
	}

	positions, err := broker.Positions(r.Context(), account)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())

		return
	}

	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	broker, account, ok := s.broker(w, r)
	if !ok {
		return
	}

	orders, err := broker.Orders(r.Context(), account)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())

		return
	}

	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to write monitor response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
