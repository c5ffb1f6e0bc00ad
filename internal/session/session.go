// Package session authenticates against a trading venue and hands out the
// account list, market data feed and order gateway of one trading run.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/rxtech-lab/argo-futures/internal/gateway"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/marketdata"
	"github.com/rxtech-lab/argo-futures/internal/types"
)

// Mode selects how a session is assembled.
type Mode string

const (
	// ModePaper trades a local simulated account against public market data.
	ModePaper Mode = "paper"
	// ModeLive trades one or more real brokerage accounts.
	ModeLive Mode = "live"
	// ModeExchangeSim trades accounts of the exchange's simulation environment.
	ModeExchangeSim Mode = "exchange-sim"
	// ModeBacktest replays stored bars against a simulated account.
	ModeBacktest Mode = "backtest"
)

// ModeInfo describes a session mode.
type ModeInfo struct {
	Name           string                  `json:"name"`
	DisplayName    string                  `json:"displayName"`
	Description    string                  `json:"description"`
	IsPaperTrading bool                    `json:"isPaperTrading"`
	Capability     types.AccountCapability `json:"capability"`
}

var modeRegistry = map[Mode]ModeInfo{
	ModePaper: {
		Name:           string(ModePaper),
		DisplayName:    "Paper Trading",
		Description:    "Simulated account matched against live Binance futures market data",
		IsPaperTrading: true,
		Capability:     types.AccountCapabilitySimulated,
	},
	ModeLive: {
		Name:           string(ModeLive),
		DisplayName:    "Binance Futures Live",
		Description:    "Real-funds trading on one or more Binance USD-M futures accounts",
		IsPaperTrading: false,
		Capability:     types.AccountCapabilityLive,
	},
	ModeExchangeSim: {
		Name:           string(ModeExchangeSim),
		DisplayName:    "Binance Futures Testnet",
		Description:    "Trading on accounts of the Binance futures testnet without real funds",
		IsPaperTrading: true,
		Capability:     types.AccountCapabilityCompetitionSim,
	},
	ModeBacktest: {
		Name:           string(ModeBacktest),
		DisplayName:    "Backtest",
		Description:    "Stored bars replayed against a simulated account",
		IsPaperTrading: true,
		Capability:     types.AccountCapabilityBacktest,
	},
}

// GetSupportedModes lists the session modes in a stable order.
func GetSupportedModes() []string {
	return []string{string(ModePaper), string(ModeLive), string(ModeExchangeSim), string(ModeBacktest)}
}

// GetModeInfo returns metadata for a session mode.
func GetModeInfo(mode string) (ModeInfo, error) {
	info, exists := modeRegistry[Mode(mode)]
	if !exists {
		return ModeInfo{}, fmt.Errorf("unsupported session mode: %s", mode)
	}

	return info, nil
}

// IsVenue reports whether the mode trades through brokerage accounts listed in the config.
func (m Mode) IsVenue() bool {
	return m == ModeLive || m == ModeExchangeSim
}

// Session is an authenticated trading run. Its account list is fixed.
type Session struct {
	Mode     Mode
	Accounts []types.Account
	Feed     marketdata.Feed
	Gateway  gateway.Gateway

	closers []func() error
	once    sync.Once
	err     error
}

// AccountIDs returns the account IDs in session order.
func (s *Session) AccountIDs() []string {
	ids := make([]string, len(s.Accounts))
	for i, account := range s.Accounts {
		ids[i] = account.ID
	}

	return ids
}

// Close releases the feed and every other resource of the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.once.Do(func() {
		errs := []error{}

		for i := len(s.closers) - 1; i >= 0; i-- {
			errs = append(errs, s.closers[i]())
		}

		s.err = stderrors.Join(errs...)
	})

	return s.err
}

// Provider authenticates and builds sessions.
type Provider interface {
	Authenticate(ctx context.Context, credentials Credentials) (*Session, error)
}

// Credentials carries everything needed to assemble a session.
type Credentials struct {
	Mode Mode
	// Balance seeds simulated accounts.
	Balance float64
	// Accounts are the brokerage accounts of live and exchange-sim sessions.
	Accounts []AccountCredentials
	// LotSizes converts one lot into contract quantity per symbol on Binance.
	LotSizes map[string]float64
	// Replay selects the stored bars of a backtest session.
	Replay marketdata.ReplayConfig
	Feed   marketdata.HubOptions
	Logger *logger.Logger
}

// AccountCredentials identifies one brokerage account.
type AccountCredentials struct {
	Broker string `json:"broker" yaml:"broker" jsonschema:"title=Broker,enum=binance" validate:"required,oneof=binance"`
	// Account is the API key.
	Account string `json:"account" yaml:"account" jsonschema:"title=Account,description=Broker API key" validate:"required"`
	// Password is the API secret.
	Password string `json:"password" yaml:"password" jsonschema:"title=Password,description=Broker API secret" validate:"required"`
	// Endpoint overrides the REST endpoint when set.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint" jsonschema:"title=Endpoint,description=Custom REST endpoint" validate:"omitempty,url"`
	// Name labels the account inside the session. Defaults to the API key prefix.
	Name string `json:"name,omitempty" yaml:"name" jsonschema:"title=Name"`
}
