package session

import (
	"context"

	"github.com/rxtech-lab/argo-futures/internal/gateway"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/marketdata"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"go.uber.org/zap"
)

const (
	// PaperAccountID names the single account of a paper session.
	PaperAccountID = "sim"
	// BacktestAccountID names the single account of a backtest session.
	BacktestAccountID = "backtest"
)

// VenueGateway is a gateway that can verify account credentials.
type VenueGateway interface {
	gateway.Gateway
	Authenticate(ctx context.Context, accountID string) error
}

// Factories build the venue-specific parts of a session. Tests replace them.
type Factories struct {
	NewSource       func(useTestnet bool, log *logger.Logger) marketdata.Source
	NewReplaySource func(config marketdata.ReplayConfig, log *logger.Logger) (marketdata.Source, error)
	NewGateway      func(config gateway.BinanceGatewayConfig, log *logger.Logger) (VenueGateway, error)
}

// DefaultFactories connect to Binance USD-M futures and read replay files with DuckDB.
func DefaultFactories() Factories {
	return Factories{
		NewSource: func(useTestnet bool, log *logger.Logger) marketdata.Source {
			return marketdata.NewBinanceSource(useTestnet, log)
		},
		NewReplaySource: func(config marketdata.ReplayConfig, log *logger.Logger) (marketdata.Source, error) {
			return marketdata.NewReplaySource(config, log)
		},
		NewGateway: func(config gateway.BinanceGatewayConfig, log *logger.Logger) (VenueGateway, error) {
			return gateway.NewBinanceGateway(config, log)
		},
	}
}

// DefaultProvider assembles sessions for every Mode.
type DefaultProvider struct {
	factories Factories
}

// Verify DefaultProvider implements Provider.
var _ Provider = (*DefaultProvider)(nil)

// NewProvider creates a provider with the default factories.
func NewProvider() *DefaultProvider {
	return NewProviderWithFactories(DefaultFactories())
}

// NewProviderWithFactories creates a provider with custom factories.
func NewProviderWithFactories(factories Factories) *DefaultProvider {
	return &DefaultProvider{factories: factories}
}

// Authenticate builds the session of credentials.Mode. Every failure is an auth error
// and nothing is left open.
func (p *DefaultProvider) Authenticate(ctx context.Context, credentials Credentials) (*Session, error) {
	log := credentials.Logger
	if log == nil {
		log = logger.NewNop()
	}

	log = log.Named("session").With(zap.String("mode", string(credentials.Mode)))
	credentials.Feed.Logger = log

	var (
		session *Session
		err     error
	)

	switch credentials.Mode {
	case ModePaper:
		session, err = p.simulated(credentials, p.factories.NewSource(false, log), PaperAccountID, types.AccountCapabilitySimulated)
	case ModeBacktest:
		session, err = p.backtest(credentials, log)
	case ModeLive:
		session, err = p.venue(ctx, credentials, false, types.AccountCapabilityLive, log)
	case ModeExchangeSim:
		session, err = p.venue(ctx, credentials, true, types.AccountCapabilityCompetitionSim, log)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidMode, "unsupported session mode: %q", credentials.Mode)
	}

	if err != nil {
		log.Error("Authentication failed", zap.Error(err))

		return nil, err
	}

	session.Mode = credentials.Mode

	log.Info("Session ready", zap.Strings("accounts", session.AccountIDs()))

	return session, nil
}

func (p *DefaultProvider) simulated(credentials Credentials, source marketdata.Source, accountID string, capability types.AccountCapability) (*Session, error) {
	if credentials.Balance <= 0 {
		source.Close()

		return nil, errors.Newf(errors.ErrCodeAuthFailed, "simulated account needs a positive balance, got %v", credentials.Balance)
	}

	sim := gateway.NewSimGateway([]string{accountID}, gateway.DefaultSimConfig(credentials.Balance), credentials.Feed.Logger)

	hub := marketdata.NewHub(source, credentials.Feed)
	hub.AddListener(sim)

	return &Session{
		Accounts: []types.Account{{ID: accountID, Capability: capability}},
		Feed:     hub,
		Gateway:  sim,
		closers:  []func() error{hub.Close},
	}, nil
}

func (p *DefaultProvider) backtest(credentials Credentials, log *logger.Logger) (*Session, error) {
	source, err := p.factories.NewReplaySource(credentials.Replay, log)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAuthFailed, "backtest data is unavailable", err)
	}

	return p.simulated(credentials, source, BacktestAccountID, types.AccountCapabilityBacktest)
}

func (p *DefaultProvider) venue(ctx context.Context, credentials Credentials, useTestnet bool, capability types.AccountCapability, log *logger.Logger) (*Session, error) {
	if len(credentials.Accounts) == 0 {
		return nil, errors.New(errors.ErrCodeAuthFailed, "at least one account is required")
	}

	config := gateway.BinanceGatewayConfig{UseTestnet: useTestnet, LotSizes: credentials.LotSizes}

	for _, account := range credentials.Accounts {
		if account.Broker != "binance" {
			return nil, errors.Newf(errors.ErrCodeUnsupportedBroker, "unsupported broker: %q", account.Broker)
		}

		config.Accounts = append(config.Accounts, gateway.BinanceAccountConfig{
			AccountID: account.Name,
			ApiKey:    account.Account,
			SecretKey: account.Password,
			BaseURL:   account.Endpoint,
		})
	}

	gw, err := p.factories.NewGateway(config, log)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAuthFailed, "invalid account credentials", err)
	}

	accounts := make([]types.Account, 0, len(config.Accounts))

	for _, account := range config.Accounts {
		if err := gw.Authenticate(ctx, account.ID()); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeAuthFailed, err, "authentication failed for account %s", account.ID())
		}

		accounts = append(accounts, types.Account{ID: account.ID(), Capability: capability})
	}

	hub := marketdata.NewHub(p.factories.NewSource(useTestnet, log), credentials.Feed)

	return &Session{
		Accounts: accounts,
		Feed:     hub,
		Gateway:  gw,
		closers:  []func() error{hub.Close},
	}, nil
}
