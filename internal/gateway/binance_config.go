package gateway

import (
	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

// BinanceAccountConfig holds the credentials of one Binance futures account.
type BinanceAccountConfig struct {
	// AccountID names the account inside the session. Defaults to the API key prefix.
	AccountID string `json:"accountId" yaml:"account_id"`
	ApiKey    string `json:"apiKey" yaml:"api_key" jsonschema:"title=API Key,description=Binance API key" validate:"required"`
	SecretKey string `json:"secretKey" yaml:"secret_key" jsonschema:"title=Secret Key,description=Binance API secret key" validate:"required"`
	// BaseURL overrides the REST endpoint when set.
	BaseURL string `json:"baseUrl,omitempty" yaml:"base_url" jsonschema:"title=Base URL,description=Custom REST endpoint" validate:"omitempty,url"`
}

// BinanceGatewayConfig configures the Binance futures gateway.
type BinanceGatewayConfig struct {
	Accounts []BinanceAccountConfig `json:"accounts" yaml:"accounts" validate:"required,min=1,dive"`
	// UseTestnet routes every account to the futures testnet.
	UseTestnet bool `json:"useTestnet" yaml:"use_testnet"`
	// LotSizes converts one lot into contract quantity per symbol. Missing symbols use 1.
	LotSizes map[string]float64 `json:"lotSizes,omitempty" yaml:"lot_sizes" validate:"dive,gt=0"`
}

// Validate validates the BinanceGatewayConfig struct.
func (c *BinanceGatewayConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid binance gateway config", err)
	}

	seen := make(map[string]struct{}, len(c.Accounts))

	for i := range c.Accounts {
		id := c.Accounts[i].ID()
		if _, ok := seen[id]; ok {
			return errors.Newf(errors.ErrCodeInvalidAccountList, "duplicate account: %s", id)
		}

		seen[id] = struct{}{}
	}

	return nil
}

// ID returns the account name used inside the session.
func (a BinanceAccountConfig) ID() string {
	if a.AccountID != "" {
		return a.AccountID
	}

	if len(a.ApiKey) > 8 {
		return a.ApiKey[:8]
	}

	return a.ApiKey
}
