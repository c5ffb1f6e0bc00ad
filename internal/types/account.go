package types

// AccountCapability describes what kind of account a session exposes.
type AccountCapability string

const (
	// AccountCapabilitySimulated is a local paper account backed by the sim gateway.
	AccountCapabilitySimulated AccountCapability = "simulated"
	// AccountCapabilityLive routes orders to a real brokerage account.
	AccountCapabilityLive AccountCapability = "live"
	// AccountCapabilityCompetitionSim routes orders to the exchange's simulation environment.
	AccountCapabilityCompetitionSim AccountCapability = "competition-sim"
	// AccountCapabilityBacktest is a simulated account fed by stored bars.
	AccountCapabilityBacktest AccountCapability = "backtest"
)

// Account identifies a brokerage account inside a session.
// The account list of a session is fixed once authentication succeeds.
type Account struct {
	ID         string            `json:"id" yaml:"id"`
	Capability AccountCapability `json:"capability" yaml:"capability"`
}

// AccountInfo represents the current futures account state.
type AccountInfo struct {
	AccountID string `json:"account_id" yaml:"account_id"`
	// Currency is the settlement currency of the account
	Currency string `json:"currency" yaml:"currency"`
	// Balance is the account equity (static balance + float profit)
	Balance float64 `json:"balance" yaml:"balance"`
	// Available is the amount usable for new margin
	Available float64 `json:"available" yaml:"available"`
	// Margin is the margin currently held by open positions
	Margin float64 `json:"margin" yaml:"margin"`
	// FrozenMargin is the margin reserved by pending orders
	FrozenMargin float64 `json:"frozen_margin" yaml:"frozen_margin"`
	// FloatProfit is the unrealized profit/loss of open positions
	FloatProfit float64 `json:"float_profit" yaml:"float_profit"`
	// CloseProfit is the realized profit/loss of the trading day
	CloseProfit float64 `json:"close_profit" yaml:"close_profit"`
	// Commission is the total fees paid during the trading day
	Commission float64 `json:"commission" yaml:"commission"`
}
