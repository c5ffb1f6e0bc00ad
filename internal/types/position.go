package types

// Position is the broker's holdings of one instrument in one account, in lots.
// Today and history legs are tracked separately because closing them may
// require different offsets.
type Position struct {
	AccountID    string `yaml:"account_id" json:"account_id"`
	Symbol       string `yaml:"symbol" json:"symbol"`
	LongToday    int    `yaml:"long_today" json:"long_today"`
	LongHistory  int    `yaml:"long_history" json:"long_history"`
	ShortToday   int    `yaml:"short_today" json:"short_today"`
	ShortHistory int    `yaml:"short_history" json:"short_history"`

	LongAvgPrice  float64 `yaml:"long_avg_price" json:"long_avg_price"`
	ShortAvgPrice float64 `yaml:"short_avg_price" json:"short_avg_price"`
	FloatProfit   float64 `yaml:"float_profit" json:"float_profit"`
}

// Long returns the total long lots.
func (p Position) Long() int {
	return p.LongToday + p.LongHistory
}

// Short returns the total short lots.
func (p Position) Short() int {
	return p.ShortToday + p.ShortHistory
}

// Net returns long minus short.
func (p Position) Net() int {
	return p.Long() - p.Short()
}
