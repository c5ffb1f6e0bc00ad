package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-futures/internal/logger"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// ReplayConfig selects the stored bars to replay.
type ReplayConfig struct {
	// Path of a Parquet file with columns time, symbol, open, high, low, close, volume.
	Path  string
	Start optional.Option[time.Time]
	// End is exclusive.
	End optional.Option[time.Time]
	// Progress receives a progress bar. Nil disables it.
	Progress io.Writer
}

// ReplaySource replays stored bars in time order. Bars are resampled into
// the subscribed durations; quotes and ticks are synthesized from closes.
// It finishes when the data is exhausted.
type ReplaySource struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	config ReplayConfig
	logger *logger.Logger
}

// NewReplaySource opens the data file.
func NewReplaySource(config ReplayConfig, log *logger.Logger) (*ReplaySource, error) {
	if log == nil {
		log = logger.NewNop()
	}

	if _, err := os.Stat(config.Path); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeReplayDataUnavailable, err, "replay data %q is not readable", config.Path)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReplayDataUnavailable, "failed to open DuckDB", err)
	}

	// CREATE VIEW is not expressible with squirrel
	_, err = db.Exec(fmt.Sprintf(`CREATE VIEW bars AS SELECT * FROM read_parquet('%s')`, config.Path))
	if err != nil {
		db.Close()

		return nil, errors.Wrapf(errors.ErrCodeReplayDataUnavailable, err, "failed to read %s", config.Path)
	}

	return &ReplaySource{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		config: config,
		logger: log.Named("replay-source"),
	}, nil
}

// Verify ReplaySource implements Source.
var _ Source = (*ReplaySource)(nil)

func (r *ReplaySource) Name() string {
	return "replay"
}

// History is empty: series warm up while the replay runs.
func (r *ReplaySource) History(context.Context, string, time.Duration, int) ([]types.Kline, error) {
	return nil, nil
}

func (r *ReplaySource) filter(builder squirrel.SelectBuilder, symbols []string) squirrel.SelectBuilder {
	builder = builder.From("bars").Where(squirrel.Eq{"symbol": symbols})

	if r.config.Start.IsSome() {
		builder = builder.Where(squirrel.GtOrEq{"time": r.config.Start.Unwrap()})
	}

	if r.config.End.IsSome() {
		builder = builder.Where(squirrel.Lt{"time": r.config.End.Unwrap()})
	}

	return builder
}

// Count returns the number of stored bars the replay of symbols will read.
func (r *ReplaySource) Count(ctx context.Context, symbols []string) (int64, error) {
	query, args, err := r.filter(r.sq.Select("COUNT(*)"), symbols).ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build count query", err)
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count replay bars", err)
	}

	return count, nil
}

type bucket struct {
	sub KlineSubscription
	bar types.Kline
	set bool
}

func (r *ReplaySource) Run(ctx context.Context, subs Subscriptions, emit Emit) error {
	symbols := subscribedSymbols(subs)
	if len(symbols) == 0 {
		return nil
	}

	total, err := r.Count(ctx, symbols)
	if err != nil {
		return err
	}

	if total == 0 {
		return errors.Newf(errors.ErrCodeReplayDataUnavailable, "no stored bars for %v in the replay range", symbols)
	}

	query, args, err := r.filter(r.sq.Select("time", "symbol", "open", "high", "low", "close", "volume"), symbols).
		OrderBy("time ASC", "symbol ASC").
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build replay query", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to query replay bars", err)
	}
	defer rows.Close()

	var bar *progressbar.ProgressBar
	if r.config.Progress != nil {
		bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(r.config.Progress),
			progressbar.OptionSetDescription("Replaying bars"),
			progressbar.OptionShowCount(),
		)
		defer bar.Finish()
	}

	buckets := map[string][]*bucket{}
	for _, sub := range subs.Klines {
		buckets[sub.Symbol] = append(buckets[sub.Symbol], &bucket{sub: sub})
	}

	quotes := map[string]*types.Quote{}
	for _, symbol := range subs.Quotes {
		quotes[symbol] = &types.Quote{Symbol: symbol}
	}

	var current time.Time

	for rows.Next() {
		var (
			at                                  time.Time
			symbol                              string
			open, high, low, closePrice, volume float64
		)

		if err := rows.Scan(&at, &symbol, &open, &high, &low, &closePrice, &volume); err != nil {
			return errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to scan replay bar", err)
		}

		at = at.UTC()

		if !current.IsZero() && !at.Equal(current) {
			if !emit(Update{Kind: UpdateFlush}) {
				return ctx.Err()
			}
		}

		current = at

		for _, b := range buckets[symbol] {
			start := at.Truncate(b.sub.Duration)
			if !b.set || !b.bar.Datetime.Equal(start) {
				b.bar = types.Kline{Symbol: symbol, Duration: b.sub.Duration, Datetime: start, Open: open, High: high, Low: low}
				b.set = true
			}

			b.bar.High = max(b.bar.High, high)
			b.bar.Low = min(b.bar.Low, low)
			b.bar.Close = closePrice
			b.bar.Volume += volume

			if !emit(Update{Kind: UpdateKline, Kline: b.bar}) {
				return ctx.Err()
			}
		}

		if quote, ok := quotes[symbol]; ok {
			quote.Datetime = at
			quote.LastPrice = closePrice
			quote.AskPrice1 = closePrice
			quote.BidPrice1 = closePrice
			quote.Volume += volume
			quote.Amount += volume * closePrice

			if quote.Open == 0 {
				quote.Open, quote.Highest, quote.Lowest = open, high, low
			}

			quote.Highest = max(quote.Highest, high)
			quote.Lowest = min(quote.Lowest, low)

			if !emit(Update{Kind: UpdateQuote, Quote: *quote}) {
				return ctx.Err()
			}
		}

		if slices.Contains(subs.Ticks, symbol) {
			tick := types.Tick{Symbol: symbol, Datetime: at, LastPrice: closePrice, AskPrice1: closePrice, BidPrice1: closePrice, Volume: volume}
			if !emit(Update{Kind: UpdateTick, Tick: tick}) {
				return ctx.Err()
			}
		}

		if bar != nil {
			bar.Add(1)
		}
	}

	if err := rows.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to read replay bars", err)
	}

	emit(Update{Kind: UpdateFlush})

	r.logger.Info("Replay finished", zap.Int64("bars", total), zap.Strings("symbols", symbols))

	return nil
}

func (r *ReplaySource) Close() error {
	return r.db.Close()
}

func subscribedSymbols(subs Subscriptions) []string {
	symbols := []string{}

	add := func(symbol string) {
		if !slices.Contains(symbols, symbol) {
			symbols = append(symbols, symbol)
		}
	}

	for _, symbol := range subs.Quotes {
		add(symbol)
	}

	for _, sub := range subs.Klines {
		add(sub.Symbol)
	}

	for _, symbol := range subs.Ticks {
		add(symbol)
	}

	return symbols
}
