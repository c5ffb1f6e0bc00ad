package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

// table keeps rows in an in-memory DuckDB table and mirrors them to a Parquet
// file after every write.
type table struct {
	name       string
	orderBy    string
	outputPath string
	db         *sql.DB
	sq         squirrel.StatementBuilderType
	mu         sync.Mutex
}

func newTable(name, orderBy, outputPath string) *table {
	return &table{
		name:       name,
		orderBy:    orderBy,
		outputPath: outputPath,
		sq:         squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (t *table) initialize(schema string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.outputPath), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeJournalInitFailed, "failed to create journal directory", err)
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalInitFailed, "failed to open DuckDB connection", err)
	}

	if _, err := db.Exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.name, schema)); err != nil {
		db.Close()

		return errors.Wrapf(errors.ErrCodeJournalInitFailed, err, "failed to create %s table", t.name)
	}

	t.db = db

	return nil
}

func (t *table) write(insert squirrel.InsertBuilder) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.db == nil {
		return errors.Newf(errors.ErrCodeJournalWriteFailed, "%s writer is not initialized", t.name)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return errors.Wrapf(errors.ErrCodeJournalWriteFailed, err, "failed to build %s insert", t.name)
	}

	if _, err := t.db.Exec(query, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeJournalWriteFailed, err, "failed to insert into %s", t.name)
	}

	return t.export()
}

func (t *table) export() error {
	_, err := t.db.Exec(fmt.Sprintf(`COPY (SELECT * FROM %s ORDER BY %s) TO '%s' (FORMAT PARQUET)`, t.name, t.orderBy, t.outputPath))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeJournalWriteFailed, err, "failed to export %s to parquet", t.name)
	}

	return nil
}

func (t *table) count() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.db == nil {
		return 0, errors.Newf(errors.ErrCodeJournalWriteFailed, "%s writer is not initialized", t.name)
	}

	query, args, err := t.sq.Select("COUNT(*)").From(t.name).ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build count query", err)
	}

	var count int
	if err := t.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to count %s", t.name)
	}

	return count, nil
}

func (t *table) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.db == nil {
		return nil
	}

	err := t.db.Close()
	t.db = nil

	return err
}

// OrdersWriter records every order submitted by reconciliation tasks.
type OrdersWriter struct {
	*table
}

// NewOrdersWriter creates a writer exporting to outputPath.
func NewOrdersWriter(outputPath string) *OrdersWriter {
	return &OrdersWriter{table: newTable("orders", "inserted_at ASC", outputPath)}
}

// Initialize creates the orders table.
func (w *OrdersWriter) Initialize() error {
	return w.initialize(`
		order_id TEXT PRIMARY KEY,
		account_id TEXT,
		symbol TEXT,
		direction TEXT,
		"offset" TEXT,
		volume INTEGER,
		volume_left INTEGER,
		limit_price DOUBLE,
		status TEXT,
		message TEXT,
		tag TEXT,
		inserted_at TIMESTAMP
	`)
}

// Write upserts an order keyed by its ID.
func (w *OrdersWriter) Write(order types.Order) error {
	return w.write(w.sq.Insert("orders").
		Columns("order_id", "account_id", "symbol", "direction", `"offset"`, "volume", "volume_left",
			"limit_price", "status", "message", "tag", "inserted_at").
		Values(order.OrderID, order.AccountID, order.Symbol, string(order.Direction), string(order.Offset),
			order.Volume, order.VolumeLeft, order.LimitPrice, string(order.Status), order.Message, order.Tag,
			order.InsertedAt.UTC()).
		Suffix(`ON CONFLICT (order_id) DO UPDATE SET
			volume_left = excluded.volume_left,
			status = excluded.status,
			message = excluded.message`))
}

// Count returns the number of recorded orders.
func (w *OrdersWriter) Count() (int, error) {
	return w.count()
}

// OutputPath returns the parquet file path.
func (w *OrdersWriter) OutputPath() string {
	return w.outputPath
}

// Close releases database resources.
func (w *OrdersWriter) Close() error {
	return w.close()
}

// TargetEntry is one recorded target position.
type TargetEntry struct {
	Time      time.Time
	AccountID string
	Symbol    string
	Target    int
}

// TargetsWriter records every target handed to a reconciliation task.
type TargetsWriter struct {
	*table
}

// NewTargetsWriter creates a writer exporting to outputPath.
func NewTargetsWriter(outputPath string) *TargetsWriter {
	return &TargetsWriter{table: newTable("targets", "time ASC", outputPath)}
}

// Initialize creates the targets table.
func (w *TargetsWriter) Initialize() error {
	return w.initialize(`
		time TIMESTAMP,
		account_id TEXT,
		symbol TEXT,
		target INTEGER
	`)
}

// Write appends a target.
func (w *TargetsWriter) Write(entry TargetEntry) error {
	return w.write(w.sq.Insert("targets").
		Columns("time", "account_id", "symbol", "target").
		Values(entry.Time.UTC(), entry.AccountID, entry.Symbol, entry.Target))
}

// Count returns the number of recorded targets.
func (w *TargetsWriter) Count() (int, error) {
	return w.count()
}

// OutputPath returns the parquet file path.
func (w *TargetsWriter) OutputPath() string {
	return w.outputPath
}

// Close releases database resources.
func (w *TargetsWriter) Close() error {
	return w.close()
}
