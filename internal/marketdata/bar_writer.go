package marketdata

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

// BarWriter collects bars in an in-memory DuckDB table and exports them as
// a Parquet file readable by ReplaySource.
type BarWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	stmt       *sql.Stmt
	outputPath string
	count      int
}

// NewBarWriter creates a writer exporting to outputPath.
func NewBarWriter(outputPath string) *BarWriter {
	return &BarWriter{outputPath: outputPath}
}

// Initialize opens the database, creates the bars table and prepares the insert.
func (w *BarWriter) Initialize() (err error) {
	w.db, err = sql.Open("duckdb", "")
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalInitFailed, "failed to open DuckDB connection", err)
	}

	_, err = w.db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			time TIMESTAMP,
			symbol TEXT,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		)
	`)
	if err != nil {
		w.db.Close()

		return errors.Wrap(errors.ErrCodeJournalInitFailed, "failed to create bars table", err)
	}

	w.tx, err = w.db.Begin()
	if err != nil {
		w.db.Close()

		return errors.Wrap(errors.ErrCodeJournalInitFailed, "failed to begin transaction", err)
	}

	w.stmt, err = w.tx.Prepare(`
		INSERT INTO bars (time, symbol, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		w.tx.Rollback()
		w.db.Close()

		return errors.Wrap(errors.ErrCodeJournalInitFailed, "failed to prepare statement", err)
	}

	return nil
}

// Write adds one bar.
func (w *BarWriter) Write(bar types.Kline) error {
	if w.stmt == nil {
		return errors.New(errors.ErrCodeJournalWriteFailed, "bar writer is not initialized")
	}

	_, err := w.stmt.Exec(bar.Datetime.UTC(), bar.Symbol, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to insert bar", err)
	}

	w.count++

	return nil
}

// Count returns the number of bars written so far.
func (w *BarWriter) Count() int {
	return w.count
}

// Finalize commits and exports the bars, ordered by time, to the output file.
func (w *BarWriter) Finalize() (string, error) {
	if w.tx == nil {
		return "", errors.New(errors.ErrCodeJournalWriteFailed, "bar writer is not initialized")
	}

	if err := w.tx.Commit(); err != nil {
		w.tx.Rollback()

		return "", errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to commit bars", err)
	}

	w.tx = nil

	if dir := filepath.Dir(w.outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to create output directory", err)
		}
	}

	query := fmt.Sprintf(`COPY (SELECT * FROM bars ORDER BY time, symbol) TO '%s' (FORMAT PARQUET)`, w.outputPath)
	if _, err := w.db.Exec(query); err != nil {
		return "", errors.Wrap(errors.ErrCodeJournalWriteFailed, "failed to export bars to parquet", err)
	}

	return w.outputPath, nil
}

// Close releases the statement, transaction and connection.
func (w *BarWriter) Close() error {
	var errs []error

	if w.stmt != nil {
		errs = append(errs, w.stmt.Close())
		w.stmt = nil
	}

	if w.tx != nil {
		errs = append(errs, w.tx.Rollback())
		w.tx = nil
	}

	if w.db != nil {
		errs = append(errs, w.db.Close())
		w.db = nil
	}

	return stderrors.Join(errs...)
}
