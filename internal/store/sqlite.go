package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ BarStore = (*SQLiteStore)(nil)

// SQLiteStore implements BarStore backed by a SQLite database. Prices and
// volumes are stored as decimal strings so values round-trip exactly.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bars (
	base      TEXT    NOT NULL,
	quote     TEXT    NOT NULL,
	timeframe TEXT    NOT NULL,
	timestamp INTEGER NOT NULL, -- Unix ms
	open      TEXT    NOT NULL,
	high      TEXT    NOT NULL,
	low       TEXT    NOT NULL,
	close     TEXT    NOT NULL,
	volume    TEXT    NOT NULL,
	PRIMARY KEY (base, quote, timeframe, timestamp)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, ensures
// the schema exists, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteBars upserts a batch of bars. Re-importing the same range replaces
// the stored rows.
func (s *SQLiteStore) WriteBars(ctx context.Context, timeframe string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars
			(base, quote, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx,
			b.Pair.Base, b.Pair.Quote, timeframe, b.Timestamp.UnixMilli(),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String())
		if err != nil {
			return fmt.Errorf("inserting bar %s %s: %w", b.Pair, b.Timestamp, err)
		}
	}
	return tx.Commit()
}

// ReadBars returns all stored bars for the pair and timeframe in ascending
// timestamp order.
func (s *SQLiteStore) ReadBars(ctx context.Context, pair domain.Pair, timeframe string) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM bars
		WHERE base = ? AND quote = ? AND timeframe = ?
		ORDER BY timestamp ASC`,
		pair.Base, pair.Quote, timeframe)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			ms                             int64
			open, high, low, close, volume string
		)
		if err := rows.Scan(&ms, &open, &high, &low, &close, &volume); err != nil {
			return nil, err
		}
		bar := domain.Bar{Pair: pair, Timestamp: time.UnixMilli(ms).UTC()}
		if bar.Open, err = decimal.NewFromString(open); err != nil {
			return nil, fmt.Errorf("corrupt open %q: %w", open, err)
		}
		if bar.High, err = decimal.NewFromString(high); err != nil {
			return nil, fmt.Errorf("corrupt high %q: %w", high, err)
		}
		if bar.Low, err = decimal.NewFromString(low); err != nil {
			return nil, fmt.Errorf("corrupt low %q: %w", low, err)
		}
		if bar.Close, err = decimal.NewFromString(close); err != nil {
			return nil, fmt.Errorf("corrupt close %q: %w", close, err)
		}
		if bar.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("corrupt volume %q: %w", volume, err)
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// ListPairs returns all distinct pairs with data in the given timeframe.
func (s *SQLiteStore) ListPairs(ctx context.Context, timeframe string) ([]domain.Pair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT base, quote
		FROM bars
		WHERE timeframe = ?
		ORDER BY base, quote`,
		timeframe)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []domain.Pair
	for rows.Next() {
		var base, quote string
		if err := rows.Scan(&base, &quote); err != nil {
			return nil, err
		}
		pairs = append(pairs, domain.Pair{Base: base, Quote: quote})
	}
	return pairs, rows.Err()
}
