package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
//
// Layout: <DataDir>/<BASE>-<QUOTE>/<timeframe>.parquet
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is the Parquet schema for candle data.
type BarRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// WriteBars writes bars to Parquet files grouped by pair. Existing records
// for the same timestamps are replaced.
func (s *ParquetStore) WriteBars(_ context.Context, timeframe string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	groups := make(map[domain.Pair][]BarRecord)
	for _, b := range bars {
		groups[b.Pair] = append(groups[b.Pair], BarRecord{
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open.InexactFloat64(),
			High:      b.High.InexactFloat64(),
			Low:       b.Low.InexactFloat64(),
			Close:     b.Close.InexactFloat64(),
			Volume:    b.Volume.InexactFloat64(),
		})
	}

	for pair, records := range groups {
		path := s.barPath(pair, timeframe)

		// Read existing records to merge.
		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading existing bars for %s/%s: %w", pair, timeframe, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%s: %w", pair, timeframe, err)
		}
	}
	return nil
}

// ReadBars reads all bars for the given pair and timeframe in ascending
// timestamp order. A missing file yields no bars.
func (s *ParquetStore) ReadBars(_ context.Context, pair domain.Pair, timeframe string) ([]domain.Bar, error) {
	records, err := readParquetFile[BarRecord](s.barPath(pair, timeframe))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, domain.Bar{
			Pair:      pair,
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      decimal.NewFromFloat(r.Open),
			High:      decimal.NewFromFloat(r.High),
			Low:       decimal.NewFromFloat(r.Low),
			Close:     decimal.NewFromFloat(r.Close),
			Volume:    decimal.NewFromFloat(r.Volume),
		})
	}
	return bars, nil
}

// ListPairs returns all pairs that have a Parquet file for the given timeframe.
func (s *ParquetStore) ListPairs(_ context.Context, timeframe string) ([]domain.Pair, error) {
	entries, err := os.ReadDir(s.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var pairs []domain.Pair
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		base, quote, ok := strings.Cut(e.Name(), "-")
		if !ok {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.DataDir, e.Name(), timeframe+".parquet")); err != nil {
			continue
		}
		pairs = append(pairs, domain.Pair{Base: base, Quote: quote})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].String() < pairs[j].String()
	})
	return pairs, nil
}

// barPath returns the filesystem path for a pair's candle file.
func (s *ParquetStore) barPath(pair domain.Pair, timeframe string) string {
	dir := strings.ToUpper(pair.Base) + "-" + strings.ToUpper(pair.Quote)
	return filepath.Join(s.DataDir, dir, timeframe+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by timestamp, preferring new
// records over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
