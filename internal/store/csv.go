package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
)

// csvTimeLayout is the datetime format in exported candle dumps.
const csvTimeLayout = "2006-01-02 15:04:05"

// ReadCSVBars loads OHLCV bars for the given pair from a candle dump CSV.
//
// The expected column layout is:
//
//	datetime,open,high,low,close,volume[,...]
//
// where datetime is either "2006-01-02 15:04:05" (UTC) or a Unix
// millisecond timestamp. Extra trailing columns (quote volume, trade
// count, taker volumes) are ignored. A leading header row is skipped.
// Bars are returned in ascending timestamp order.
func ReadCSVBars(path string, pair domain.Pair) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening candle file: %w", err)
	}
	defer f.Close()

	bars, err := parseCSVBars(f, pair)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return bars, nil
}

func parseCSVBars(r io.Reader, pair domain.Pair) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // dumps vary in trailing column count

	var bars []domain.Bar
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		if len(record) < 6 {
			return nil, fmt.Errorf("line %d: expected at least 6 columns, got %d", line, len(record))
		}

		ts, err := parseCSVTimestamp(record[0])
		if err != nil {
			if line == 1 {
				// Header row.
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bar := domain.Bar{Pair: pair, Timestamp: ts}
		fields := []struct {
			name string
			dst  *decimal.Decimal
		}{
			{"open", &bar.Open},
			{"high", &bar.High},
			{"low", &bar.Low},
			{"close", &bar.Close},
			{"volume", &bar.Volume},
		}
		for i, fld := range fields {
			v, err := decimal.NewFromString(record[i+1])
			if err != nil {
				return nil, fmt.Errorf("line %d: parsing %s %q: %w", line, fld.name, record[i+1], err)
			}
			*fld.dst = v
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Equal(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("duplicate bar timestamp %s", bars[i].Timestamp.Format(csvTimeLayout))
		}
	}
	return bars, nil
}

// parseCSVTimestamp accepts either a "2006-01-02 15:04:05" datetime or a
// Unix millisecond integer.
func parseCSVTimestamp(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(csvTimeLayout, s, time.UTC); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
