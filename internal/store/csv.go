package store

import (
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"algame/internal/models"
)

// csvRow mirrors one line of an OHLCV export. Timestamps are parsed
// leniently: RFC3339 or a plain date.
type csvRow struct {
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    int64   `csv:"volume"`
}

var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadCSV reads one instrument's bars from a CSV file with a
// timestamp,open,high,low,close,volume header. Bars must appear in strictly
// increasing timestamp order.
func LoadCSV(path string) ([]models.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	var rows []*csvRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	bars := make([]models.Bar, 0, len(rows))
	for i, row := range rows {
		ts, err := parseCSVTime(row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		if len(bars) > 0 && !ts.After(bars[len(bars)-1].Timestamp) {
			return nil, fmt.Errorf("%s line %d: timestamps not strictly increasing", path, i+2)
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	return bars, nil
}

func parseCSVTime(value string) (time.Time, error) {
	for _, layout := range csvTimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
