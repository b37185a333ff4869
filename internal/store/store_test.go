package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"algame/internal/models"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "bars.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testBars(n int) []models.Bar {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 100.0
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      price,
			High:      price + 2,
			Low:       price - 1,
			Close:     price + 1,
			Volume:    int64(1000 + i),
		}
		price += 1
	}
	return bars
}

func TestSaveAndGetBars(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	bars := testBars(5)

	if err := s.SaveBars(ctx, "SPY", "1d", bars); err != nil {
		t.Fatalf("SaveBars: %v", err)
	}

	got, err := s.GetBars(ctx, "SPY", "1d", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("bars = %d, want 5", len(got))
	}
	for i := range bars {
		if !got[i].Timestamp.Equal(bars[i].Timestamp) {
			t.Errorf("bar %d timestamp = %v, want %v", i, got[i].Timestamp, bars[i].Timestamp)
		}
		if got[i].Close != bars[i].Close || got[i].Volume != bars[i].Volume {
			t.Errorf("bar %d = %+v, want %+v", i, got[i], bars[i])
		}
	}
}

func TestGetBarsRange(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	bars := testBars(10)
	if err := s.SaveBars(ctx, "SPY", "1d", bars); err != nil {
		t.Fatal(err)
	}

	from := bars[3].Timestamp
	to := bars[6].Timestamp
	got, err := s.GetBars(ctx, "SPY", "1d", from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("ranged bars = %d, want 4", len(got))
	}
	if !got[0].Timestamp.Equal(from) || !got[len(got)-1].Timestamp.Equal(to) {
		t.Errorf("range bounds = %v .. %v, want %v .. %v",
			got[0].Timestamp, got[len(got)-1].Timestamp, from, to)
	}
}

func TestSaveBarsUpserts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	bars := testBars(3)
	if err := s.SaveBars(ctx, "SPY", "1d", bars); err != nil {
		t.Fatal(err)
	}

	// Re-import with a corrected close: same keys, new values.
	bars[1].Close = 999
	if err := s.SaveBars(ctx, "SPY", "1d", bars); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetBars(ctx, "SPY", "1d", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("bars after upsert = %d, want 3", len(got))
	}
	if got[1].Close != 999 {
		t.Errorf("upserted close = %v, want 999", got[1].Close)
	}
}

func TestTimeframesAreIndependent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.SaveBars(ctx, "SPY", "1d", testBars(5)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveBars(ctx, "SPY", "1h", testBars(2)); err != nil {
		t.Fatal(err)
	}

	daily, _ := s.GetBars(ctx, "SPY", "1d", time.Time{}, time.Time{})
	hourly, _ := s.GetBars(ctx, "SPY", "1h", time.Time{}, time.Time{})
	if len(daily) != 5 || len(hourly) != 2 {
		t.Errorf("bars per timeframe = %d/%d, want 5/2", len(daily), len(hourly))
	}
}

func TestListInstruments(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.SaveBars(ctx, "SPY", "1d", testBars(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveBars(ctx, "QQQ", "1d", testBars(1)); err != nil {
		t.Fatal(err)
	}

	instruments, err := s.ListInstruments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(instruments) != 2 || instruments[0] != "QQQ" || instruments[1] != "SPY" {
		t.Errorf("instruments = %v, want [QQQ SPY]", instruments)
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spy.csv")
	content := `timestamp,open,high,low,close,volume
2024-01-02,100,105,99,104,1000
2024-01-03T00:00:00Z,104,106,103,105,1200
2024-01-04 00:00:00,105,107,104,106,900
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	bars, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("bars = %d, want 3", len(bars))
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !bars[0].Timestamp.Equal(want) {
		t.Errorf("first timestamp = %v, want %v", bars[0].Timestamp, want)
	}
	if bars[1].Close != 105 || bars[2].Volume != 900 {
		t.Errorf("parsed bars = %+v", bars)
	}
}

func TestLoadCSVRejectsUnorderedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	content := `timestamp,open,high,low,close,volume
2024-01-03,100,105,99,104,1000
2024-01-02,104,106,103,105,1200
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCSV(path); err == nil {
		t.Fatal("out-of-order rows should fail")
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("missing file should fail")
	}
}
