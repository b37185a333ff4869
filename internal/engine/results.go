package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"algame/internal/models"
	"algame/internal/portfolio"
)

// Results is the immutable outcome of one completed (or cancelled) run. The
// JSON field names form the stable export schema consumed by reporting tools:
// the equity curve is an ordered list of (timestamp, equity) pairs, trades are
// fill-derived records and metrics map metric names to floats.
type Results struct {
	Strategy    string               `json:"strategy"`
	Backend     string               `json:"backend,omitempty"`
	EquityCurve []models.EquityPoint `json:"equity_curve"`
	Fills       []models.Fill        `json:"fills"`
	Trades      []models.Trade       `json:"trades"`
	Metrics     map[string]float64   `json:"metrics"`
	Diagnostics []models.Diagnostic  `json:"diagnostics,omitempty"`
	Incomplete  bool                 `json:"incomplete,omitempty"`
}

// finalize assembles results from the ledger once the clock is exhausted.
func (e *Engine) finalize(strategyName string, ledger *portfolio.Ledger, diagnostics []models.Diagnostic, incomplete bool) *Results {
	return &Results{
		Strategy:    strategyName,
		EquityCurve: ledger.EquityCurve(),
		Fills:       ledger.Fills(),
		Trades:      ledger.Trades(),
		Metrics:     CalculateMetrics(ledger.EquityCurve(), ledger.Trades(), ledger.InitialCash()),
		Diagnostics: diagnostics,
		Incomplete:  incomplete,
	}
}

// FinalEquity returns the last equity point, or 0 for an empty curve.
func (r *Results) FinalEquity() float64 {
	if len(r.EquityCurve) == 0 {
		return 0
	}
	return r.EquityCurve[len(r.EquityCurve)-1].Equity
}

// MarshalResults serializes results to indented JSON.
func MarshalResults(r *Results) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// UnmarshalResults deserializes results produced by MarshalResults.
func UnmarshalResults(data []byte) (*Results, error) {
	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	return &r, nil
}

// WriteFile serializes the results to a JSON file.
func (r *Results) WriteFile(path string) error {
	data, err := MarshalResults(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadResultsFile loads results from a JSON file.
func ReadResultsFile(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalResults(data)
}
