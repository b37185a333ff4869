package engine

import (
	"fmt"
	"strings"
)

// EquityCurveASCII renders the equity curve as a terminal chart.
func (r *Results) EquityCurveASCII(width, height int) string {
	if len(r.EquityCurve) == 0 {
		return "No data to display"
	}
	if width <= 0 {
		width = 60
	}
	if height <= 0 {
		height = 12
	}

	minEquity := r.EquityCurve[0].Equity
	maxEquity := r.EquityCurve[0].Equity
	for _, point := range r.EquityCurve {
		if point.Equity < minEquity {
			minEquity = point.Equity
		}
		if point.Equity > maxEquity {
			maxEquity = point.Equity
		}
	}

	equityRange := maxEquity - minEquity
	if equityRange == 0 {
		equityRange = 1
	}
	minEquity -= equityRange * 0.05
	maxEquity += equityRange * 0.05
	equityRange = maxEquity - minEquity

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = make([]rune, width)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	step := len(r.EquityCurve) / width
	if step == 0 {
		step = 1
	}
	for x := 0; x < width && x*step < len(r.EquityCurve); x++ {
		point := r.EquityCurve[x*step]
		y := int((point.Equity - minEquity) / equityRange * float64(height-1))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Equity Curve (%.0f - %.0f)\n", minEquity, maxEquity))
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	for _, row := range grid {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteRune('│')
		sb.WriteRune('\n')
	}
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	return sb.String()
}
