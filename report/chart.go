package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"cryptoreport/internal/analysis"
)

const (
	ChartTitle  = "Market Cap Distribution (Top 10 + Others)"
	chartWidth  = 1600
	chartHeight = 1000
)

var errEmptyPartition = errors.New("market share partition has no positive value")

var hundred = decimal.NewFromInt(100)

// chartValues converts the partition into pie slices. Zero slices are
// dropped because they cannot be drawn.
func chartValues(shares []analysis.Share) ([]chart.Value, error) {
	total := analysis.ShareTotal(shares)
	if !total.IsPositive() {
		return nil, errEmptyPartition
	}

	values := make([]chart.Value, 0, len(shares))
	for _, sh := range shares {
		if !sh.Value.IsPositive() {
			continue
		}
		pct := sh.Value.Mul(hundred).Div(total).Round(1)
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%s%%)", sh.Label, pct.StringFixed(1)),
			Value: sh.Value.InexactFloat64(),
		})
	}
	return values, nil
}

// renderChart draws the partition as a PNG pie chart and writes it to path.
func renderChart(path string, shares []analysis.Share) (int64, error) {
	values, err := chartValues(shares)
	if err != nil {
		return 0, err
	}

	pie := chart.PieChart{
		Title:  ChartTitle,
		Width:  chartWidth,
		Height: chartHeight,
		TitleStyle: chart.Style{
			FontSize: 16,
		},
		Values: values,
	}

	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return 0, fmt.Errorf("failed to draw pie chart: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write chart: %w", err)
	}
	return int64(buf.Len()), nil
}
