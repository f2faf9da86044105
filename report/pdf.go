package report

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-pdf/fpdf"

	"cryptoreport/internal/analysis"
)

const (
	DocumentTitle     = "Cryptocurrency Market Analysis"
	TopHeading        = "Top 5 Cryptocurrencies by Market Cap"
	ChangeHeading     = "24-Hour Price Change Analysis"
	ShareHeading      = "Market Share Distribution"
	chartImageWidthMM = 190
	pageBreakMarginMM = 15
)

// AverageHeading titles the average price section for n assets.
func AverageHeading(n int) string {
	return fmt.Sprintf("Average Price of Top %d Cryptocurrencies", n)
}

// documentLines is the body text of the report, per section.
type documentLines struct {
	Top     []string
	Average string
	Highest string
	Lowest  string
}

func buildLines(s analysis.Summary) documentLines {
	lines := documentLines{
		Top:     make([]string, 0, len(s.Top)),
		Average: fmt.Sprintf("The average price is $%s.", FormatPrice(s.AveragePrice)),
		Highest: fmt.Sprintf("Highest: %s (%s%%).", s.Extremes.Highest.Name,
			FormatPercent(s.Extremes.Highest.PriceChangePercentage24h.Decimal)),
		Lowest: fmt.Sprintf("Lowest: %s (%s%%).", s.Extremes.Lowest.Name,
			FormatPercent(s.Extremes.Lowest.PriceChangePercentage24h.Decimal)),
	}
	for _, e := range s.Top {
		lines.Top = append(lines.Top, fmt.Sprintf("%s: $%s", e.Name, FormatMarketCap(e.MarketCap)))
	}
	return lines
}

// renderDocument lays out the summary and the chart image as an A4 PDF and
// writes it to path, returning the document size.
func renderDocument(path, chartPath string, s analysis.Summary) (int64, error) {
	lines := buildLines(s)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, pageBreakMarginMM)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	heading := func(text string) {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 10, tr(text), "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
	}
	line := func(text string) {
		pdf.CellFormat(0, 10, tr(text), "", 1, "", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(DocumentTitle), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	heading(TopHeading)
	for _, l := range lines.Top {
		line(l)
	}
	pdf.Ln(5)

	heading(AverageHeading(s.AssetCount))
	line(lines.Average)
	pdf.Ln(5)

	heading(ChangeHeading)
	line(lines.Highest)
	line(lines.Lowest)
	pdf.Ln(5)

	heading(ShareHeading)
	left, _, _, _ := pdf.GetMargins()
	pdf.ImageOptions(chartPath, left, 0, chartImageWidthMM, 0, true,
		fpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return 0, fmt.Errorf("failed to assemble document: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write document: %w", err)
	}
	return int64(buf.Len()), nil
}
