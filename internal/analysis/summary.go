package analysis

import (
	"time"

	"github.com/shopspring/decimal"

	"cryptoreport/models"
)

// TopReportSize is how many leaders the report table lists.
const TopReportSize = 5

// MarketCapEntry is one row of the top-by-market-cap table.
type MarketCapEntry struct {
	Name      string
	MarketCap decimal.Decimal
}

// Summary bundles every statistic the report needs from one snapshot.
type Summary struct {
	FetchedAt    time.Time
	AssetCount   int
	Top          []MarketCapEntry
	AveragePrice decimal.Decimal
	Extremes     Extremes
	MarketShare  []Share
}

// Summarize computes the report statistics, listing topN leaders.
func Summarize(s models.Snapshot, topN int) (Summary, error) {
	avg, err := AveragePrice(s)
	if err != nil {
		return Summary{}, err
	}
	ext, err := PriceChangeExtremes(s)
	if err != nil {
		return Summary{}, err
	}

	top := TopByMarketCap(s, topN)
	entries := make([]MarketCapEntry, 0, len(top))
	for _, a := range top {
		entries = append(entries, MarketCapEntry{Name: a.Name, MarketCap: a.MarketCap})
	}

	return Summary{
		FetchedAt:    s.FetchedAt,
		AssetCount:   s.Len(),
		Top:          entries,
		AveragePrice: avg,
		Extremes:     ext,
		MarketShare:  MarketShare(s),
	}, nil
}
