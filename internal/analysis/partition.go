package analysis

import (
	"github.com/shopspring/decimal"

	"cryptoreport/models"
)

const (
	// MarketShareLeaders is the number of assets shown individually.
	MarketShareLeaders = 10
	// OthersLabel names the bucket holding every asset outside the leaders.
	OthersLabel = "Others"
)

// Share is one slice of the market-share partition.
type Share struct {
	Label  string
	Value  decimal.Decimal
	Others bool
}

// MarketShare splits the snapshot into the leading assets by market cap plus
// one Others bucket summing the complement. Snapshots with at most
// MarketShareLeaders assets yield one share per asset and no bucket.
//
// The values always add up to the snapshot's total market cap.
func MarketShare(s models.Snapshot) []Share {
	order := rankByMarketCap(s.Assets)
	leaders := len(order)
	if leaders > MarketShareLeaders {
		leaders = MarketShareLeaders
	}

	shares := make([]Share, 0, leaders+1)
	for _, idx := range order[:leaders] {
		a := s.Assets[idx]
		shares = append(shares, Share{Label: a.Name, Value: a.MarketCap})
	}
	if len(order) <= MarketShareLeaders {
		return shares
	}

	others := decimal.Zero
	for _, idx := range order[leaders:] {
		others = others.Add(s.Assets[idx].MarketCap)
	}
	return append(shares, Share{Label: OthersLabel, Value: others, Others: true})
}

// ShareTotal sums the partition values.
func ShareTotal(shares []Share) decimal.Decimal {
	total := decimal.Zero
	for _, sh := range shares {
		total = total.Add(sh.Value)
	}
	return total
}
