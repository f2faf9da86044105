package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset represents one cryptocurrency row of a market snapshot
type Asset struct {
	Name                     string              `json:"name"`
	Symbol                   string              `json:"symbol"`
	CurrentPrice             decimal.Decimal     `json:"current_price"`
	MarketCap                decimal.Decimal     `json:"market_cap"`
	TotalVolume              decimal.Decimal     `json:"total_volume"`
	PriceChangePercentage24h decimal.NullDecimal `json:"price_change_percentage_24h"`
}

// HasPriceChange reports whether the 24h change is usable for comparisons.
func (a Asset) HasPriceChange() bool {
	return a.PriceChangePercentage24h.Valid
}

// Snapshot represents one retrieval of the asset list, in source order.
// Duplicate names and symbols are kept as delivered.
type Snapshot struct {
	FetchedAt time.Time `json:"fetched_at"`
	Assets    []Asset   `json:"assets"`
}

// NewSnapshot builds a snapshot owning a private copy of assets.
func NewSnapshot(fetchedAt time.Time, assets []Asset) Snapshot {
	owned := make([]Asset, len(assets))
	copy(owned, assets)
	return Snapshot{FetchedAt: fetchedAt, Assets: owned}
}

// Len returns the number of assets in the snapshot
func (s Snapshot) Len() int {
	return len(s.Assets)
}

// TotalMarketCap sums market_cap over every asset.
func (s Snapshot) TotalMarketCap() decimal.Decimal {
	total := decimal.Zero
	for _, a := range s.Assets {
		total = total.Add(a.MarketCap)
	}
	return total
}
