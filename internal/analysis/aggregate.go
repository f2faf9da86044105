// Package analysis derives report statistics from a market snapshot.
// Every function is pure: the snapshot passed in is never modified.
package analysis

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"cryptoreport/models"
)

var (
	// ErrEmptyInput is returned when a statistic needs at least one asset.
	ErrEmptyInput = errors.New("analysis: snapshot has no assets")
	// ErrNoComparableData is returned when no asset carries a 24h change.
	ErrNoComparableData = errors.New("analysis: no asset has a usable 24h price change")
)

// Extremes holds the biggest gainer and the biggest loser of a snapshot.
// Both may reference the same asset.
type Extremes struct {
	Highest models.Asset
	Lowest  models.Asset
}

// TopByMarketCap returns the min(k, len) assets with the largest market cap,
// descending. Assets with equal market cap keep their snapshot order.
func TopByMarketCap(s models.Snapshot, k int) []models.Asset {
	if k <= 0 || len(s.Assets) == 0 {
		return []models.Asset{}
	}
	order := rankByMarketCap(s.Assets)
	if k > len(order) {
		k = len(order)
	}

	top := make([]models.Asset, 0, k)
	for _, idx := range order[:k] {
		top = append(top, s.Assets[idx])
	}
	return top
}

// AveragePrice is the arithmetic mean of current_price over every asset.
func AveragePrice(s models.Snapshot) (decimal.Decimal, error) {
	if len(s.Assets) == 0 {
		return decimal.Zero, ErrEmptyInput
	}
	sum := decimal.Zero
	for _, a := range s.Assets {
		sum = sum.Add(a.CurrentPrice)
	}
	return sum.Div(decimal.NewFromInt(int64(len(s.Assets)))), nil
}

// PriceChangeExtremes finds the assets with the maximum and minimum 24h
// change. Assets without a change are skipped; on ties the earliest asset
// wins.
func PriceChangeExtremes(s models.Snapshot) (Extremes, error) {
	hi, lo := -1, -1
	for i, a := range s.Assets {
		if !a.HasPriceChange() {
			continue
		}
		change := a.PriceChangePercentage24h.Decimal
		if hi < 0 || change.GreaterThan(s.Assets[hi].PriceChangePercentage24h.Decimal) {
			hi = i
		}
		if lo < 0 || change.LessThan(s.Assets[lo].PriceChangePercentage24h.Decimal) {
			lo = i
		}
	}
	if hi < 0 {
		return Extremes{}, ErrNoComparableData
	}
	return Extremes{Highest: s.Assets[hi], Lowest: s.Assets[lo]}, nil
}

// rankByMarketCap returns asset indexes ordered by market cap descending.
func rankByMarketCap(assets []models.Asset) []int {
	order := make([]int, len(assets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return assets[order[i]].MarketCap.GreaterThan(assets[order[j]].MarketCap)
	})
	return order
}
