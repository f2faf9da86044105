package reader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptoreport/config"
	"cryptoreport/logger"
)

const marketsPayload = `[
  {"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":67000.5,"market_cap":1320000000000,"total_volume":25000000000,"price_change_percentage_24h":1.234,"ath":73000},
  {"id":"tether","symbol":"usdt","name":"Tether","current_price":1.0,"market_cap":110000000000,"total_volume":50000000000,"price_change_percentage_24h":null},
  {"id":"broken","symbol":"brk","name":"Broken","current_price":0.5,"market_cap":-10,"total_volume":0,"price_change_percentage_24h":-3.5}
]`

func newTestReader(t *testing.T, handler http.HandlerFunc) *CoinGeckoReader {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	r := NewCoinGeckoReader(config.SourceConfig{
		BaseURL:    server.URL + "/api/v3/",
		VsCurrency: "usd",
		PerPage:    50,
		Timeout:    5 * time.Second,
	}, logger.Logger())
	r.now = func() time.Time { return time.Unix(1700000000, 0) }
	return r
}

func TestFetchSnapshotSendsQuery(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		gotQuery = map[string]string{}
		for k := range req.URL.Query() {
			gotQuery[k] = req.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(marketsPayload))
	})

	if _, err := r.FetchSnapshot(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/api/v3/coins/markets" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	want := map[string]string{"vs_currency": "usd", "order": "market_cap_desc", "per_page": "50", "page": "1"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Fatalf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestFetchSnapshotDecodesAssets(t *testing.T) {
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(marketsPayload))
	})

	s, err := r.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 assets, got %d", s.Len())
	}
	if !s.FetchedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected fetch time %s", s.FetchedAt)
	}
	btc := s.Assets[0]
	if btc.Name != "Bitcoin" || !btc.CurrentPrice.Equal(decimal.RequireFromString("67000.5")) {
		t.Fatalf("unexpected first asset %+v", btc)
	}
	if s.Assets[1].HasPriceChange() {
		t.Fatalf("null 24h change should decode as missing")
	}
	if !s.Assets[2].MarketCap.IsZero() {
		t.Fatalf("negative market cap should be clamped, got %s", s.Assets[2].MarketCap)
	}
}

func TestFetchSnapshotNon200(t *testing.T) {
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, `{"status":{"error_code":429}}`, http.StatusTooManyRequests)
	})

	_, err := r.FetchSnapshot(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", fe.StatusCode)
	}
}

func TestFetchSnapshotBadBody(t *testing.T) {
	r := newTestReader(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	})

	_, err := r.FetchSnapshot(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusOK {
		t.Fatalf("expected decode FetchError, got %v", err)
	}
}

func TestFetchSnapshotTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	r := NewCoinGeckoReader(config.SourceConfig{BaseURL: base, VsCurrency: "usd", PerPage: 50, Timeout: time.Second}, logger.Logger())
	_, err := r.FetchSnapshot(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != 0 {
		t.Fatalf("expected transport FetchError, got %v", err)
	}
}
