package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptoreport/config"
	"cryptoreport/logger"
	"cryptoreport/models"
)

const marketsPath = "/coins/markets"

// FetchError reports a failed market-data request. StatusCode is zero when
// no HTTP response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CoinGeckoReader retrieves the top assets by market cap from the
// CoinGecko markets endpoint, one page per call.
type CoinGeckoReader struct {
	baseURL    string
	vsCurrency string
	perPage    int
	client     *http.Client
	log        *logger.Log
	now        func() time.Time
}

// NewCoinGeckoReader creates a reader bound to the source settings.
func NewCoinGeckoReader(cfg config.SourceConfig, log *logger.Log) *CoinGeckoReader {
	if log == nil {
		log = logger.GetLogger()
	}

	transport := &http.Transport{
		MaxIdleConns:       2,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	reader := &CoinGeckoReader{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		vsCurrency: cfg.VsCurrency,
		perPage:    cfg.PerPage,
		client:     &http.Client{Transport: transport, Timeout: cfg.Timeout},
		log:        log,
		now:        time.Now,
	}

	log.WithComponent("reader").WithFields(logger.Fields{
		"base_url":    reader.baseURL,
		"vs_currency": reader.vsCurrency,
		"per_page":    reader.perPage,
		"timeout":     cfg.Timeout,
	}).Info("coingecko reader initialized")

	return reader
}

// MarketsURL is the request URL for page 1 of the markets listing.
func (r *CoinGeckoReader) MarketsURL() string {
	q := url.Values{}
	q.Set("vs_currency", r.vsCurrency)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(r.perPage))
	q.Set("page", "1")
	return r.baseURL + marketsPath + "?" + q.Encode()
}

// FetchSnapshot performs one GET and decodes the asset list. Any transport,
// status or decode failure is returned as *FetchError.
func (r *CoinGeckoReader) FetchSnapshot(ctx context.Context) (models.Snapshot, error) {
	endpoint := r.MarketsURL()
	log := r.log.WithComponent("reader").WithFields(logger.Fields{
		"operation": "fetch_markets",
		"url":       endpoint,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Snapshot{}, &FetchError{URL: endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "CryptoReport/1.0")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return models.Snapshot{}, &FetchError{URL: endpoint, Err: fmt.Errorf("http request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.WithFields(logger.Fields{"status": resp.StatusCode}).Warn("market data request rejected")
		return models.Snapshot{}, &FetchError{
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet))),
		}
	}

	var assets []models.Asset
	if err := json.NewDecoder(resp.Body).Decode(&assets); err != nil {
		return models.Snapshot{}, &FetchError{URL: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	logger.LogPerformanceEntry(log, "reader", "api_request", time.Since(start), nil)

	clamped := 0
	for i := range assets {
		if assets[i].MarketCap.IsNegative() {
			assets[i].MarketCap = decimal.Zero
			clamped++
		}
	}
	if clamped > 0 {
		log.WithFields(logger.Fields{"clamped": clamped}).Warn("negative market caps reset to zero")
	}

	snapshot := models.NewSnapshot(r.now().UTC(), assets)
	logger.LogDataFlowEntry(log, "coingecko_api", "snapshot", snapshot.Len(), "assets")
	return snapshot, nil
}
