package tools

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

	"github.com/copilot-agent/server/internal/agent/model"
)

const (
	DefaultCoinGeckoURL     = "https://api.coingecko.com/api/v3"
	defaultCoinGeckoTimeout = 10 * time.Second
	maxCoinGeckoBody        = 2 << 20
)

// CoinGeckoClient performs single GET requests against the public CoinGecko API
// and reshapes the responses into flat, UI-friendly structures.
type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type CoinGeckoOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewCoinGeckoClient(opts CoinGeckoOptions) *CoinGeckoClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultCoinGeckoURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultCoinGeckoTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &CoinGeckoClient{baseURL: base, apiKey: opts.APIKey, httpClient: hc}
}

// SimplePrice fetches spot prices for ids in each vs currency.
// Result order follows ids; ids unknown to CoinGecko are skipped.
func (c *CoinGeckoClient) SimplePrice(ctx context.Context, ids, vsCurrencies []string) ([]model.CryptoPrice, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one coin id is required")
	}
	if len(vsCurrencies) == 0 {
		vsCurrencies = []string{"usd"}
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", strings.Join(vsCurrencies, ","))
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_change", "true")
	q.Set("include_last_updated_at", "true")

	var raw map[string]map[string]float64
	if err := c.get(ctx, "/simple/price", q, &raw); err != nil {
		return nil, err
	}

	out := make([]model.CryptoPrice, 0, len(ids))
	for _, id := range ids {
		fields, ok := raw[id]
		if !ok {
			continue
		}
		entry := model.CryptoPrice{
			ID:        id,
			Prices:    map[string]float64{},
			MarketCap: map[string]float64{},
			Change24h: map[string]float64{},
			UpdatedAt: int64(fields["last_updated_at"]),
		}
		for _, cur := range vsCurrencies {
			if v, ok := fields[cur]; ok {
				entry.Prices[cur] = v
			}
			if v, ok := fields[cur+"_market_cap"]; ok {
				entry.MarketCap[cur] = v
			}
			if v, ok := fields[cur+"_24h_change"]; ok {
				entry.Change24h[cur] = v
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

type marketRow struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                *float64 `json:"market_cap"`
	MarketCapRank            *int     `json:"market_cap_rank"`
	TotalVolume              *float64 `json:"total_volume"`
	High24h                  *float64 `json:"high_24h"`
	Low24h                   *float64 `json:"low_24h"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	LastUpdated              string   `json:"last_updated"`
}

// Markets fetches the top coins by the given order.
func (c *CoinGeckoClient) Markets(ctx context.Context, vsCurrency string, perPage int, order string) ([]model.MarketCoin, error) {
	q := url.Values{}
	q.Set("vs_currency", vsCurrency)
	q.Set("order", order)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", "1")
	q.Set("price_change_percentage", "24h")

	var rows []marketRow
	if err := c.get(ctx, "/coins/markets", q, &rows); err != nil {
		return nil, err
	}

	out := make([]model.MarketCoin, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.MarketCoin{
			ID:            r.ID,
			Symbol:        strings.ToUpper(r.Symbol),
			Name:          r.Name,
			Rank:          deref(r.MarketCapRank),
			Price:         deref(r.CurrentPrice),
			MarketCap:     deref(r.MarketCap),
			Volume24h:     deref(r.TotalVolume),
			Change24hPct:  deref(r.PriceChangePercentage24h),
			High24h:       deref(r.High24h),
			Low24h:        deref(r.Low24h),
			LastUpdatedAt: r.LastUpdated,
		})
	}
	return out, nil
}

func (c *CoinGeckoClient) get(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coingecko request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCoinGeckoBody))
	if err != nil {
		return fmt.Errorf("read coingecko response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return fmt.Errorf("coingecko returned %d: %s", resp.StatusCode, snippet)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode coingecko response: %w", err)
	}
	return nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
