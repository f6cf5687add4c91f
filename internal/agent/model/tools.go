package model

// CryptoPrice is one entry of the get_crypto_prices result.
type CryptoPrice struct {
	ID        string             `json:"id"`
	Prices    map[string]float64 `json:"prices"`
	MarketCap map[string]float64 `json:"marketCap,omitempty"`
	Change24h map[string]float64 `json:"change24h,omitempty"`
	UpdatedAt int64              `json:"lastUpdatedAt,omitempty"`
}

// MarketCoin is one entry of the get_market_data result.
type MarketCoin struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Rank          int     `json:"rank"`
	Price         float64 `json:"price"`
	MarketCap     float64 `json:"marketCap"`
	Volume24h     float64 `json:"volume24h"`
	Change24hPct  float64 `json:"change24hPct"`
	High24h       float64 `json:"high24h"`
	Low24h        float64 `json:"low24h"`
	LastUpdatedAt string  `json:"lastUpdatedAt,omitempty"`
}
