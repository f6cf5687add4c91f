package tools

import (
	"context"
	"fmt"
	"strings"
)

const (
	ToolCryptoPrices = "get_crypto_prices"
	ToolMarketData   = "get_market_data"
)

var marketOrders = []string{"market_cap_desc", "market_cap_asc", "volume_desc", "volume_asc"}

func createCryptoPricesTool(cg *CoinGeckoClient) Tool {
	return Tool{
		Name:        ToolCryptoPrices,
		Description: "Get current cryptocurrency prices, market caps and 24h change from CoinGecko. Use CoinGecko ids (bitcoin, ethereum, solana, dogecoin), not ticker symbols.",
		Params: map[string]Param{
			"ids": {
				Kind:     KindString,
				Required: true,
				Desc:     "Comma-separated CoinGecko coin ids, e.g. \"bitcoin,ethereum\"",
			},
			"vs_currencies": {
				Kind: KindString,
				Desc: "Comma-separated fiat or crypto currencies to quote in (default: usd)",
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			ids := splitList(stringArg(args, "ids", ""))
			vs := splitList(stringArg(args, "vs_currencies", "usd"))
			if len(ids) == 0 {
				return "Error: at least one coin id is required", nil
			}
			prices, err := cg.SimplePrice(ctx, ids, vs)
			if err != nil {
				return fmt.Sprintf("Error fetching crypto prices: %v", err), nil
			}
			if len(prices) == 0 {
				return fmt.Sprintf("Error: no prices found for %s. Check the CoinGecko ids.", strings.Join(ids, ", ")), nil
			}
			return prices, nil
		},
	}
}

func createMarketDataTool(cg *CoinGeckoClient) Tool {
	return Tool{
		Name:        ToolMarketData,
		Description: "Get a ranked overview of the cryptocurrency market from CoinGecko: price, market cap, volume and 24h change of the top coins.",
		Params: map[string]Param{
			"vs_currency": {
				Kind: KindString,
				Desc: "Currency to quote in (default: usd)",
			},
			"limit": {
				Kind: KindNumber,
				Desc: "Number of coins to return (default: 10, max: 50)",
			},
			"order": {
				Kind: KindEnum,
				Desc: "Sort order (default: market_cap_desc)",
				Enum: marketOrders,
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			vs := strings.ToLower(stringArg(args, "vs_currency", "usd"))
			limit := clampInt(int(numberArg(args, "limit", 10)), 1, 50)
			order := stringArg(args, "order", marketOrders[0])

			coins, err := cg.Markets(ctx, vs, limit, order)
			if err != nil {
				return fmt.Sprintf("Error fetching market data: %v", err), nil
			}
			return coins, nil
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
