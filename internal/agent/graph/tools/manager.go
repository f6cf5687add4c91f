package tools

// DefaultTools returns the tools every agent registry starts from.
func DefaultTools(cg *CoinGeckoClient) []Tool {
	return []Tool{
		createCalculatorTool(),
		createEchoTool(),
		createResearchTool(),
		createCryptoPricesTool(cg),
		createMarketDataTool(cg),
	}
}

// NewDefaultRegistry builds the registry served by the agent.
func NewDefaultRegistry(cg *CoinGeckoClient) (*Registry, error) {
	return NewRegistry(DefaultTools(cg)...)
}
