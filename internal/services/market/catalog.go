package market

import "github.com/cryptosage/sage/internal/models"

// CatalogEntry names one tracked asset.
type CatalogEntry struct {
	ID     string
	Symbol string
	Name   string
}

// Catalog is the fixed set of tracked assets, in display order.
var Catalog = []CatalogEntry{
	{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin"},
	{ID: "ethereum", Symbol: "ETH", Name: "Ethereum"},
	{ID: "solana", Symbol: "SOL", Name: "Solana"},
	{ID: "binancecoin", Symbol: "BNB", Name: "BNB"},
	{ID: "ripple", Symbol: "XRP", Name: "XRP"},
	{ID: "cardano", Symbol: "ADA", Name: "Cardano"},
	{ID: "avalanche-2", Symbol: "AVAX", Name: "Avalanche"},
	{ID: "dogecoin", Symbol: "DOGE", Name: "Dogecoin"},
	{ID: "tron", Symbol: "TRX", Name: "Tron"},
	{ID: "chainlink", Symbol: "LINK", Name: "Chainlink"},
	{ID: "polkadot", Symbol: "DOT", Name: "Polkadot"},
	{ID: "shiba-inu", Symbol: "SHIB", Name: "Shiba Inu"},
	{ID: "litecoin", Symbol: "LTC", Name: "Litecoin"},
	{ID: "bitcoin-cash", Symbol: "BCH", Name: "Bitcoin Cash"},
	{ID: "uniswap", Symbol: "UNI", Name: "Uniswap"},
	{ID: "stellar", Symbol: "XLM", Name: "Stellar"},
	{ID: "near", Symbol: "NEAR", Name: "NEAR Protocol"},
	{ID: "aptos", Symbol: "APT", Name: "Aptos"},
}

// CatalogIDs returns the asset IDs in catalog order.
func CatalogIDs() []string {
	ids := make([]string, len(Catalog))
	for i, entry := range Catalog {
		ids[i] = entry.ID
	}
	return ids
}

// fallbackAssets is the static price set served before the first successful
// refresh, so the app stays usable when the price API is unreachable.
var fallbackAssets = []models.AssetPrice{
	{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", CurrentPrice: 96543, Change24hPct: 2.5},
	{ID: "ethereum", Symbol: "ETH", Name: "Ethereum", CurrentPrice: 3450, Change24hPct: -1.2},
	{ID: "solana", Symbol: "SOL", Name: "Solana", CurrentPrice: 185, Change24hPct: 5.4},
	{ID: "avalanche-2", Symbol: "AVAX", Name: "Avalanche", CurrentPrice: 45.20, Change24hPct: 1.1},
}
