package products

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultProducts is the watchlist used when no config file is present.
var DefaultProducts = []string{
	"BTC-USD",
	"ETH-USD",
	"SOL-USD",
	"DOGE-USD",
	"XRP-USD",
	"ADA-USD",
	"AVAX-USD",
	"LINK-USD",
}

// WatchlistConfig represents the YAML configuration structure
type WatchlistConfig struct {
	Products []string `yaml:"products"`
}

// LoadWatchlist loads product ids from a YAML file
func LoadWatchlist(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist file: %w", err)
	}

	var config WatchlistConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist YAML: %w", err)
	}

	if len(config.Products) == 0 {
		return nil, fmt.Errorf("no products found in watchlist file")
	}

	return config.Products, nil
}

// LoadWatchlistWithFallback tries to load from YAML, falls back to defaults
func LoadWatchlistWithFallback(filePath string) []string {
	products, err := LoadWatchlist(filePath)
	if err != nil {
		return DefaultProducts
	}
	return products
}
