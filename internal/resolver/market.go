package resolver

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

// MarketConfig is the JSON layout of a static market file:
//
//	{
//	  "tokens": [{"address": "0x..", "decimals": 6}],
//	  "prices": [{"base": "0x..", "quote": "0x..", "price": "1834.12"}],
//	  "routes": [{"addresses": ["0x..", "0x.."], "version": "V3", "fees": [500]}]
//	}
type MarketConfig struct {
	Tokens []MarketToken `json:"tokens"`
	Prices []MarketPrice `json:"prices"`
	Routes []MarketRoute `json:"routes"`
}

type MarketToken struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

type MarketPrice struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
	Price string `json:"price"`
}

type MarketRoute struct {
	Addresses []string         `json:"addresses"`
	Version   models.VenueKind `json:"version"`
	Fees      []uint32         `json:"fees,omitempty"`
}

// LoadStaticFile reads a market file into a Static oracle.
func LoadStaticFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read market config: %w", err)
	}

	var cfg MarketConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse market config: %w", err)
	}

	s, err := cfg.Static()
	if err != nil {
		return nil, fmt.Errorf("market config %s: %w", path, err)
	}
	return s, nil
}

// Static builds the oracle described by cfg.
func (cfg MarketConfig) Static() (*Static, error) {
	s := NewStatic()

	for i, t := range cfg.Tokens {
		addr, err := parseHex(t.Address)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		s.SetDecimals(addr, t.Decimals)
	}

	for i, p := range cfg.Prices {
		base, err := parseHex(p.Base)
		if err != nil {
			return nil, fmt.Errorf("price %d: %w", i, err)
		}
		quote, err := parseHex(p.Quote)
		if err != nil {
			return nil, fmt.Errorf("price %d: %w", i, err)
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("price %d: bad price %q", i, p.Price)
		}
		s.SetPrice(base, quote, price)
	}

	for i, r := range cfg.Routes {
		if len(r.Addresses) < 2 {
			return nil, fmt.Errorf("route %d: need at least 2 addresses", i)
		}
		hops := make([]models.Address, len(r.Addresses))
		for j, a := range r.Addresses {
			addr, err := parseHex(a)
			if err != nil {
				return nil, fmt.Errorf("route %d hop %d: %w", i, j, err)
			}
			hops[j] = addr
		}
		route := models.Route{Hops: hops, Venue: r.Version}
		if r.Version == models.VenueV3 {
			if len(r.Fees) != len(hops)-1 {
				return nil, fmt.Errorf("route %d: %d fees for %d hops", i, len(r.Fees), len(hops))
			}
			route.PerHopFee = r.Fees
		}
		s.SetRoute(route)
	}

	return s, nil
}

func parseHex(s string) (models.Address, error) {
	if !common.IsHexAddress(s) {
		return models.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
