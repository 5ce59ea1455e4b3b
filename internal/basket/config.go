package basket

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

// ListConfig is the bulk basket configuration: parallel lists of equal
// length, one element per token.
type ListConfig struct {
	Tokens   []string           `json:"tokens"`
	Weights  []uint16           `json:"weights"`
	Venues   []models.VenueKind `json:"venues"`
	FeeTiers []uint32           `json:"feeTiers"`
	Decimals []uint8            `json:"decimals,omitempty"`
}

// Entries validates the lists and converts them into basket entries.
func (c ListConfig) Entries() ([]models.BasketEntry, error) {
	tokens := make([]models.Address, len(c.Tokens))
	for i, s := range c.Tokens {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%w: token %d %q is not an address", ErrInvalidEntry, i, s)
		}
		tokens[i] = common.HexToAddress(s)
	}
	return FromLists(tokens, c.Weights, c.Venues, c.FeeTiers, c.Decimals)
}

// FromLists zips the configuration lists into entries. decimals may be
// empty, in which case every token gets DefaultDecimals. Weight rules are
// checked by ReplaceAll/BulkAppend, not here.
func FromLists(
	tokens []models.Address,
	weights []uint16,
	venues []models.VenueKind,
	feeTiers []uint32,
	decimals []uint8,
) ([]models.BasketEntry, error) {

	n := len(tokens)
	if len(weights) != n || len(venues) != n || len(feeTiers) != n {
		return nil, fmt.Errorf("%w: tokens=%d weights=%d venues=%d feeTiers=%d",
			ErrLengthMismatch, n, len(weights), len(venues), len(feeTiers))
	}
	if len(decimals) != 0 && len(decimals) != n {
		return nil, fmt.Errorf("%w: tokens=%d decimals=%d", ErrLengthMismatch, n, len(decimals))
	}

	entries := make([]models.BasketEntry, n)
	for i := range tokens {
		dec := uint8(DefaultDecimals)
		if len(decimals) != 0 {
			dec = decimals[i]
		}
		entries[i] = models.BasketEntry{
			Token:           tokens[i],
			TargetWeightBps: weights[i],
			Venue:           venues[i],
			FeeTier:         feeTiers[i],
			Decimals:        dec,
		}.Normalized()
	}
	return entries, nil
}

// LoadConfigFile reads a ListConfig from a JSON file.
func LoadConfigFile(path string) ([]models.BasketEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read basket config: %w", err)
	}

	var cfg ListConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse basket config: %w", err)
	}

	entries, err := cfg.Entries()
	if err != nil {
		return nil, fmt.Errorf("basket config %s: %w", path, err)
	}
	return entries, nil
}
