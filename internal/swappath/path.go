// Package swappath encodes multi-hop routes into the byte form each swap
// venue's router expects, and decodes them back for inspection.
package swappath

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

var (
	ErrPathLength    = errors.New("path length mismatch")
	ErrFeeTier       = errors.New("fee tier out of range")
	ErrMalformedPath = errors.New("malformed path")
	ErrUnknownVenue  = errors.New("unknown venue")
)

const (
	addressLen = common.AddressLength
	feeLen     = 3
	// MaxFeeTier is the largest fee that fits the 24-bit V3 field.
	MaxFeeTier = 1<<24 - 1
)

// addressListArgs is the ABI argument list for a single address[] value.
var addressListArgs abi.Arguments

func init() {
	t, err := abi.NewType("address[]", "", nil)
	if err != nil {
		panic(err)
	}
	addressListArgs = abi.Arguments{{Type: t}}
}

// EncodedPath is a venue-tagged encoded route.
type EncodedPath struct {
	Venue models.VenueKind
	Bytes []byte
}

// Hex returns the 0x-prefixed lowercase hex form.
func (p EncodedPath) Hex() string {
	return hexutil.Encode(p.Bytes)
}

func (p EncodedPath) Equal(o EncodedPath) bool {
	return p.Venue == o.Venue && bytes.Equal(p.Bytes, o.Bytes)
}

// Encode produces the venue-specific path for route. It is deterministic:
// equal routes always encode to identical bytes.
func Encode(route models.Route) (EncodedPath, error) {
	if len(route.Hops) < 2 {
		return EncodedPath{}, fmt.Errorf("%w: route needs at least 2 hops, got %d", ErrPathLength, len(route.Hops))
	}

	switch route.Venue {
	case models.VenueV2:
		b, err := encodeV2(route.Hops)
		if err != nil {
			return EncodedPath{}, err
		}
		return EncodedPath{Venue: models.VenueV2, Bytes: b}, nil
	case models.VenueV3:
		b, err := encodeV3(route.Hops, route.PerHopFee)
		if err != nil {
			return EncodedPath{}, err
		}
		return EncodedPath{Venue: models.VenueV3, Bytes: b}, nil
	default:
		return EncodedPath{}, fmt.Errorf("%w: %s", ErrUnknownVenue, route.Venue)
	}
}

// VenueOf returns the venue an encoded path was produced for.
func VenueOf(p EncodedPath) models.VenueKind {
	return p.Venue
}

// Decode reverses Encode.
func Decode(p EncodedPath) (models.Route, error) {
	switch p.Venue {
	case models.VenueV2:
		hops, err := decodeV2(p.Bytes)
		if err != nil {
			return models.Route{}, err
		}
		return models.Route{Hops: hops, Venue: models.VenueV2}, nil
	case models.VenueV3:
		hops, fees, err := decodeV3(p.Bytes)
		if err != nil {
			return models.Route{}, err
		}
		return models.Route{Hops: hops, Venue: models.VenueV3, PerHopFee: fees}, nil
	default:
		return models.Route{}, fmt.Errorf("%w: %s", ErrUnknownVenue, p.Venue)
	}
}

// DecodeHex decodes a 0x-prefixed path for the given venue.
func DecodeHex(venue models.VenueKind, s string) (models.Route, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return models.Route{}, fmt.Errorf("%w: %v", ErrMalformedPath, err)
	}
	return Decode(EncodedPath{Venue: venue, Bytes: b})
}

// encodeV2 is the ABI encoding of address[]: offset word, length word, then
// one left-padded word per hop.
func encodeV2(hops []models.Address) ([]byte, error) {
	b, err := addressListArgs.Pack(hops)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPath, err)
	}
	return b, nil
}

func decodeV2(b []byte) ([]models.Address, error) {
	vals, err := addressListArgs.Unpack(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPath, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("%w: expected one value, got %d", ErrMalformedPath, len(vals))
	}
	hops, ok := vals[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected type %T", ErrMalformedPath, vals[0])
	}
	if len(hops) < 2 {
		return nil, fmt.Errorf("%w: %d hops", ErrMalformedPath, len(hops))
	}
	return hops, nil
}

// encodeV3 packs hop0 | fee0 | hop1 | fee1 | ... | hopN with 3-byte
// big-endian fees.
func encodeV3(hops []models.Address, fees []uint32) ([]byte, error) {
	if len(hops) != len(fees)+1 {
		return nil, fmt.Errorf("%w: %d hops with %d fees", ErrPathLength, len(hops), len(fees))
	}

	out := make([]byte, 0, len(hops)*addressLen+len(fees)*feeLen)
	for i, fee := range fees {
		if fee > MaxFeeTier {
			return nil, fmt.Errorf("%w: %d at hop %d", ErrFeeTier, fee, i)
		}
		out = append(out, hops[i].Bytes()...)
		out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
	}
	out = append(out, hops[len(hops)-1].Bytes()...)
	return out, nil
}

func decodeV3(b []byte) ([]models.Address, []uint32, error) {
	const step = addressLen + feeLen
	if len(b) < addressLen+step || (len(b)-addressLen)%step != 0 {
		return nil, nil, fmt.Errorf("%w: %d bytes is not a V3 path", ErrMalformedPath, len(b))
	}

	n := (len(b) - addressLen) / step
	hops := make([]models.Address, 0, n+1)
	fees := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		off := i * step
		hops = append(hops, common.BytesToAddress(b[off:off+addressLen]))
		f := b[off+addressLen : off+step]
		fees = append(fees, uint32(f[0])<<16|uint32(f[1])<<8|uint32(f[2]))
	}
	hops = append(hops, common.BytesToAddress(b[len(b)-addressLen:]))
	return hops, fees, nil
}
