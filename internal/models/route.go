package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// Address is a 20-byte account or token address.
type Address = common.Address

// Route is an ordered multi-hop path between two tokens on a single venue.
// For V3 routes PerHopFee[i] is the fee tier of the pool between Hops[i]
// and Hops[i+1]; V2 routes carry no fees.
type Route struct {
	Hops      []Address `json:"hops"`
	Venue     VenueKind `json:"venue"`
	PerHopFee []uint32  `json:"perHopFee,omitempty"`
}

// Source returns the first hop, or the zero address for an empty route.
func (r Route) Source() Address {
	if len(r.Hops) == 0 {
		return Address{}
	}
	return r.Hops[0]
}

// Destination returns the last hop, or the zero address for an empty route.
func (r Route) Destination() Address {
	if len(r.Hops) == 0 {
		return Address{}
	}
	return r.Hops[len(r.Hops)-1]
}

// Equal reports structural equality.
func (r Route) Equal(o Route) bool {
	if r.Venue != o.Venue || len(r.Hops) != len(o.Hops) || len(r.PerHopFee) != len(o.PerHopFee) {
		return false
	}
	for i := range r.Hops {
		if r.Hops[i] != o.Hops[i] {
			return false
		}
	}
	for i := range r.PerHopFee {
		if r.PerHopFee[i] != o.PerHopFee[i] {
			return false
		}
	}
	return true
}

// BasketEntry is one token of a portfolio basket with its target weight and
// the venue used to trade it. FeeTier is zero for V2 entries.
type BasketEntry struct {
	Token           Address   `json:"token"`
	TargetWeightBps uint16    `json:"targetWeightBps"`
	Venue           VenueKind `json:"venue"`
	FeeTier         uint32    `json:"feeTier"`
	Decimals        uint8     `json:"decimals"`
}

// Normalized returns the entry with V2 fee tiers cleared.
func (e BasketEntry) Normalized() BasketEntry {
	if e.Venue == VenueV2 {
		e.FeeTier = 0
	}
	return e
}
