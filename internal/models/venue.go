package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// VenueKind selects the swap venue a route settles on.
type VenueKind uint8

const (
	// VenueV2 is a constant-product venue; pools carry no fee tier.
	VenueV2 VenueKind = iota
	// VenueV3 is a concentrated-liquidity venue; pools are selected by fee tier.
	VenueV3
)

func (v VenueKind) String() string {
	switch v {
	case VenueV2:
		return "V2"
	case VenueV3:
		return "V3"
	default:
		return fmt.Sprintf("VenueKind(%d)", uint8(v))
	}
}

// Valid reports whether v is one of the supported venues.
func (v VenueKind) Valid() bool {
	return v == VenueV2 || v == VenueV3
}

// ParseVenue accepts "V2"/"V3" in any case and the numeric codes "0"/"1"
// used by the on-chain deposit call.
func ParseVenue(s string) (VenueKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "V2", "0":
		return VenueV2, nil
	case "V3", "1":
		return VenueV3, nil
	}
	return 0, fmt.Errorf("unsupported venue %q", s)
}

func (v VenueKind) MarshalJSON() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("unsupported venue %d", uint8(v))
	}
	return json.Marshal(v.String())
}

func (v *VenueKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// numeric form: 0 | 1
		var n uint8
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return fmt.Errorf("venue: %w", err)
		}
		s = fmt.Sprintf("%d", n)
	}
	parsed, err := ParseVenue(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
