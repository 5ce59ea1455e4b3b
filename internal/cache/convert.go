package cache

import "github.com/holiman/uint256"

// decString renders an amount as a base-10 string column value.
func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
