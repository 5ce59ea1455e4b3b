package controls

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("flag not found")

// Flag is a named boolean switch for one portfolio.
type Flag struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	FlagPaused = "paused"
)
