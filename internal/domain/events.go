package domain

import "time"

// RotationEvent announces that the active quick market changed. Retiring
// fields are zero on the very first detection after startup.
type RotationEvent struct {
	RetiringMarketID string
	RetiringContract string
	NewMarketID      string
	NewStrikeTicks   int64
	NewEndTime       time.Time
	At               time.Time
}

// First reports whether this is the initial detection with no retiring market.
func (e RotationEvent) First() bool {
	return e.RetiringMarketID == ""
}
