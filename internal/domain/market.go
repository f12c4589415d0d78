// Package domain holds the core types shared by every layer of the bot:
// markets, orders, trades, positions, strategy decisions, and the store
// interfaces implemented by the journal and cache packages.
package domain

import "time"

// Outcome identifies one side of a binary market. The wire encoding is the
// integer value (0 = YES, 1 = NO).
type Outcome int

const (
	OutcomeYes Outcome = 0
	OutcomeNo  Outcome = 1
)

// String returns the display name for the outcome.
func (o Outcome) String() string {
	if o == OutcomeYes {
		return "YES"
	}
	return "NO"
}

// Opposite returns the other outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// PriceScale is the fixed-point scale for prices and sizes. A price of
// 500000 is a 50% probability; a size of 1000000 is one share.
const PriceScale = 1_000_000

// Market is a Turbine prediction market. The bot never mutates markets; it
// only reads them from the venue.
type Market struct {
	ID                string
	ChainID           int
	ContractAddress   string // claim target once resolved
	SettlementAddress string // collateral spender
	Question          string
	Expiration        time.Time
	Resolved          bool
	WinningOutcome    *Outcome
	Volume            int64
}

// QuickMarket is a short-lived (15-minute) up/down market for an asset. The
// strike is the oracle price captured at open, in 1e6 fixed point.
type QuickMarket struct {
	MarketID        string
	Asset           string
	IntervalMinutes int
	StrikeTicks     int64
	EndTicks        *int64
	StartTime       time.Time
	EndTime         time.Time
	Resolved        bool
	Outcome         *Outcome
	ContractAddress string
}

// Remaining returns the time left until expiry relative to now.
func (q QuickMarket) Remaining(now time.Time) time.Duration {
	return q.EndTime.Sub(now)
}

// Resolution reports whether a market has resolved and which outcome won.
type Resolution struct {
	MarketID string
	Resolved bool
	Outcome  Outcome
	At       time.Time
}
