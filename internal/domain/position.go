package domain

import "time"

// Position is the bot's holdings in a single market. Shares and monetary
// amounts are 1e6 fixed point. Costs accumulate on buys, revenues on sells;
// realized PnL for a resolved market is revenue plus claim minus cost.
type Position struct {
	MarketID   string
	YesShares  int64
	NoShares   int64
	YesCost    int64
	NoCost     int64
	YesRevenue int64
	NoRevenue  int64
	UpdatedAt  time.Time
}

// Shares returns the share count for one outcome.
func (p Position) Shares(o Outcome) int64 {
	if o == OutcomeYes {
		return p.YesShares
	}
	return p.NoShares
}

// Net returns YES exposure minus NO exposure in share units.
func (p Position) Net() int64 {
	return p.YesShares - p.NoShares
}

// Flat reports whether the position holds no shares on either outcome.
func (p Position) Flat() bool {
	return p.YesShares == 0 && p.NoShares == 0
}

// ClaimablePosition is a resolved market holding winning shares, as reported
// by the venue's claim-data endpoint.
type ClaimablePosition struct {
	MarketID        string
	ContractAddress string
	Outcome         Outcome
	Shares          int64
	PayoutUnits     int64
}
