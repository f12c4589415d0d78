package domain

import "time"

// PendingClaim is a rotated-out market awaiting resolution and payout. The
// claim scheduler owns the set; entries leave it only on confirmed claim,
// on "no winning tokens", or when the venue reports the market unresolvable.
type PendingClaim struct {
	MarketID        string
	ContractAddress string
	AddedAt         time.Time
	LastAttempt     time.Time
	Attempts        int
}

// ClaimResult is the relayer's response to a claim submission.
type ClaimResult struct {
	MarketID string
	TxHash   string
	Claimed  bool
	// NoWinnings is set when the venue reports no winning tokens for the
	// wallet; the claim is complete even though nothing was paid out.
	NoWinnings  bool
	PayoutUnits int64
}
