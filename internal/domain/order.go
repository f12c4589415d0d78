package domain

import "time"

// Side indicates whether an order buys or sells outcome shares. The wire
// encoding is the integer value (0 = buy, 1 = sell).
type Side int

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

// String returns the display name for the side.
func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// OrderState tracks the local lifecycle of an order handle. Pending orders
// have been submitted but not yet confirmed by the verification protocol.
type OrderState string

const (
	OrderStatePending   OrderState = "pending"
	OrderStateSettling  OrderState = "settling" // fill observed, tx mid on-chain settlement
	OrderStateOpen      OrderState = "open"     // confirmed resting on the book
	OrderStateFilled    OrderState = "filled"
	OrderStateCancelled OrderState = "cancelled"
	OrderStateRejected  OrderState = "rejected"
	OrderStateExpired   OrderState = "expired"
)

// Terminal reports whether the state is final.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected, OrderStateExpired:
		return true
	}
	return false
}

// Order is the ledger's local handle for a submitted order. It is owned
// exclusively by the order ledger until it reaches a terminal state or the
// market rotates.
type Order struct {
	ClientID   string // uuid assigned at submission
	Hash       string // venue order hash, set from the submit response
	MarketID   string
	Outcome    Outcome
	Side       Side
	PriceTicks int64 // fixed-point probability, 1e6 scale
	SizeUnits  int64 // fixed-point shares, 1e6 scale
	Expiration time.Time
	TxHash     string // settlement tx when the fill settles asynchronously
	State      OrderState
	Slot       string // quoting slot key (market/outcome/side/level)
	Strategy   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Price returns the display probability from fixed-point ticks.
func (o Order) Price() float64 {
	return float64(o.PriceTicks) / PriceScale
}

// Size returns the display share count from fixed-point units.
func (o Order) Size() float64 {
	return float64(o.SizeUnits) / PriceScale
}

// OrderResult is the venue's immediate response to a submission. It is never
// trusted alone; the verification protocol decides the order's real fate.
type OrderResult struct {
	Accepted bool
	Hash     string
	Status   string
	Message  string
}

// VenueOrder is an order as reported by the venue's open-order listing.
type VenueOrder struct {
	Hash          string
	MarketID      string
	Trader        string
	Side          Side
	Outcome       Outcome
	PriceTicks    int64
	SizeUnits     int64
	FilledUnits   int64
	RemainingUnit int64
	Expiration    time.Time
	Status        string
	CreatedAt     time.Time
}
