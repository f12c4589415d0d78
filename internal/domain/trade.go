package domain

import (
	"strings"
	"time"
)

// Trade is an executed fill as reported by the venue. ID is the venue's
// dedupe identifier; the position tracker applies each ID at most once.
type Trade struct {
	ID         int64
	MarketID   string
	Buyer      string
	Seller     string
	Outcome    Outcome
	PriceTicks int64
	SizeUnits  int64
	Timestamp  time.Time
	TxHash     string
}

// Involves reports whether the given trader address took part in the trade.
func (t Trade) Involves(addr string) bool {
	return strings.EqualFold(t.Buyer, addr) || strings.EqualFold(t.Seller, addr)
}

// Bought reports whether addr was the buyer.
func (t Trade) Bought(addr string) bool {
	return strings.EqualFold(t.Buyer, addr)
}

// FailedTrade is a fill the venue rejected post-hoc during on-chain
// settlement. Its presence after a submission means the order is dead.
type FailedTrade struct {
	MarketID     string
	TxHash       string
	BuyerAddress string
	FillSize     int64
	FillPrice    int64
	Reason       string
	Timestamp    time.Time
}

// PendingTrade is a fill whose settlement transaction is still in flight.
// While one of our pending trades exists, the order that produced it must
// not be re-submitted.
type PendingTrade struct {
	MarketID     string
	TxHash       string
	BuyerAddress string
	FillSize     int64
	FillPrice    int64
	Timestamp    time.Time
}

// PriceLevel is one level of an orderbook side.
type PriceLevel struct {
	PriceTicks int64
	SizeUnits  int64
}

// OrderbookSnapshot is a full orderbook for one outcome of a market.
type OrderbookSnapshot struct {
	MarketID   string
	Outcome    Outcome
	Bids       []PriceLevel // descending price
	Asks       []PriceLevel // ascending price
	LastUpdate time.Time
}

// BestAsk returns the lowest ask, or false when the book is empty.
func (s OrderbookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// BestBid returns the highest bid, or false when the book is empty.
func (s OrderbookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}
