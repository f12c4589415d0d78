package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/quantfold/turbinebot/internal/domain"
)

type fakeChecker struct {
	failed  []domain.FailedTrade
	pending []domain.PendingTrade
	trades  []domain.Trade
	open    []domain.VenueOrder
}

func (c *fakeChecker) GetFailedTrades(context.Context) ([]domain.FailedTrade, error) {
	return c.failed, nil
}

func (c *fakeChecker) GetPendingTrades(context.Context) ([]domain.PendingTrade, error) {
	return c.pending, nil
}

func (c *fakeChecker) GetTrades(context.Context, string, int) ([]domain.Trade, error) {
	return c.trades, nil
}

func (c *fakeChecker) GetOpenOrders(context.Context, string, string) ([]domain.VenueOrder, error) {
	return c.open, nil
}

func submitOne(t *testing.T, l *Ledger) domain.Order {
	t.Helper()
	submitted, err := l.Submit(context.Background(), testOrder("mkt-1/dir/YES"), "0xSettle", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return submitted
}

func newVerifier(l *Ledger, checker TradeChecker) *Verifier {
	return NewVerifier(l, checker, time.Millisecond, time.Minute, discard())
}

func TestVerifySettlingBlocksResubmission(t *testing.T) {
	l := New(&fakePoster{result: domain.OrderResult{Accepted: true}}, &fakeBuilder{}, trader, discard())
	submitted := submitOne(t, l)

	checker := &fakeChecker{pending: []domain.PendingTrade{{
		MarketID:     "mkt-1",
		TxHash:       "0xtx1",
		BuyerAddress: trader,
		FillSize:     submitted.SizeUnits,
		Timestamp:    time.Now(),
	}}}

	outcome, err := newVerifier(l, checker).Verify(context.Background(), submitted.ClientID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome.State != domain.OrderStateSettling {
		t.Errorf("state = %s, want settling", outcome.State)
	}
	if !l.HasPendingSettlement("mkt-1") {
		t.Error("settling fill must register a pending settlement")
	}
	// The slot stays occupied; a settling order is live, not resubmittable.
	if _, live := l.LiveOrderAtSlot("mkt-1/dir/YES"); !live {
		t.Error("settling order must keep its slot")
	}
}

func TestVerifyFilled(t *testing.T) {
	l := New(&fakePoster{result: domain.OrderResult{Accepted: true}}, &fakeBuilder{}, trader, discard())
	submitted := submitOne(t, l)

	checker := &fakeChecker{trades: []domain.Trade{{
		ID:         42,
		MarketID:   "mkt-1",
		Buyer:      trader,
		Seller:     "0x0000000000000000000000000000000000000001",
		Outcome:    submitted.Outcome,
		PriceTicks: submitted.PriceTicks,
		SizeUnits:  submitted.SizeUnits,
		Timestamp:  time.Now(),
	}}}

	outcome, err := newVerifier(l, checker).Verify(context.Background(), submitted.ClientID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome.State != domain.OrderStateFilled {
		t.Errorf("state = %s, want filled", outcome.State)
	}
	if outcome.Fill == nil || outcome.Fill.ID != 42 {
		t.Error("filled outcome must carry the matched execution")
	}
	if outcome.NeedsResync {
		t.Error("clean fill should not force a resync")
	}

	// Terminal short-circuit: a second verification never re-interrogates.
	outcome, err = newVerifier(l, &fakeChecker{}).Verify(context.Background(), submitted.ClientID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.State != domain.OrderStateFilled {
		t.Errorf("repeat verify state = %s, want filled", outcome.State)
	}
}

func TestVerifyFailedSettlement(t *testing.T) {
	l := New(&fakePoster{result: domain.OrderResult{Accepted: true}}, &fakeBuilder{}, trader, discard())
	submitted := submitOne(t, l)

	checker := &fakeChecker{failed: []domain.FailedTrade{{
		MarketID:     "mkt-1",
		TxHash:       "0xtx1",
		BuyerAddress: trader,
		FillSize:     submitted.SizeUnits,
		Reason:       "insufficient collateral",
		Timestamp:    time.Now(),
	}}}

	outcome, err := newVerifier(l, checker).Verify(context.Background(), submitted.ClientID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome.State != domain.OrderStateRejected {
		t.Errorf("state = %s, want rejected", outcome.State)
	}
	if !outcome.NeedsResync {
		t.Error("post-hoc failure must force a resync")
	}
}

func TestVerifyOpenOrder(t *testing.T) {
	l := New(&fakePoster{result: domain.OrderResult{Accepted: true}}, &fakeBuilder{}, trader, discard())
	submitted := submitOne(t, l)

	checker := &fakeChecker{open: []domain.VenueOrder{{
		Hash:     submitted.Hash,
		MarketID: "mkt-1",
		Trader:   trader,
	}}}

	outcome, err := newVerifier(l, checker).Verify(context.Background(), submitted.ClientID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if outcome.State != domain.OrderStateOpen {
		t.Errorf("state = %s, want open", outcome.State)
	}
	if outcome.NeedsResync {
		t.Error("confirmed resting order should not force a resync")
	}
}

func TestVerifyAbsentEverywhereForcesResync(t *testing.T) {
	l := New(&fakePoster{result: domain.OrderResult{Accepted: true}}, &fakeBuilder{}, trader, discard())
	submitted := submitOne(t, l)

	outcome, err := newVerifier(l, &fakeChecker{}).Verify(context.Background(), submitted.ClientID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !outcome.NeedsResync {
		t.Error("an order absent from every venue view must force a resync")
	}
	// The order stays tracked so its slot is not quoted again blindly.
	if _, live := l.LiveOrderAtSlot("mkt-1/dir/YES"); !live {
		t.Error("unverified order must keep its slot")
	}
}

func TestVerifyUnknownOrder(t *testing.T) {
	l := New(&fakePoster{}, &fakeBuilder{}, trader, discard())

	if _, err := newVerifier(l, &fakeChecker{}).Verify(context.Background(), "no-such-id"); err == nil {
		t.Error("expected error for unknown client ID")
	}
}
