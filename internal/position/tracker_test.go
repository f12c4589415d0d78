package position

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/quantfold/turbinebot/internal/domain"
)

const trader = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

type fakeQuerier struct {
	position domain.Position
	err      error
	calls    int
}

func (q *fakeQuerier) GetPosition(_ context.Context, _, marketID string) (domain.Position, error) {
	q.calls++
	if q.err != nil {
		return domain.Position{}, q.err
	}
	pos := q.position
	pos.MarketID = marketID
	return pos, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buyFill(id int64, outcome domain.Outcome, price, size int64) domain.Trade {
	return domain.Trade{
		ID:         id,
		MarketID:   "mkt-1",
		Buyer:      trader,
		Seller:     "0x0000000000000000000000000000000000000001",
		Outcome:    outcome,
		PriceTicks: price,
		SizeUnits:  size,
		Timestamp:  time.Now(),
	}
}

func TestApplyAccumulates(t *testing.T) {
	tr := NewTracker(&fakeQuerier{}, trader, discard())

	tr.Apply(buyFill(1, domain.OutcomeYes, 500_000, 10*domain.PriceScale))
	tr.Apply(buyFill(2, domain.OutcomeNo, 400_000, 5*domain.PriceScale))

	pos := tr.Get("mkt-1")
	if pos.YesShares != 10*domain.PriceScale {
		t.Errorf("yes shares = %d, want %d", pos.YesShares, 10*domain.PriceScale)
	}
	if pos.YesCost != 5*domain.PriceScale {
		t.Errorf("yes cost = %d, want %d", pos.YesCost, 5*domain.PriceScale)
	}
	if pos.NoShares != 5*domain.PriceScale {
		t.Errorf("no shares = %d, want %d", pos.NoShares, 5*domain.PriceScale)
	}
	if got := tr.Net("mkt-1"); got != 5*domain.PriceScale {
		t.Errorf("net = %d, want %d", got, 5*domain.PriceScale)
	}
}

func TestApplyIdempotentByTradeID(t *testing.T) {
	tr := NewTracker(&fakeQuerier{}, trader, discard())

	fill := buyFill(7, domain.OutcomeYes, 500_000, 10*domain.PriceScale)
	tr.Apply(fill)
	tr.Apply(fill)
	tr.Apply(fill)

	if got := tr.Get("mkt-1").YesShares; got != 10*domain.PriceScale {
		t.Errorf("replayed fill double-counted: yes shares = %d", got)
	}
}

func TestApplySellReducesExposure(t *testing.T) {
	tr := NewTracker(&fakeQuerier{}, trader, discard())

	tr.Apply(buyFill(1, domain.OutcomeYes, 500_000, 10*domain.PriceScale))

	sell := buyFill(2, domain.OutcomeYes, 600_000, 4*domain.PriceScale)
	sell.Buyer, sell.Seller = sell.Seller, trader
	tr.Apply(sell)

	pos := tr.Get("mkt-1")
	if pos.YesShares != 6*domain.PriceScale {
		t.Errorf("yes shares = %d, want %d", pos.YesShares, 6*domain.PriceScale)
	}
	// 4 shares at 60 cents.
	if pos.YesRevenue != 2_400_000 {
		t.Errorf("yes revenue = %d, want 2400000", pos.YesRevenue)
	}
}

func TestApplyIgnoresOtherTraders(t *testing.T) {
	tr := NewTracker(&fakeQuerier{}, trader, discard())

	fill := buyFill(1, domain.OutcomeYes, 500_000, 10*domain.PriceScale)
	fill.Buyer = "0x0000000000000000000000000000000000000002"
	tr.Apply(fill)

	if !tr.Get("mkt-1").Flat() {
		t.Error("uninvolved fill should not move the position")
	}
}

func TestResyncReplacesLocalState(t *testing.T) {
	q := &fakeQuerier{position: domain.Position{YesShares: 3 * domain.PriceScale}}
	tr := NewTracker(q, trader, discard())

	// Local belief drifted.
	tr.Apply(buyFill(1, domain.OutcomeYes, 500_000, 99*domain.PriceScale))

	if err := tr.Resync(context.Background(), "mkt-1"); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if got := tr.Get("mkt-1").YesShares; got != 3*domain.PriceScale {
		t.Errorf("resync did not replace local state: yes shares = %d", got)
	}
}

func TestDrop(t *testing.T) {
	tr := NewTracker(&fakeQuerier{}, trader, discard())
	tr.Apply(buyFill(1, domain.OutcomeYes, 500_000, domain.PriceScale))

	tr.Drop("mkt-1")
	if !tr.Get("mkt-1").Flat() {
		t.Error("dropped market should read flat")
	}
}

func TestDropFreesAppliedTradeIDs(t *testing.T) {
	tr := NewTracker(&fakeQuerier{}, trader, discard())

	tr.Apply(buyFill(1, domain.OutcomeYes, 500_000, domain.PriceScale))
	other := buyFill(2, domain.OutcomeYes, 500_000, domain.PriceScale)
	other.MarketID = "mkt-2"
	tr.Apply(other)

	tr.Drop("mkt-1")

	tr.mu.Lock()
	_, rotated := tr.applied["mkt-1"]
	_, live := tr.applied["mkt-2"]
	tr.mu.Unlock()
	if rotated {
		t.Error("rotated market's trade IDs still held")
	}
	if !live {
		t.Error("other market's trade IDs must survive drop")
	}
}
