package quoter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/quantfold/turbinebot/internal/config"
	"github.com/quantfold/turbinebot/internal/crypto"
	"github.com/quantfold/turbinebot/internal/domain"
	"github.com/quantfold/turbinebot/internal/ledger"
	"github.com/quantfold/turbinebot/internal/platform/turbine"
	"github.com/quantfold/turbinebot/internal/position"
)

const trader = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

// fakeVenue plays both the order poster and the trade checker. Every posted
// order shows up in the open-order listing so verification settles it as
// resting. When gate is set, PostOrder blocks until the gate closes; started
// closes on the first post so a test can act mid-refresh.
type fakeVenue struct {
	mu      sync.Mutex
	posted  []string
	cancels []string

	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func (v *fakeVenue) PostOrder(_ context.Context, signed turbine.SignedOrder) (domain.OrderResult, error) {
	v.mu.Lock()
	v.posted = append(v.posted, signed.OrderHash)
	gate := v.gate
	v.mu.Unlock()
	if gate != nil {
		v.once.Do(func() { close(v.started) })
		<-gate
	}
	return domain.OrderResult{Accepted: true}, nil
}

func (v *fakeVenue) CancelOrder(_ context.Context, orderHash string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancels = append(v.cancels, orderHash)
	return nil
}

func (v *fakeVenue) GetFailedTrades(_ context.Context) ([]domain.FailedTrade, error) {
	return nil, nil
}

func (v *fakeVenue) GetPendingTrades(_ context.Context) ([]domain.PendingTrade, error) {
	return nil, nil
}

func (v *fakeVenue) GetTrades(_ context.Context, _ string, _ int) ([]domain.Trade, error) {
	return nil, nil
}

func (v *fakeVenue) GetOpenOrders(_ context.Context, _, _ string) ([]domain.VenueOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.VenueOrder, 0, len(v.posted))
	for _, h := range v.posted {
		out = append(out, domain.VenueOrder{Hash: h})
	}
	return out, nil
}

func (v *fakeVenue) posts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.posted)
}

func (v *fakeVenue) cancelled() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.cancels)
}

type fakeBuilder struct {
	mu     sync.Mutex
	n      int
	orders []domain.Order
}

func (b *fakeBuilder) Build(o domain.Order, _ string, _ *crypto.PermitSignature) (turbine.SignedOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	b.orders = append(b.orders, o)
	return turbine.SignedOrder{OrderHash: fmt.Sprintf("0xhash%d", b.n)}, nil
}

func (b *fakeBuilder) built() []domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Order(nil), b.orders...)
}

type fakeQuerier struct{ position domain.Position }

func (q *fakeQuerier) GetPosition(_ context.Context, _, marketID string) (domain.Position, error) {
	pos := q.position
	pos.MarketID = marketID
	return pos, nil
}

type fixedExpiry struct{ expiring bool }

func (e fixedExpiry) Expiring(time.Time) bool { return e.expiring }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	venue   *fakeVenue
	builder *fakeBuilder
	pos     *position.Tracker
	ctl     *Controller
}

func newHarness(expiring bool, held domain.Position) *harness {
	venue := &fakeVenue{}
	builder := &fakeBuilder{}
	logger := discard()
	l := ledger.New(venue, builder, trader, logger)
	v := ledger.NewVerifier(l, venue, time.Millisecond, time.Minute, logger)
	pos := position.NewTracker(&fakeQuerier{position: held}, trader, logger)
	cfg := config.Defaults().Quoter
	ctl := NewController(l, v, pos, fixedExpiry{expiring}, cfg, 1.5, trader, "test", logger)
	return &harness{venue: venue, builder: builder, pos: pos, ctl: ctl}
}

func marketState(marketID string, now time.Time) domain.MarketState {
	return domain.MarketState{
		Market: domain.QuickMarket{
			MarketID:  marketID,
			Asset:     "BTC",
			StartTime: now.Add(-time.Minute),
			EndTime:   now.Add(14 * time.Minute),
		},
		Book: domain.OrderbookSnapshot{
			MarketID: marketID,
			Bids:     []domain.PriceLevel{{PriceTicks: 490_000, SizeUnits: 100 * domain.PriceScale}},
			Asks:     []domain.PriceLevel{{PriceTicks: 500_000, SizeUnits: 100 * domain.PriceScale}},
		},
		Now: now,
	}
}

func directional(outcome domain.Outcome, confidence float64) domain.Decision {
	return domain.Decision{Kind: domain.DecisionDirectional, Outcome: outcome, Confidence: confidence}
}

func ladderDecision(targetTicks int64) domain.Decision {
	return domain.Decision{
		Kind:            domain.DecisionLadder,
		TargetProbTicks: targetTicks,
		SpreadTicks:     20_000,
		Levels:          2,
	}
}

func TestDirectionalSizedByConfidence(t *testing.T) {
	h := newHarness(false, domain.Position{})
	state := marketState("mkt-1", time.Now().UTC())

	// Defaults: order size 5 shares; 0.6 confidence scales it to 3.
	if err := h.ctl.Refresh(context.Background(), directional(domain.OutcomeYes, 0.6), state, "0xSettle"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	built := h.builder.built()
	if len(built) != 1 {
		t.Fatalf("built %d orders, want 1", len(built))
	}
	order := built[0]
	if order.SizeUnits != 3_000_000 {
		t.Errorf("size = %d, want 3000000", order.SizeUnits)
	}
	// Best ask plus the aggressive crossing offset.
	if order.PriceTicks != 505_000 {
		t.Errorf("price = %d, want 505000", order.PriceTicks)
	}
	if order.Side != domain.SideBuy || order.Outcome != domain.OutcomeYes {
		t.Errorf("order = %s %s, want buy YES", order.Side, order.Outcome)
	}
}

func TestDirectionalCappedByMaxPosition(t *testing.T) {
	// 48 of the 50-share limit already held; full-confidence entry wants 5.
	h := newHarness(false, domain.Position{YesShares: 48 * domain.PriceScale})
	ctx := context.Background()
	if err := h.pos.Resync(ctx, "mkt-1"); err != nil {
		t.Fatal(err)
	}
	state := marketState("mkt-1", time.Now().UTC())

	if err := h.ctl.Refresh(ctx, directional(domain.OutcomeYes, 1.0), state, "0xSettle"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	built := h.builder.built()
	if len(built) != 1 {
		t.Fatalf("built %d orders, want 1", len(built))
	}
	if built[0].SizeUnits != 2*domain.PriceScale {
		t.Errorf("size = %d, want %d", built[0].SizeUnits, 2*domain.PriceScale)
	}
}

func TestDirectionalAtLimitHoldsBack(t *testing.T) {
	h := newHarness(false, domain.Position{YesShares: 50 * domain.PriceScale})
	ctx := context.Background()
	if err := h.pos.Resync(ctx, "mkt-1"); err != nil {
		t.Fatal(err)
	}
	state := marketState("mkt-1", time.Now().UTC())

	if err := h.ctl.Refresh(ctx, directional(domain.OutcomeYes, 1.0), state, "0xSettle"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := h.venue.posts(); got != 0 {
		t.Errorf("posted %d orders at the position limit, want 0", got)
	}
}

func TestDirectionalSlotHeldAcrossCycles(t *testing.T) {
	h := newHarness(false, domain.Position{})
	ctx := context.Background()
	state := marketState("mkt-1", time.Now().UTC())
	decision := directional(domain.OutcomeYes, 0.8)

	for i := 0; i < 3; i++ {
		if err := h.ctl.Refresh(ctx, decision, state, "0xSettle"); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}

	// The slot is occupied by a live order after the first cycle; repeats
	// must not stack duplicates.
	if got := h.venue.posts(); got != 1 {
		t.Errorf("posted %d orders across repeated cycles, want 1", got)
	}
}

func TestExpiringHoldsSubmissions(t *testing.T) {
	h := newHarness(true, domain.Position{})
	ctx := context.Background()
	state := marketState("mkt-1", time.Now().UTC())

	if err := h.ctl.Refresh(ctx, directional(domain.OutcomeYes, 0.9), state, "0xSettle"); err != nil {
		t.Fatalf("directional refresh: %v", err)
	}
	if err := h.ctl.Refresh(ctx, ladderDecision(500_000), state, "0xSettle"); err != nil {
		t.Fatalf("ladder refresh: %v", err)
	}

	if got := h.venue.posts(); got != 0 {
		t.Errorf("posted %d orders inside the expiry guard, want 0", got)
	}
}

func TestLadderRebalanceGate(t *testing.T) {
	h := newHarness(false, domain.Position{})
	ctx := context.Background()
	t0 := time.Now().UTC()
	state := marketState("mkt-1", t0)

	if err := h.ctl.Refresh(ctx, ladderDecision(500_000), state, "0xSettle"); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	firstGen := h.venue.posts()
	if firstGen == 0 {
		t.Fatal("initial ladder placed no orders")
	}

	// Target moved 1%, under the 2% threshold: no requote even though the
	// interval elapsed.
	state.Now = t0.Add(10 * time.Second)
	if err := h.ctl.Refresh(ctx, ladderDecision(510_000), state, "0xSettle"); err != nil {
		t.Fatalf("small-move refresh: %v", err)
	}
	if got := h.venue.posts(); got != firstGen {
		t.Errorf("small target move requoted: %d posts, want %d", got, firstGen)
	}

	// Target moved 3% but inside the minimum rebalance interval: still no
	// requote.
	state.Now = t0.Add(time.Second)
	if err := h.ctl.Refresh(ctx, ladderDecision(530_000), state, "0xSettle"); err != nil {
		t.Fatalf("early refresh: %v", err)
	}
	if got := h.venue.posts(); got != firstGen {
		t.Errorf("early rebalance requoted: %d posts, want %d", got, firstGen)
	}

	// Both gates clear: the new generation goes up and the old one comes off.
	state.Now = t0.Add(10 * time.Second)
	if err := h.ctl.Refresh(ctx, ladderDecision(530_000), state, "0xSettle"); err != nil {
		t.Fatalf("requote refresh: %v", err)
	}
	if got := h.venue.posts(); got != 2*firstGen {
		t.Errorf("requote posted %d total, want %d", got, 2*firstGen)
	}
	if got := h.venue.cancelled(); got != firstGen {
		t.Errorf("requote cancelled %d stale levels, want %d", got, firstGen)
	}
}

func TestTeardownDuringRefreshDiscardsStaleQuotes(t *testing.T) {
	h := newHarness(false, domain.Position{})
	ctx := context.Background()
	h.venue.gate = make(chan struct{})
	h.venue.started = make(chan struct{})

	stateA := marketState("mkt-A", time.Now().UTC())
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.ctl.Refresh(ctx, ladderDecision(500_000), stateA, "0xSettle")
	}()

	// Rotation lands while the refresh is mid-submission.
	<-h.venue.started
	if err := h.ctl.Teardown(ctx, "mkt-A"); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	close(h.venue.gate)
	if err := <-errCh; err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Everything the overtaken refresh placed must come back off the book.
	if posts, cancels := h.venue.posts(), h.venue.cancelled(); cancels != posts {
		t.Errorf("cancelled %d of %d orders placed by the overtaken refresh", cancels, posts)
	}

	h.ctl.mu.Lock()
	quoted, lastTarget := h.ctl.quoted, h.ctl.lastTargetTicks
	h.ctl.mu.Unlock()
	if quoted {
		t.Error("overtaken refresh left quoted state for the retired market")
	}
	if lastTarget != 0 {
		t.Errorf("lastTargetTicks = %d after teardown, want 0", lastTarget)
	}

	// The next market starts clean: no inherited rebalance gate.
	h.venue.mu.Lock()
	h.venue.gate = nil
	h.venue.mu.Unlock()
	before := h.venue.posts()
	stateB := marketState("mkt-B", time.Now().UTC())
	if err := h.ctl.Refresh(ctx, ladderDecision(500_000), stateB, "0xSettle"); err != nil {
		t.Fatalf("refresh after rotation: %v", err)
	}
	if h.venue.posts() == before {
		t.Error("next market placed no quotes after rotation")
	}
}
