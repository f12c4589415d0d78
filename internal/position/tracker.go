// Package position tracks net exposure per market. Local fill application
// is a low-latency cache; the venue's position query is the source of truth
// and replaces local state wholesale on every resync.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quantfold/turbinebot/internal/domain"
)

// Querier is the slice of the venue gateway the tracker resyncs from.
type Querier interface {
	GetPosition(ctx context.Context, address, marketID string) (domain.Position, error)
}

// Tracker holds positions keyed by market ID. It is the single writer of
// position state; readers get value copies.
type Tracker struct {
	querier Querier
	address string
	logger  *slog.Logger

	mu        sync.Mutex
	positions map[string]domain.Position
	// applied dedupes fills by trade ID so replayed stream messages and
	// verification fills never double-count. Keyed per market so Drop can
	// free a rotated market's IDs; the process runs for days and markets
	// rotate every fifteen minutes.
	applied map[string]map[int64]struct{}
}

// NewTracker creates a Tracker for the given wallet address.
func NewTracker(querier Querier, address string, logger *slog.Logger) *Tracker {
	return &Tracker{
		querier:   querier,
		address:   address,
		logger:    logger.With(slog.String("component", "position")),
		positions: make(map[string]domain.Position),
		applied:   make(map[string]map[int64]struct{}),
	}
}

// Apply folds a fill into the local position. Applying the same trade ID
// twice is a no-op.
func (t *Tracker) Apply(fill domain.Trade) {
	if !fill.Involves(t.address) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	seen := t.applied[fill.MarketID]
	if seen == nil {
		seen = make(map[int64]struct{})
		t.applied[fill.MarketID] = seen
	}
	if _, dup := seen[fill.ID]; dup {
		return
	}
	seen[fill.ID] = struct{}{}

	pos := t.positions[fill.MarketID]
	pos.MarketID = fill.MarketID

	cost := fill.PriceTicks * fill.SizeUnits / domain.PriceScale
	bought := strings.EqualFold(fill.Buyer, t.address)

	if fill.Outcome == domain.OutcomeYes {
		if bought {
			pos.YesShares += fill.SizeUnits
			pos.YesCost += cost
		} else {
			pos.YesShares -= fill.SizeUnits
			pos.YesRevenue += cost
		}
	} else {
		if bought {
			pos.NoShares += fill.SizeUnits
			pos.NoCost += cost
		} else {
			pos.NoShares -= fill.SizeUnits
			pos.NoRevenue += cost
		}
	}
	pos.UpdatedAt = time.Now().UTC()
	t.positions[fill.MarketID] = pos

	t.logger.Debug("fill applied",
		slog.Int64("trade_id", fill.ID),
		slog.String("market_id", fill.MarketID),
		slog.String("outcome", fill.Outcome.String()),
		slog.Int64("size", fill.SizeUnits),
		slog.Int64("net", pos.Net()))
}

// Resync replaces the market's local position with the venue's
// authoritative value. Local fills are not diffed against it; the
// authoritative value already encompasses them.
func (t *Tracker) Resync(ctx context.Context, marketID string) error {
	pos, err := t.querier.GetPosition(ctx, t.address, marketID)
	if err != nil {
		return fmt.Errorf("position: resync %s: %w", marketID, err)
	}

	t.mu.Lock()
	t.positions[marketID] = pos
	t.mu.Unlock()

	t.logger.Info("position resynced",
		slog.String("market_id", marketID),
		slog.Int64("yes_shares", pos.YesShares),
		slog.Int64("no_shares", pos.NoShares))
	return nil
}

// Net returns YES minus NO exposure for a market in share units.
func (t *Tracker) Net(marketID string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positions[marketID].Net()
}

// Get returns the tracked position for a market.
func (t *Tracker) Get(marketID string) domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos := t.positions[marketID]
	pos.MarketID = marketID
	return pos
}

// Drop removes a rotated-out market's position and its applied-fill IDs
// from memory.
func (t *Tracker) Drop(marketID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.positions, marketID)
	delete(t.applied, marketID)
}
