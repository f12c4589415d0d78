// Package quoter turns strategy decisions into order flow. It owns the
// main quote/refresh cycle: sizing, slot bookkeeping, rebalance gating,
// the adverse-selection guard, and rotation teardown.
package quoter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfold/turbinebot/internal/config"
	"github.com/quantfold/turbinebot/internal/domain"
	"github.com/quantfold/turbinebot/internal/ledger"
	"github.com/quantfold/turbinebot/internal/position"
)

// Expiry reports whether the active market is inside the expiry safety
// window. No new orders are placed while true.
type Expiry interface {
	Expiring(now time.Time) bool
}

// EventSink receives operator-facing notifications for noteworthy quoting
// events. A nil sink means log-only.
type EventSink interface {
	OrderRejected(ctx context.Context, order domain.Order, reason string)
	ResyncForced(ctx context.Context, marketID string)
	GuardTripped(ctx context.Context, marketID string)
}

// aggressiveOffsetTicks is added above the best ask on directional entries
// so the order crosses instead of resting.
const aggressiveOffsetTicks = 5_000

// Controller consumes strategy decisions and reconciles the book against
// them. One Controller serves one market at a time; rotation calls
// Teardown before the next market is quoted.
type Controller struct {
	ledger    *ledger.Ledger
	verifier  *ledger.Verifier
	positions *position.Tracker
	expiry    Expiry
	guard     *Guard
	cfg       config.QuoterConfig
	lambda    float64
	trader    string
	strategy  string
	logger    *slog.Logger

	// Events is set once during wiring, before the first Refresh.
	Events EventSink

	mu  sync.Mutex
	gen int
	// epoch advances on every Teardown. A refresh cycle that started
	// before a rotation must not write quoting state for the new market,
	// so refreshes stamp themselves and discard their result when the
	// epoch moved underneath them.
	epoch           int
	lastTargetTicks int64
	lastRebalance   time.Time
	quoted          bool
	quotedIDs       []string
}

// NewController wires the quoting controller. lambda is the geometric
// ladder's size concentration factor.
func NewController(l *ledger.Ledger, v *ledger.Verifier, pos *position.Tracker, expiry Expiry, cfg config.QuoterConfig, lambda float64, trader, strategy string, logger *slog.Logger) *Controller {
	return &Controller{
		ledger:    l,
		verifier:  v,
		positions: pos,
		expiry:    expiry,
		guard:     NewGuard(cfg.GuardWindow.Duration, cfg.GuardCooldown.Duration, cfg.GuardFillRatio),
		cfg:       cfg,
		lambda:    lambda,
		trader:    trader,
		strategy:  strategy,
		logger:    logger.With(slog.String("component", "quoter")),
	}
}

// Refresh applies one strategy decision to the book. It submits and
// cancels as needed and blocks until every submission of this cycle has
// been verified.
func (c *Controller) Refresh(ctx context.Context, decision domain.Decision, state domain.MarketState, settlementAddress string) error {
	marketID := state.Market.MarketID

	if c.guard.Paused(state.Now) {
		return c.pullQuotes(ctx, marketID)
	}
	if c.expiry.Expiring(state.Now) {
		// Resting orders stay on the book; rotation teardown clears them.
		c.logger.Debug("market expiring, holding quotes", slog.String("market_id", marketID))
		return nil
	}

	switch decision.Kind {
	case domain.DecisionDirectional:
		return c.refreshDirectional(ctx, decision, state, settlementAddress)
	case domain.DecisionLadder:
		return c.refreshLadder(ctx, decision, state, settlementAddress)
	default:
		return nil
	}
}

// OnFill feeds one of our executions to the adverse-selection guard. A
// tripped guard pulls every resting quote immediately.
func (c *Controller) OnFill(ctx context.Context, fill domain.Trade) {
	if !fill.Involves(c.trader) {
		return
	}
	side := domain.SideSell
	if fill.Bought(c.trader) {
		side = domain.SideBuy
	}
	if !c.guard.Record(time.Now().UTC(), side) {
		return
	}
	c.logger.Warn("adverse selection guard tripped, pulling quotes",
		slog.String("market_id", fill.MarketID),
		slog.String("side", side.String()))
	if c.Events != nil {
		c.Events.GuardTripped(ctx, fill.MarketID)
	}
	if err := c.pullQuotes(ctx, fill.MarketID); err != nil {
		c.logger.Warn("pull quotes failed", slog.String("error", err.Error()))
	}
}

// Teardown cancels everything for a rotated-out market and resets quoting
// state for the next one.
func (c *Controller) Teardown(ctx context.Context, marketID string) error {
	err := c.ledger.CancelAll(ctx, marketID)
	c.ledger.Forget(marketID)
	c.positions.Drop(marketID)
	c.guard.Reset()

	c.mu.Lock()
	c.epoch++
	c.quoted = false
	c.quotedIDs = nil
	c.lastTargetTicks = 0
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("quoter: teardown %s: %w", marketID, err)
	}
	return nil
}

// stale reports whether a teardown intervened since the refresh stamped
// itself with epoch.
func (c *Controller) stale(epoch int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch != epoch
}

// retract takes freshly placed orders back off after a mid-cycle rotation.
func (c *Controller) retract(ctx context.Context, marketID string, clientIDs []string) {
	c.logger.Info("market rotated mid-refresh, retracting fresh orders",
		slog.String("market_id", marketID),
		slog.Int("orders", len(clientIDs)))
	for _, id := range clientIDs {
		if err := c.ledger.Cancel(ctx, id); err != nil {
			c.logger.Warn("retract cancel failed",
				slog.String("client_id", id),
				slog.String("error", err.Error()))
		}
	}
}

func (c *Controller) pullQuotes(ctx context.Context, marketID string) error {
	c.mu.Lock()
	wasQuoted := c.quoted
	c.quoted = false
	c.quotedIDs = nil
	c.mu.Unlock()

	if !wasQuoted {
		return nil
	}
	if err := c.ledger.CancelAll(ctx, marketID); err != nil {
		return fmt.Errorf("quoter: pull quotes: %w", err)
	}
	return nil
}

// refreshDirectional keeps at most one live entry order. A live order for
// the opposite outcome is cancelled first; a live order for the same
// outcome is left alone until the verification protocol settles it.
func (c *Controller) refreshDirectional(ctx context.Context, decision domain.Decision, state domain.MarketState, settlementAddress string) error {
	marketID := state.Market.MarketID

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	slot := directionalSlot(marketID, decision.Outcome)
	if _, live := c.ledger.LiveOrderAtSlot(slot); live {
		return nil
	}
	if stale, live := c.ledger.LiveOrderAtSlot(directionalSlot(marketID, decision.Outcome.Opposite())); live {
		if err := c.ledger.Cancel(ctx, stale.ClientID); err != nil {
			return err
		}
		c.logger.Info("signal flipped, cancelled opposite entry",
			slog.String("market_id", marketID),
			slog.String("outcome", stale.Outcome.String()))
	}
	if c.ledger.HasPendingSettlement(marketID) {
		c.logger.Debug("settlement pending, deferring entry", slog.String("market_id", marketID))
		return nil
	}

	priceTicks, ok := c.entryPrice(decision.Outcome, state.Book)
	if !ok {
		c.logger.Debug("no liquidity for entry",
			slog.String("market_id", marketID),
			slog.String("outcome", decision.Outcome.String()))
		return nil
	}

	maxUnits := int64(c.cfg.MaxPosition * domain.PriceScale)
	held := c.positions.Get(marketID).Shares(decision.Outcome)
	want := int64(c.cfg.OrderSize * decision.Confidence * domain.PriceScale)
	if held+want > maxUnits {
		want = maxUnits - held
	}
	if want <= 0 {
		c.logger.Debug("position limit reached", slog.String("market_id", marketID))
		return nil
	}

	order := domain.Order{
		MarketID:   marketID,
		Outcome:    decision.Outcome,
		Side:       domain.SideBuy,
		PriceTicks: priceTicks,
		SizeUnits:  want,
		Expiration: state.Now.Add(c.cfg.OrderTTL.Duration),
		Slot:       slot,
		Strategy:   c.strategy,
	}
	submitted, err := c.ledger.Submit(ctx, order, settlementAddress, nil)
	if err != nil {
		if submitted.State == domain.OrderStateRejected {
			// Terminal; the next decision cycle re-evaluates with a fresh book.
			if c.Events != nil {
				c.Events.OrderRejected(ctx, submitted, err.Error())
			}
			return nil
		}
		return err
	}
	if c.stale(epoch) {
		c.retract(ctx, marketID, []string{submitted.ClientID})
		return nil
	}

	return c.verifyBatch(ctx, marketID, []string{submitted.ClientID})
}

// entryPrice returns an aggressive buy price for the outcome. The book
// holds YES levels; NO liquidity is the complement of the YES bid side.
func (c *Controller) entryPrice(outcome domain.Outcome, book domain.OrderbookSnapshot) (int64, bool) {
	var ask int64
	if outcome == domain.OutcomeYes {
		best, ok := book.BestAsk()
		if !ok {
			return 0, false
		}
		ask = best.PriceTicks
	} else {
		best, ok := book.BestBid()
		if !ok {
			return 0, false
		}
		ask = domain.PriceScale - best.PriceTicks
	}
	return minTicks64(ask+aggressiveOffsetTicks, maxLevelTicks), true
}

// refreshLadder rebuilds the two-sided ladder when the fair value has
// drifted past the rebalance threshold. New levels go on the book before
// the old generation is cancelled so both sides stay continuously quoted.
func (c *Controller) refreshLadder(ctx context.Context, decision domain.Decision, state domain.MarketState, settlementAddress string) error {
	marketID := state.Market.MarketID
	target := c.skewedTarget(marketID, decision.TargetProbTicks)

	c.mu.Lock()
	if c.quoted {
		moved := target - c.lastTargetTicks
		if moved < 0 {
			moved = -moved
		}
		if moved <= int64(c.cfg.RebalanceThreshold*domain.PriceScale) ||
			state.Now.Sub(c.lastRebalance) < c.cfg.RebalanceInterval.Duration {
			c.mu.Unlock()
			return nil
		}
	}
	c.gen++
	gen := c.gen
	epoch := c.epoch
	prevIDs := c.quotedIDs
	c.mu.Unlock()

	if c.ledger.HasPendingSettlement(marketID) {
		c.logger.Debug("settlement pending, deferring requote", slog.String("market_id", marketID))
		return nil
	}

	levels := buildLadder(target, decision.SpreadTicks, decision.Levels, c.lambda, c.cfg.Allocation, c.cfg.OneSidedThreshold)
	if len(levels) == 0 {
		return nil
	}

	expiration := state.Now.Add(c.cfg.OrderTTL.Duration)
	newIDs := make([]string, 0, len(levels))
	for _, lv := range levels {
		order := domain.Order{
			MarketID:   marketID,
			Outcome:    lv.outcome,
			Side:       lv.side,
			PriceTicks: lv.priceTicks,
			SizeUnits:  lv.sizeUnits,
			Expiration: expiration,
			Slot:       ladderSlot(marketID, gen, lv.outcome, lv.side, lv.idx),
			Strategy:   c.strategy,
		}
		submitted, err := c.ledger.Submit(ctx, order, settlementAddress, nil)
		if err != nil {
			if submitted.State == domain.OrderStateRejected {
				if c.Events != nil {
					c.Events.OrderRejected(ctx, submitted, err.Error())
				}
				continue
			}
			c.logger.Warn("ladder level submit failed",
				slog.String("market_id", marketID),
				slog.Int64("price", lv.priceTicks),
				slog.String("error", err.Error()))
			continue
		}
		newIDs = append(newIDs, submitted.ClientID)
	}

	// Old generation comes off only after the new one is live.
	for _, id := range prevIDs {
		if err := c.ledger.Cancel(ctx, id); err != nil {
			c.logger.Warn("stale level cancel failed",
				slog.String("client_id", id),
				slog.String("error", err.Error()))
		}
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.retract(ctx, marketID, newIDs)
		return nil
	}
	c.quoted = len(newIDs) > 0
	c.quotedIDs = newIDs
	c.lastTargetTicks = target
	c.lastRebalance = state.Now
	c.mu.Unlock()

	c.logger.Info("ladder requoted",
		slog.String("market_id", marketID),
		slog.Int64("target", target),
		slog.Int64("spread", decision.SpreadTicks),
		slog.Int("levels", len(newIDs)))

	return c.verifyBatch(ctx, marketID, newIDs)
}

// skewedTarget shifts the fair value away from an outcome we are already
// heavy in, discouraging further accumulation.
func (c *Controller) skewedTarget(marketID string, target int64) int64 {
	net := c.positions.Net(marketID)
	halfMax := int64(c.cfg.MaxPosition * domain.PriceScale / 2)
	skew := int64(c.cfg.InventorySkew * domain.PriceScale)
	if net > halfMax {
		target -= skew
	} else if net < -halfMax {
		target += skew
	}
	return target
}

// verifyBatch runs the verification protocol for every submission of one
// refresh cycle. Fills feed the position tracker; any disagreement with
// the venue forces a single authoritative resync before the method
// returns, so the next decision never quotes on stale exposure.
func (c *Controller) verifyBatch(ctx context.Context, marketID string, clientIDs []string) error {
	if len(clientIDs) == 0 {
		return nil
	}

	var mu sync.Mutex
	needsResync := false

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range clientIDs {
		g.Go(func() error {
			outcome, err := c.verifier.Verify(gctx, id)
			if err != nil {
				c.logger.Warn("verification failed",
					slog.String("client_id", id),
					slog.String("error", err.Error()))
				mu.Lock()
				needsResync = true
				mu.Unlock()
				return nil
			}
			if outcome.Fill != nil {
				c.positions.Apply(*outcome.Fill)
			}
			if outcome.NeedsResync {
				mu.Lock()
				needsResync = true
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if needsResync {
		if c.Events != nil {
			c.Events.ResyncForced(ctx, marketID)
		}
		if err := c.positions.Resync(ctx, marketID); err != nil {
			return fmt.Errorf("quoter: forced resync: %w", err)
		}
	}
	return nil
}

func directionalSlot(marketID string, outcome domain.Outcome) string {
	return fmt.Sprintf("%s/dir/%s", marketID, outcome)
}

func ladderSlot(marketID string, gen int, outcome domain.Outcome, side domain.Side, idx int) string {
	return fmt.Sprintf("%s/g%d/%s/%s/%d", marketID, gen, outcome, side, idx)
}
