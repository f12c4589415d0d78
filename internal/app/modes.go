package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfold/turbinebot/internal/domain"
)

// lockTTL is the crash backstop on the per-asset instance lock; a clean
// shutdown releases it immediately.
const lockTTL = 24 * time.Hour

// bookState holds the latest streamed orderbook snapshot.
type bookState struct {
	mu   sync.RWMutex
	snap domain.OrderbookSnapshot
}

func (b *bookState) set(snap domain.OrderbookSnapshot) {
	b.mu.Lock()
	b.snap = snap
	b.mu.Unlock()
}

func (b *bookState) get() domain.OrderbookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

// marketRef tracks the market currently being quoted and its settlement
// contract, written by the rotation consumer and read by the quote loop.
type marketRef struct {
	mu         sync.RWMutex
	id         string
	settlement string
}

func (m *marketRef) set(id, settlement string) {
	m.mu.Lock()
	m.id = id
	m.settlement = settlement
	m.mu.Unlock()
}

func (m *marketRef) get() (string, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id, m.settlement
}

// TradeMode runs the full trading engine: market rotation, streaming
// consumption, the quote/refresh cycle, claim scheduling, and periodic
// position resync. It blocks until ctx is cancelled, then cancels all
// resting orders before returning.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	if deps.Lock != nil {
		unlock, err := deps.Lock.Acquire(ctx, "trade:"+a.cfg.Session.Asset, lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("app: another instance is already trading %s", a.cfg.Session.Asset)
			}
			return fmt.Errorf("app: instance lock: %w", err)
		}
		defer unlock()
	}

	deps.Controller.Events = deps.Notifier
	if deps.OrderJournal != nil {
		deps.Ledger.SetJournal(deps.OrderJournal)
	}

	book := &bookState{}
	ref := &marketRef{}

	g, gctx := errgroup.WithContext(ctx)

	deps.WS.OnBook(func(snap domain.OrderbookSnapshot) {
		book.set(snap)
	})
	deps.WS.OnTrade(func(t domain.Trade) {
		deps.Positions.Apply(t)
		deps.Controller.OnFill(gctx, t)
		if deps.FillJournal != nil && t.Involves(deps.Trader) {
			if err := deps.FillJournal.Record(gctx, t); err != nil {
				a.logger.Warn("fill journal write failed", slog.String("error", err.Error()))
			}
		}
	})
	deps.WS.OnOrderCancelled(func(_, orderHash string) {
		deps.Ledger.MarkCancelled(orderHash)
	})

	if err := deps.WS.Connect(ctx); err != nil {
		return fmt.Errorf("app: connect stream: %w", err)
	}
	defer deps.WS.Close()

	g.Go(func() error { return deps.Session.Run(gctx) })
	g.Go(func() error { return deps.Claims.Run(gctx) })

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case event := <-deps.Session.Rotations():
				if err := a.handleRotation(gctx, deps, event, ref); err != nil {
					a.logger.Warn("rotation handling failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	g.Go(func() error { return a.quoteLoop(gctx, deps, book, ref) })
	g.Go(func() error { return a.resyncLoop(gctx, deps, ref) })

	err := g.Wait()

	// The single ordered teardown action: resting orders come off the book
	// even on abnormal termination.
	if marketID, _ := ref.get(); marketID != "" {
		tctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if terr := deps.Controller.Teardown(tctx, marketID); terr != nil {
			a.logger.Warn("shutdown teardown incomplete",
				slog.String("market_id", marketID),
				slog.String("error", terr.Error()))
		}
	}
	return err
}

// handleRotation reacts to a market change: the retiring market is torn
// down and handed to the claim scheduler before the new market is
// subscribed and quoted.
func (a *App) handleRotation(ctx context.Context, deps *Dependencies, event domain.RotationEvent, ref *marketRef) error {
	if !event.First() {
		if err := deps.Controller.Teardown(ctx, event.RetiringMarketID); err != nil {
			a.logger.Warn("retiring market teardown failed",
				slog.String("market_id", event.RetiringMarketID),
				slog.String("error", err.Error()))
		}
		deps.Claims.Track(event.RetiringMarketID, event.RetiringContract)
		if err := deps.WS.Unsubscribe(ctx, event.RetiringMarketID); err != nil {
			a.logger.Warn("unsubscribe failed", slog.String("error", err.Error()))
		}
	}

	market, err := deps.API.GetMarket(ctx, event.NewMarketID)
	if err != nil {
		return fmt.Errorf("app: fetch new market: %w", err)
	}
	ref.set(event.NewMarketID, market.SettlementAddress)

	if err := deps.WS.Subscribe(ctx, event.NewMarketID); err != nil {
		a.logger.Warn("subscribe failed",
			slog.String("market_id", event.NewMarketID),
			slog.String("error", err.Error()))
	}
	if err := deps.Positions.Resync(ctx, event.NewMarketID); err != nil {
		a.logger.Warn("initial resync failed", slog.String("error", err.Error()))
	}

	deps.Notifier.Rotation(ctx, event)
	return nil
}

// quoteLoop is the main quote/refresh cycle. Every interval it snapshots
// market state, asks the strategy for a decision, and hands it to the
// quoting controller.
func (a *App) quoteLoop(ctx context.Context, deps *Dependencies, book *bookState, ref *marketRef) error {
	ticker := time.NewTicker(a.cfg.Quoter.RebalanceInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		qm, ok := deps.Session.Current()
		if !ok {
			continue
		}
		marketID, settlement := ref.get()
		if marketID != qm.MarketID || settlement == "" {
			// Rotation handling has not caught up yet.
			continue
		}

		oracleTicks, err := deps.Oracle.LatestPrice(ctx)
		if err != nil {
			a.logger.Warn("oracle fetch failed", slog.String("error", err.Error()))
			continue
		}
		if deps.OracleCache != nil {
			if err := deps.OracleCache.SetPrice(ctx, a.cfg.Session.Asset, oracleTicks, time.Now().UTC()); err != nil {
				a.logger.Debug("oracle cache write failed", slog.String("error", err.Error()))
			}
		}

		snap := book.get()
		if snap.MarketID != qm.MarketID {
			fresh, err := deps.API.GetOrderbook(ctx, qm.MarketID)
			if err != nil {
				a.logger.Debug("orderbook fetch failed", slog.String("error", err.Error()))
			} else {
				snap = fresh
				book.set(fresh)
			}
		}

		state := domain.MarketState{
			Market:      qm,
			OracleTicks: oracleTicks,
			Book:        snap,
			Position:    deps.Positions.Get(qm.MarketID),
			Now:         time.Now().UTC(),
		}

		decision, err := deps.Strategy.Decide(ctx, state)
		if err != nil {
			a.logger.Warn("strategy decision failed", slog.String("error", err.Error()))
			continue
		}
		a.logger.Debug("decision",
			slog.String("kind", decision.Kind.String()),
			slog.String("reason", decision.Reason))

		if err := deps.Controller.Refresh(ctx, decision, state, settlement); err != nil {
			a.logger.Warn("quote refresh failed", slog.String("error", err.Error()))
		}
	}
}

// resyncLoop periodically replaces local position state with the venue's
// authoritative answer.
func (a *App) resyncLoop(ctx context.Context, deps *Dependencies, ref *marketRef) error {
	ticker := time.NewTicker(a.cfg.Session.ResyncInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			marketID, _ := ref.get()
			if marketID == "" {
				continue
			}
			if err := deps.Positions.Resync(ctx, marketID); err != nil {
				a.logger.Warn("periodic resync failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ClaimMode runs only the claim scheduler: discovery, resolution checks,
// and redemptions. Useful for sweeping winnings from a wallet that is no
// longer trading.
func (a *App) ClaimMode(ctx context.Context, deps *Dependencies) error {
	return deps.Claims.Run(ctx)
}

// MonitorMode observes without a wallet: it polls the active quick market,
// the oracle, and the book, and logs a summary line per interval.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Session.PollInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		qm, err := deps.API.GetQuickMarket(ctx, a.cfg.Session.Asset)
		if err != nil {
			a.logger.Warn("quick market fetch failed", slog.String("error", err.Error()))
			continue
		}

		oracleTicks, err := deps.Oracle.LatestPrice(ctx)
		if err != nil {
			a.logger.Warn("oracle fetch failed", slog.String("error", err.Error()))
			continue
		}
		if deps.OracleCache != nil {
			if err := deps.OracleCache.SetPrice(ctx, a.cfg.Session.Asset, oracleTicks, time.Now().UTC()); err != nil {
				a.logger.Debug("oracle cache write failed", slog.String("error", err.Error()))
			}
		}

		attrs := []any{
			slog.String("market_id", qm.MarketID),
			slog.Float64("strike", float64(qm.StrikeTicks)/domain.PriceScale),
			slog.Float64("oracle", float64(oracleTicks)/domain.PriceScale),
			slog.Duration("remaining", qm.Remaining(time.Now())),
		}
		if book, err := deps.API.GetOrderbook(ctx, qm.MarketID); err == nil {
			if bid, ok := book.BestBid(); ok {
				attrs = append(attrs, slog.Float64("best_bid", float64(bid.PriceTicks)/domain.PriceScale))
			}
			if ask, ok := book.BestAsk(); ok {
				attrs = append(attrs, slog.Float64("best_ask", float64(ask.PriceTicks)/domain.PriceScale))
			}
		}
		a.logger.Info("market snapshot", attrs...)
	}
}
