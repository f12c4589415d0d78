package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quantfold/turbinebot/internal/domain"
)

// TradeChecker is the slice of the venue gateway the verification protocol
// reads from.
type TradeChecker interface {
	GetFailedTrades(ctx context.Context) ([]domain.FailedTrade, error)
	GetPendingTrades(ctx context.Context) ([]domain.PendingTrade, error)
	GetTrades(ctx context.Context, marketID string, limit int) ([]domain.Trade, error)
	GetOpenOrders(ctx context.Context, trader, marketID string) ([]domain.VenueOrder, error)
}

const recentTradeLimit = 50

// VerifyOutcome is the result of running the verification protocol for one
// submission.
type VerifyOutcome struct {
	State domain.OrderState
	// NeedsResync is set when local belief disagrees with the venue's
	// four-way answer. The caller must run an authoritative position
	// resync before the next quote decision.
	NeedsResync bool
	// Fill carries the matched execution when State is filled.
	Fill *domain.Trade
}

// Verifier runs the post-submission verification protocol against the
// venue. The checks run in a fixed order: failed trades, pending trades,
// recent trades, open orders. Checking open orders first can produce a
// false "not found" while the fill is mid-settlement, which would cause a
// duplicate re-submission; absence is only trusted after the settlement
// paths have been ruled out.
type Verifier struct {
	ledger   *Ledger
	checker  TradeChecker
	delay    time.Duration
	lookback time.Duration
	logger   *slog.Logger
}

// NewVerifier creates a Verifier. delay is the settle wait before the first
// check (~2s); lookback bounds how far before submission a venue record may
// be timestamped and still match.
func NewVerifier(l *Ledger, checker TradeChecker, delay, lookback time.Duration, logger *slog.Logger) *Verifier {
	return &Verifier{
		ledger:   l,
		checker:  checker,
		delay:    delay,
		lookback: lookback,
		logger:   logger.With(slog.String("component", "verifier")),
	}
}

// Verify settles the fate of a submitted order. It blocks for the settle
// delay, then interrogates the venue in the fixed order described above and
// updates the ledger's state for the order.
func (v *Verifier) Verify(ctx context.Context, clientID string) (VerifyOutcome, error) {
	order, ok := v.ledger.Get(clientID)
	if !ok {
		return VerifyOutcome{}, fmt.Errorf("ledger: verify: %w: order %s", domain.ErrNotFound, clientID)
	}
	if order.State.Terminal() {
		return VerifyOutcome{State: order.State}, nil
	}

	select {
	case <-ctx.Done():
		return VerifyOutcome{}, ctx.Err()
	case <-time.After(v.delay):
	}

	// Stage 1: did the venue reject the fill post-hoc during settlement?
	failed, err := v.checker.GetFailedTrades(ctx)
	if err != nil {
		return VerifyOutcome{}, fmt.Errorf("ledger: verify failed trades: %w", err)
	}
	for _, ft := range failed {
		if v.matchesFailed(order, ft) {
			v.ledger.setState(clientID, domain.OrderStateRejected)
			if ft.TxHash != "" {
				v.ledger.clearPendingTx(ft.TxHash)
			}
			v.logger.Warn("order failed during settlement",
				slog.String("client_id", clientID),
				slog.String("reason", ft.Reason))
			return VerifyOutcome{State: domain.OrderStateRejected, NeedsResync: true}, nil
		}
	}

	// Stage 2: is the fill mid on-chain settlement?
	pending, err := v.checker.GetPendingTrades(ctx)
	if err != nil {
		return VerifyOutcome{}, fmt.Errorf("ledger: verify pending trades: %w", err)
	}
	for _, pt := range pending {
		if v.matchesPending(order, pt) {
			v.ledger.setSettling(clientID, pt.TxHash)
			v.logger.Info("order settling",
				slog.String("client_id", clientID),
				slog.String("tx_hash", pt.TxHash))
			return VerifyOutcome{State: domain.OrderStateSettling}, nil
		}
	}

	// Stage 3: did it fill immediately?
	trades, err := v.checker.GetTrades(ctx, order.MarketID, recentTradeLimit)
	if err != nil {
		return VerifyOutcome{}, fmt.Errorf("ledger: verify recent trades: %w", err)
	}
	for i := range trades {
		if v.matchesTrade(order, trades[i]) {
			v.ledger.setState(clientID, domain.OrderStateFilled)
			if order.TxHash != "" {
				v.ledger.clearPendingTx(order.TxHash)
			}
			v.logger.Info("order filled",
				slog.String("client_id", clientID),
				slog.Int64("price", trades[i].PriceTicks),
				slog.Int64("size", trades[i].SizeUnits))
			return VerifyOutcome{State: domain.OrderStateFilled, Fill: &trades[i]}, nil
		}
	}

	// Stage 4: is it resting on the book?
	open, err := v.checker.GetOpenOrders(ctx, v.ledger.trader, order.MarketID)
	if err != nil {
		return VerifyOutcome{}, fmt.Errorf("ledger: verify open orders: %w", err)
	}
	for _, vo := range open {
		if vo.Hash == order.Hash {
			v.ledger.setState(clientID, domain.OrderStateOpen)
			return VerifyOutcome{State: domain.OrderStateOpen}, nil
		}
	}

	// Absent from all four views. The order stays tracked so its slot is
	// not re-quoted, and the caller must resync positions before acting.
	v.logger.Warn("order not found in any venue view, forcing resync",
		slog.String("client_id", clientID),
		slog.String("market_id", order.MarketID))
	return VerifyOutcome{State: order.State, NeedsResync: true}, nil
}

// matchesFailed pairs a failed-trade record with our submission by market,
// buyer and fill size.
func (v *Verifier) matchesFailed(o domain.Order, ft domain.FailedTrade) bool {
	return ft.MarketID == o.MarketID &&
		strings.EqualFold(ft.BuyerAddress, v.ledger.trader) &&
		ft.FillSize == o.SizeUnits &&
		!ft.Timestamp.Before(o.CreatedAt.Add(-v.lookback))
}

func (v *Verifier) matchesPending(o domain.Order, pt domain.PendingTrade) bool {
	return pt.MarketID == o.MarketID &&
		strings.EqualFold(pt.BuyerAddress, v.ledger.trader) &&
		pt.FillSize == o.SizeUnits &&
		!pt.Timestamp.Before(o.CreatedAt.Add(-v.lookback))
}

func (v *Verifier) matchesTrade(o domain.Order, t domain.Trade) bool {
	if t.MarketID != o.MarketID || t.Outcome != o.Outcome {
		return false
	}
	if o.Side == domain.SideBuy && !strings.EqualFold(t.Buyer, v.ledger.trader) {
		return false
	}
	if o.Side == domain.SideSell && !strings.EqualFold(t.Seller, v.ledger.trader) {
		return false
	}
	return t.SizeUnits == o.SizeUnits &&
		!t.Timestamp.Before(o.CreatedAt.Add(-v.lookback))
}

func isRejection(err error) bool {
	return errors.Is(err, domain.ErrRejected) ||
		errors.Is(err, domain.ErrInvalidOrder) ||
		errors.Is(err, domain.ErrUnauthorized)
}
