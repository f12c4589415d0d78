package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/turbinebot/internal/domain"
)

// Event types operators can subscribe to via the events config list.
const (
	EventRotation      = "rotation"
	EventOrderRejected = "order_rejected"
	EventResync        = "resync"
	EventClaim         = "claim"
	EventGuard         = "guard"
	EventError         = "error"
)

// Rotation announces a market rotation.
func (n *Notifier) Rotation(ctx context.Context, event domain.RotationEvent) {
	var msg string
	if event.First() {
		msg = fmt.Sprintf("Now trading %s (strike %.2f, ends %s)",
			event.NewMarketID,
			float64(event.NewStrikeTicks)/domain.PriceScale,
			event.NewEndTime.Format(time.RFC3339))
	} else {
		msg = fmt.Sprintf("%s retired, now trading %s (strike %.2f)",
			event.RetiringMarketID,
			event.NewMarketID,
			float64(event.NewStrikeTicks)/domain.PriceScale)
	}
	if err := n.Notify(ctx, EventRotation, "Market rotation", msg); err != nil {
		n.logger.Warn("rotation notification failed", slog.String("error", err.Error()))
	}
}

// OrderRejected announces a venue rejection.
func (n *Notifier) OrderRejected(ctx context.Context, order domain.Order, reason string) {
	msg := fmt.Sprintf("%s %s %s %.3f x %.2f: %s",
		order.MarketID, order.Side, order.Outcome, order.Price(), order.Size(), reason)
	if err := n.Notify(ctx, EventOrderRejected, "Order rejected", msg); err != nil {
		n.logger.Warn("rejection notification failed", slog.String("error", err.Error()))
	}
}

// ResyncForced announces that local belief disagreed with the venue and a
// position resync was forced.
func (n *Notifier) ResyncForced(ctx context.Context, marketID string) {
	msg := fmt.Sprintf("Order state inconsistent on %s, position resynced from venue", marketID)
	if err := n.Notify(ctx, EventResync, "Forced resync", msg); err != nil {
		n.logger.Warn("resync notification failed", slog.String("error", err.Error()))
	}
}

// GuardTripped announces the adverse-selection guard pulling quotes.
func (n *Notifier) GuardTripped(ctx context.Context, marketID string) {
	msg := fmt.Sprintf("Lopsided fills on %s, quotes pulled for cooldown", marketID)
	if err := n.Notify(ctx, EventGuard, "Guard tripped", msg); err != nil {
		n.logger.Warn("guard notification failed", slog.String("error", err.Error()))
	}
}

// ClaimSettled announces a completed claim. It satisfies the claim
// scheduler's event sink.
func (n *Notifier) ClaimSettled(result domain.ClaimResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var msg string
	if result.NoWinnings {
		msg = fmt.Sprintf("%s resolved against us, nothing to claim", result.MarketID)
	} else {
		msg = fmt.Sprintf("Claimed winnings for %s (tx %s)", result.MarketID, result.TxHash)
	}
	if err := n.Notify(ctx, EventClaim, "Claim settled", msg); err != nil {
		n.logger.Warn("claim notification failed", slog.String("error", err.Error()))
	}
}
