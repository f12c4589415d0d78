// Package ledger is the in-memory record of orders the bot believes are
// live, pending settlement, or filled. It owns submission and cancellation
// and reconciles its belief against the venue through the verification
// protocol in verify.go.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantfold/turbinebot/internal/crypto"
	"github.com/quantfold/turbinebot/internal/domain"
	"github.com/quantfold/turbinebot/internal/platform/turbine"
)

// OrderPoster is the slice of the venue gateway the ledger submits through.
type OrderPoster interface {
	PostOrder(ctx context.Context, order turbine.SignedOrder) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderHash string) error
}

// OrderBuilder signs orders for submission.
type OrderBuilder interface {
	Build(o domain.Order, settlementAddress string, permit *crypto.PermitSignature) (turbine.SignedOrder, error)
}

// Journal receives order lifecycle records for offline analysis. Writes are
// best effort and never block or fail the trading path.
type Journal interface {
	Record(ctx context.Context, o domain.Order) error
	UpdateState(ctx context.Context, clientID string, state domain.OrderState) error
}

const (
	submitRetries   = 3
	submitRetryBase = 500 * time.Millisecond
)

// Ledger tracks every order from submission until a terminal state. It is
// the single writer of order lifecycle state; other tasks only read.
type Ledger struct {
	poster  OrderPoster
	builder OrderBuilder
	trader  string
	logger  *slog.Logger
	journal Journal

	mu sync.Mutex
	// orders holds all non-discarded handles keyed by client ID.
	orders map[string]*domain.Order
	// pendingTx maps settlement tx hashes to client IDs. While non-empty
	// for a market, submissions that would conflict are blocked.
	pendingTx map[string]string
}

// New creates a Ledger for the given trader address.
func New(poster OrderPoster, builder OrderBuilder, trader string, logger *slog.Logger) *Ledger {
	return &Ledger{
		poster:    poster,
		builder:   builder,
		trader:    trader,
		logger:    logger.With(slog.String("component", "ledger")),
		orders:    make(map[string]*domain.Order),
		pendingTx: make(map[string]string),
	}
}

// Submit signs and posts an order, retrying transport failures with bounded
// backoff. Venue rejections are terminal and returned as
// domain.ErrRejected; the caller re-evaluates its price instead of
// retrying. On success the returned handle is tracked in the pending state
// until Verify settles its fate.
func (l *Ledger) Submit(ctx context.Context, order domain.Order, settlementAddress string, permit *crypto.PermitSignature) (domain.Order, error) {
	order.ClientID = uuid.NewString()
	order.State = domain.OrderStatePending
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt

	signed, err := l.builder.Build(order, settlementAddress, permit)
	if err != nil {
		return domain.Order{}, fmt.Errorf("ledger: build order: %w", err)
	}
	order.Hash = signed.OrderHash

	var result domain.OrderResult
	for attempt := 0; ; attempt++ {
		result, err = l.poster.PostOrder(ctx, signed)
		if err == nil {
			break
		}
		if isRejection(err) {
			order.State = domain.OrderStateRejected
			l.track(order)
			l.journalRecord(order)
			l.logger.Warn("order rejected",
				slog.String("market_id", order.MarketID),
				slog.String("outcome", order.Outcome.String()),
				slog.Int64("price", order.PriceTicks),
				slog.String("error", err.Error()))
			return order, fmt.Errorf("ledger: %w", err)
		}
		if attempt+1 >= submitRetries {
			return domain.Order{}, fmt.Errorf("ledger: submit after %d attempts: %w", submitRetries, err)
		}
		delay := submitRetryBase << attempt
		l.logger.Warn("submit transport failure, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return domain.Order{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	if result.Hash != "" {
		order.Hash = result.Hash
	}
	l.track(order)
	l.journalRecord(order)

	l.logger.Info("order submitted",
		slog.String("client_id", order.ClientID),
		slog.String("market_id", order.MarketID),
		slog.String("outcome", order.Outcome.String()),
		slog.String("side", order.Side.String()),
		slog.Int64("price", order.PriceTicks),
		slog.Int64("size", order.SizeUnits))
	return order, nil
}

// Cancel cancels a single order by client ID. Orders already terminal are a
// no-op.
func (l *Ledger) Cancel(ctx context.Context, clientID string) error {
	l.mu.Lock()
	order, ok := l.orders[clientID]
	if !ok || order.State.Terminal() {
		l.mu.Unlock()
		return nil
	}
	hash := order.Hash
	l.mu.Unlock()

	if err := l.poster.CancelOrder(ctx, hash); err != nil {
		return fmt.Errorf("ledger: cancel %s: %w", clientID, err)
	}

	l.setState(clientID, domain.OrderStateCancelled)
	return nil
}

// CancelAll cancels every non-terminal order in a market. Errors are
// collected; cancellation continues past individual failures so rotation
// teardown clears as much as possible.
func (l *Ledger) CancelAll(ctx context.Context, marketID string) error {
	l.mu.Lock()
	var ids []string
	for id, o := range l.orders {
		if o.MarketID == marketID && !o.State.Terminal() {
			ids = append(ids, id)
		}
	}
	l.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := l.Cancel(ctx, id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			l.logger.Warn("cancel failed during cancel-all",
				slog.String("client_id", id),
				slog.String("error", err.Error()))
		}
	}
	return firstErr
}

// MarkCancelled records a venue-side cancellation observed on the stream.
func (l *Ledger) MarkCancelled(orderHash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, o := range l.orders {
		if o.Hash == orderHash && !o.State.Terminal() {
			o.State = domain.OrderStateCancelled
			o.UpdatedAt = time.Now().UTC()
			l.orders[id] = o
			l.journalState(id, domain.OrderStateCancelled)
			return
		}
	}
}

// LiveOrders returns all non-terminal orders for a market.
func (l *Ledger) LiveOrders(marketID string) []domain.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Order
	for _, o := range l.orders {
		if o.MarketID == marketID && !o.State.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

// LiveOrderAtSlot returns the live order occupying a quoting slot, if any.
// The quoter uses this to enforce one order per slot.
func (l *Ledger) LiveOrderAtSlot(slot string) (domain.Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, o := range l.orders {
		if o.Slot == slot && !o.State.Terminal() {
			return *o, true
		}
	}
	return domain.Order{}, false
}

// HasPendingSettlement reports whether any of the market's orders are mid
// on-chain settlement. While true, conflicting submissions must wait.
func (l *Ledger) HasPendingSettlement(marketID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range l.pendingTx {
		if o, ok := l.orders[id]; ok && o.MarketID == marketID {
			return true
		}
	}
	return false
}

// Forget drops every order for a market from the ledger, terminal or not.
// Called after rotation teardown: the market is dead, so even a handle
// whose cancel failed can never progress and must not linger.
func (l *Ledger) Forget(marketID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, o := range l.orders {
		if o.MarketID == marketID {
			delete(l.orders, id)
		}
	}
	for tx, id := range l.pendingTx {
		if o, ok := l.orders[id]; !ok || o.MarketID == marketID {
			delete(l.pendingTx, tx)
		}
	}
}

// Get returns a tracked order by client ID.
func (l *Ledger) Get(clientID string) (domain.Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[clientID]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// SetJournal attaches an order journal. Call before the first Submit.
func (l *Ledger) SetJournal(j Journal) {
	l.journal = j
}

func (l *Ledger) journalRecord(order domain.Order) {
	if l.journal == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.journal.Record(ctx, order); err != nil {
			l.logger.Debug("order journal write failed",
				slog.String("client_id", order.ClientID),
				slog.String("error", err.Error()))
		}
	}()
}

func (l *Ledger) journalState(clientID string, state domain.OrderState) {
	if l.journal == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.journal.UpdateState(ctx, clientID, state); err != nil {
			l.logger.Debug("order journal update failed",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()))
		}
	}()
}

func (l *Ledger) track(order domain.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o := order
	l.orders[order.ClientID] = &o
}

func (l *Ledger) setState(clientID string, state domain.OrderState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if o, ok := l.orders[clientID]; ok {
		o.State = state
		o.UpdatedAt = time.Now().UTC()
		l.journalState(clientID, state)
	}
}

func (l *Ledger) setSettling(clientID, txHash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if o, ok := l.orders[clientID]; ok {
		o.State = domain.OrderStateSettling
		o.TxHash = txHash
		o.UpdatedAt = time.Now().UTC()
		l.pendingTx[txHash] = clientID
		l.journalRecord(*o)
	}
}

func (l *Ledger) clearPendingTx(txHash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pendingTx, txHash)
}
