// Package session owns the notion of "current market". It polls the venue's
// quick-market endpoint, detects rotation by market-id change, emits
// rotation events, tracks expiry proximity, and caches per-spender
// collateral approvals.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantfold/turbinebot/internal/domain"
)

// MarketQuerier is the slice of the venue gateway the session polls.
type MarketQuerier interface {
	GetQuickMarket(ctx context.Context, asset string) (domain.QuickMarket, error)
	GetMarket(ctx context.Context, marketID string) (domain.Market, error)
}

// CollateralApprover issues the one-time collateral approval for a spender.
// The call is idempotent at the venue; issuing it twice is safe.
type CollateralApprover interface {
	Approve(ctx context.Context, spender string) error
}

// Manager polls for the active quick market and detects rotation. Rotation
// is detected purely by identifier change, never by expiry math, since the
// venue can delay expiry.
type Manager struct {
	querier  MarketQuerier
	approver CollateralApprover
	asset    string
	poll     time.Duration
	guard    time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	current domain.QuickMarket
	active  bool

	approvalMu sync.Mutex
	approved   map[string]bool
	// approvalDue holds the market whose spender approval failed; retried
	// on every poll tick until it succeeds, since quoting against an
	// unapproved spender gets every order rejected.
	approvalDue string

	rotations chan domain.RotationEvent
}

// NewManager creates a session manager for one asset's quick markets.
func NewManager(querier MarketQuerier, approver CollateralApprover, asset string, poll, guard time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		querier:   querier,
		approver:  approver,
		asset:     asset,
		poll:      poll,
		guard:     guard,
		logger:    logger.With(slog.String("component", "session")),
		approved:  make(map[string]bool),
		rotations: make(chan domain.RotationEvent, 4),
	}
}

// Rotations is the channel rotation events are delivered on. The first
// event after startup has no retiring market.
func (m *Manager) Rotations() <-chan domain.RotationEvent {
	return m.rotations
}

// Current returns the active quick market. ok is false before the first
// successful poll.
func (m *Manager) Current() (domain.QuickMarket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.active
}

// Expiring reports whether the active market is inside the expiry safety
// window. No new orders may be placed while true; resting orders are left
// until rotation forces cancellation.
func (m *Manager) Expiring(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.active {
		return false
	}
	return m.current.Remaining(now) <= m.guard
}

// Poll fetches the active quick market once and returns a rotation event
// when the identifier changed. Query failures only delay rotation
// detection; they are returned for logging, never escalate.
func (m *Manager) Poll(ctx context.Context) (*domain.RotationEvent, error) {
	qm, err := m.querier.GetQuickMarket(ctx, m.asset)
	if err != nil {
		return nil, fmt.Errorf("session: poll quick market: %w", err)
	}

	m.mu.Lock()
	prev := m.current
	wasActive := m.active
	if wasActive && prev.MarketID == qm.MarketID {
		// Same market; refresh mutable fields (end price, resolution).
		m.current = qm
		m.mu.Unlock()
		m.retryApproval(ctx, qm.MarketID)
		return nil, nil
	}
	m.current = qm
	m.active = true
	m.mu.Unlock()

	event := domain.RotationEvent{
		NewMarketID:    qm.MarketID,
		NewStrikeTicks: qm.StrikeTicks,
		NewEndTime:     qm.EndTime,
		At:             time.Now().UTC(),
	}
	if wasActive {
		event.RetiringMarketID = prev.MarketID
		event.RetiringContract = prev.ContractAddress
	}

	// Approve the new market's collateral spender before quoting starts.
	// A failure marks the market for retry on the next tick.
	if err := m.ensureApproved(ctx, qm.MarketID); err != nil {
		m.logger.Warn("collateral approval failed",
			slog.String("market_id", qm.MarketID),
			slog.String("error", err.Error()))
		m.setApprovalDue(qm.MarketID)
	} else {
		m.setApprovalDue("")
	}

	m.logger.Info("market rotation",
		slog.String("retiring", event.RetiringMarketID),
		slog.String("new", event.NewMarketID),
		slog.Int64("strike", event.NewStrikeTicks),
		slog.Time("end_time", event.NewEndTime))
	return &event, nil
}

// Run polls on a fixed interval until ctx is cancelled, delivering rotation
// events on the Rotations channel.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	// Immediate first poll so startup does not wait a full interval.
	if event, err := m.Poll(ctx); err != nil {
		m.logger.Warn("initial poll failed", slog.String("error", err.Error()))
	} else if event != nil {
		m.deliver(ctx, *event)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			event, err := m.Poll(ctx)
			if err != nil {
				m.logger.Warn("poll failed", slog.String("error", err.Error()))
				continue
			}
			if event != nil {
				m.deliver(ctx, *event)
			}
		}
	}
}

func (m *Manager) deliver(ctx context.Context, event domain.RotationEvent) {
	select {
	case m.rotations <- event:
	case <-ctx.Done():
	}
}

// ensureApproved fetches the market's settlement spender and issues a
// one-time approval when the spender has not been seen before. Two tasks
// racing through the unapproved window both call Approve; the venue treats
// the second call as a no-op.
func (m *Manager) ensureApproved(ctx context.Context, marketID string) error {
	market, err := m.querier.GetMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("session: fetch market for approval: %w", err)
	}
	spender := market.SettlementAddress
	if spender == "" {
		return fmt.Errorf("session: market %s has no settlement address", marketID)
	}

	m.approvalMu.Lock()
	done := m.approved[spender]
	m.approvalMu.Unlock()
	if done {
		return nil
	}

	if err := m.approver.Approve(ctx, spender); err != nil {
		return fmt.Errorf("session: approve spender %s: %w", spender, err)
	}

	m.approvalMu.Lock()
	m.approved[spender] = true
	m.approvalMu.Unlock()

	m.logger.Info("collateral approved", slog.String("spender", spender))
	return nil
}

func (m *Manager) setApprovalDue(marketID string) {
	m.approvalMu.Lock()
	m.approvalDue = marketID
	m.approvalMu.Unlock()
}

// retryApproval re-attempts a previously failed spender approval for the
// still-active market.
func (m *Manager) retryApproval(ctx context.Context, marketID string) {
	m.approvalMu.Lock()
	due := m.approvalDue == marketID && marketID != ""
	m.approvalMu.Unlock()
	if !due {
		return
	}

	if err := m.ensureApproved(ctx, marketID); err != nil {
		m.logger.Warn("collateral approval retry failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()))
		return
	}
	m.setApprovalDue("")
}
