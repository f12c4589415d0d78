// Package claims redeems winnings from resolved markets. A background
// scheduler sweeps the pending-claim set on a fixed interval, signs
// gasless redemptions, and spaces submissions to respect venue rate
// limits. Markets are tracked at rotation time and rediscovered from the
// venue at startup so restarts never orphan a payout.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quantfold/turbinebot/internal/config"
	"github.com/quantfold/turbinebot/internal/crypto"
	"github.com/quantfold/turbinebot/internal/domain"
	"github.com/quantfold/turbinebot/internal/platform/turbine"
)

// VenueQuerier is the slice of the venue gateway the scheduler reads from.
type VenueQuerier interface {
	GetResolution(ctx context.Context, marketID string) (domain.Resolution, error)
	GetClaimable(ctx context.Context, address string) ([]domain.ClaimablePosition, error)
	GetClaimData(ctx context.Context, owner string, chainID int, marketAddresses []string) ([]turbine.ClaimData, error)
}

// Redeemer submits signed redemptions through the relayer.
type Redeemer interface {
	SubmitRedemption(ctx context.Context, red turbine.Redemption) (turbine.RelayerResult, error)
	SubmitBatchRedemption(ctx context.Context, owner string, reds []turbine.Redemption) (turbine.RelayerResult, error)
}

// RedeemSigner signs RedeemPositions permits.
type RedeemSigner interface {
	SignRedeem(ctfAddress, collateralToken, conditionID string, indexSets []int64, nonce, deadline int64) (crypto.RedeemSignature, error)
}

// Cooldown rate-gates claim submissions. Allow returns false while a prior
// submission is still inside the window.
type Cooldown interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// Events receives completed claims. May be nil.
type Events interface {
	ClaimSettled(result domain.ClaimResult)
}

const (
	cooldownKey    = "claims:submit"
	redeemValidity = time.Hour
)

// Scheduler owns the pending-claim set. It is the only mutator; Track and
// the sweep loop synchronize on its mutex.
type Scheduler struct {
	querier  VenueQuerier
	redeemer Redeemer
	signer   RedeemSigner
	cooldown Cooldown
	events   Events
	owner    string
	chainID  int
	cfg      config.ClaimsConfig
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*domain.PendingClaim
}

// NewScheduler creates a claim scheduler for the given wallet. events may
// be nil.
func NewScheduler(querier VenueQuerier, redeemer Redeemer, signer RedeemSigner, cooldown Cooldown, events Events, owner string, chainID int, cfg config.ClaimsConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		querier:  querier,
		redeemer: redeemer,
		signer:   signer,
		cooldown: cooldown,
		events:   events,
		owner:    owner,
		chainID:  chainID,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "claims")),
		pending:  make(map[string]*domain.PendingClaim),
	}
}

// Track adds a market to the pending-claim set. Tracking an already
// tracked market is a no-op.
func (s *Scheduler) Track(marketID, contractAddress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[marketID]; ok {
		return
	}
	s.pending[marketID] = &domain.PendingClaim{
		MarketID:        marketID,
		ContractAddress: contractAddress,
		AddedAt:         time.Now().UTC(),
	}
	s.logger.Info("claim tracked",
		slog.String("market_id", marketID),
		slog.String("contract", contractAddress))
}

// Pending returns a snapshot of the pending-claim set.
func (s *Scheduler) Pending() []domain.PendingClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingClaim, 0, len(s.pending))
	for _, pc := range s.pending {
		out = append(out, *pc)
	}
	return out
}

// Discover seeds the pending set from the venue's claimable listing.
// Called once at startup so claims from prior sessions survive restarts.
func (s *Scheduler) Discover(ctx context.Context) error {
	claimable, err := s.querier.GetClaimable(ctx, s.owner)
	if err != nil {
		return fmt.Errorf("claims: discover: %w", err)
	}
	for _, cp := range claimable {
		s.Track(cp.MarketID, cp.ContractAddress)
	}
	if len(claimable) > 0 {
		s.logger.Info("discovered unclaimed positions", slog.Int("count", len(claimable)))
	}
	return nil
}

// Run executes the scheduler loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Discover(ctx); err != nil {
		s.logger.Warn("startup discovery failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.cfg.CheckInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over the pending set: resolution checks, redemption
// signing, rate-gated submission. Failures leave the claim tracked for the
// next pass; attempts beyond the configured maximum drop it.
func (s *Scheduler) Sweep(ctx context.Context) {
	ready := s.resolvedClaims(ctx)
	if len(ready) == 0 {
		return
	}

	contracts := make([]string, 0, len(ready))
	byContract := make(map[string]*domain.PendingClaim, len(ready))
	for _, pc := range ready {
		contracts = append(contracts, pc.ContractAddress)
		byContract[strings.ToLower(pc.ContractAddress)] = pc
	}

	data, err := s.querier.GetClaimData(ctx, s.owner, s.chainID, contracts)
	if err != nil {
		s.logger.Warn("claim data fetch failed", slog.String("error", err.Error()))
		return
	}

	deadline := time.Now().Add(redeemValidity).Unix()
	type signedClaim struct {
		claim *domain.PendingClaim
		red   turbine.Redemption
	}
	var signed []signedClaim
	for _, cd := range data {
		pc, ok := byContract[strings.ToLower(cd.MarketAddress)]
		if !ok || !cd.Resolved {
			continue
		}
		if cd.WinningBalance == 0 {
			// Resolved against us; nothing to redeem, claim is done.
			s.complete(pc.MarketID, domain.ClaimResult{MarketID: pc.MarketID, NoWinnings: true})
			continue
		}

		indexSet := int64(1)
		if domain.Outcome(cd.WinningOutcome) == domain.OutcomeNo {
			indexSet = 2
		}
		sig, err := s.signer.SignRedeem(cd.CTFAddress, cd.CollateralToken, cd.ConditionID, []int64{indexSet}, cd.CTFNonce, deadline)
		if err != nil {
			s.logger.Warn("redeem signing failed",
				slog.String("market_id", pc.MarketID),
				slog.String("error", err.Error()))
			s.recordAttempt(pc.MarketID)
			continue
		}
		signed = append(signed, signedClaim{
			claim: pc,
			red: turbine.Redemption{
				Owner:           s.owner,
				CollateralToken: cd.CollateralToken,
				ConditionID:     cd.ConditionID,
				IndexSets:       []string{strconv.FormatInt(indexSet, 10)},
				Deadline:        strconv.FormatInt(sig.Deadline, 10),
				V:               sig.V,
				R:               sig.R,
				S:               sig.S,
				MarketAddress:   cd.MarketAddress,
			},
		})
	}
	if len(signed) == 0 {
		return
	}

	if s.cfg.BatchClaims && len(signed) > 1 {
		if !s.allowSubmit(ctx) {
			return
		}
		reds := make([]turbine.Redemption, 0, len(signed))
		for _, sc := range signed {
			reds = append(reds, sc.red)
		}
		result, err := s.redeemer.SubmitBatchRedemption(ctx, s.owner, reds)
		if err != nil {
			s.logger.Warn("batch claim failed", slog.String("error", err.Error()))
			for _, sc := range signed {
				s.recordAttempt(sc.claim.MarketID)
			}
			return
		}
		for _, sc := range signed {
			s.complete(sc.claim.MarketID, domain.ClaimResult{
				MarketID: sc.claim.MarketID,
				TxHash:   result.TxHash,
				Claimed:  true,
			})
		}
		return
	}

	for i, sc := range signed {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.ClaimDelay.Duration):
			}
		}
		if !s.allowSubmit(ctx) {
			return
		}
		result, err := s.redeemer.SubmitRedemption(ctx, sc.red)
		switch {
		case errors.Is(err, domain.ErrNoWinningTokens):
			s.complete(sc.claim.MarketID, domain.ClaimResult{MarketID: sc.claim.MarketID, NoWinnings: true})
		case err != nil:
			s.logger.Warn("claim failed",
				slog.String("market_id", sc.claim.MarketID),
				slog.String("error", err.Error()))
			s.recordAttempt(sc.claim.MarketID)
		default:
			s.complete(sc.claim.MarketID, domain.ClaimResult{
				MarketID: sc.claim.MarketID,
				TxHash:   result.TxHash,
				Claimed:  true,
			})
		}
	}
}

// resolvedClaims returns pending claims whose markets the venue reports as
// resolved. Query failures only delay the claim.
func (s *Scheduler) resolvedClaims(ctx context.Context) []*domain.PendingClaim {
	var ready []*domain.PendingClaim
	for _, pc := range s.snapshot() {
		res, err := s.querier.GetResolution(ctx, pc.MarketID)
		if err != nil {
			s.logger.Debug("resolution check failed",
				slog.String("market_id", pc.MarketID),
				slog.String("error", err.Error()))
			continue
		}
		if res.Resolved {
			ready = append(ready, pc)
		}
	}
	return ready
}

func (s *Scheduler) snapshot() []*domain.PendingClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.PendingClaim, 0, len(s.pending))
	for _, pc := range s.pending {
		out = append(out, pc)
	}
	return out
}

func (s *Scheduler) allowSubmit(ctx context.Context) bool {
	ok, err := s.cooldown.Allow(ctx, cooldownKey, s.cfg.ClaimDelay.Duration)
	if err != nil {
		s.logger.Warn("claim cooldown check failed", slog.String("error", err.Error()))
		return false
	}
	if !ok {
		s.logger.Debug("claim rate window active, deferring")
	}
	return ok
}

// complete removes a settled claim and publishes the result. A claim is
// settled by exactly one of: a successful redemption or a no-winnings
// response.
func (s *Scheduler) complete(marketID string, result domain.ClaimResult) {
	s.mu.Lock()
	delete(s.pending, marketID)
	s.mu.Unlock()

	s.logger.Info("claim settled",
		slog.String("market_id", marketID),
		slog.Bool("claimed", result.Claimed),
		slog.Bool("no_winnings", result.NoWinnings),
		slog.String("tx_hash", result.TxHash))
	if s.events != nil {
		s.events.ClaimSettled(result)
	}
}

func (s *Scheduler) recordAttempt(marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.pending[marketID]
	if !ok {
		return
	}
	pc.Attempts++
	pc.LastAttempt = time.Now().UTC()
	if pc.Attempts >= s.cfg.MaxAttempts {
		delete(s.pending, marketID)
		s.logger.Warn("claim abandoned after max attempts",
			slog.String("market_id", marketID),
			slog.Int("attempts", pc.Attempts))
	}
}
