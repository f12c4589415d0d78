package claims

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/quantfold/turbinebot/internal/config"
	"github.com/quantfold/turbinebot/internal/crypto"
	"github.com/quantfold/turbinebot/internal/domain"
	"github.com/quantfold/turbinebot/internal/platform/turbine"
)

const owner = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

type fakeVenue struct {
	resolved  map[string]bool
	claimable []domain.ClaimablePosition
	data      []turbine.ClaimData
}

func (v *fakeVenue) GetResolution(_ context.Context, marketID string) (domain.Resolution, error) {
	return domain.Resolution{MarketID: marketID, Resolved: v.resolved[marketID]}, nil
}

func (v *fakeVenue) GetClaimable(context.Context, string) ([]domain.ClaimablePosition, error) {
	return v.claimable, nil
}

func (v *fakeVenue) GetClaimData(context.Context, string, int, []string) ([]turbine.ClaimData, error) {
	return v.data, nil
}

type fakeRedeemer struct {
	mu      sync.Mutex
	singles []turbine.Redemption
	batches [][]turbine.Redemption
	err     error
}

func (r *fakeRedeemer) SubmitRedemption(_ context.Context, red turbine.Redemption) (turbine.RelayerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return turbine.RelayerResult{}, r.err
	}
	r.singles = append(r.singles, red)
	return turbine.RelayerResult{Success: true, TxHash: "0xclaimtx"}, nil
}

func (r *fakeRedeemer) SubmitBatchRedemption(_ context.Context, _ string, reds []turbine.Redemption) (turbine.RelayerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return turbine.RelayerResult{}, r.err
	}
	r.batches = append(r.batches, reds)
	return turbine.RelayerResult{Success: true, TxHash: "0xbatchtx"}, nil
}

type fakeRedeemSigner struct{}

func (fakeRedeemSigner) SignRedeem(_, _, _ string, _ []int64, nonce, deadline int64) (crypto.RedeemSignature, error) {
	return crypto.RedeemSignature{Nonce: nonce, Deadline: deadline, V: 27, R: "0xr", S: "0xs"}, nil
}

type captureEvents struct {
	mu      sync.Mutex
	results []domain.ClaimResult
}

func (c *captureEvents) ClaimSettled(result domain.ClaimResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.ClaimsConfig {
	cfg := config.Defaults().Claims
	cfg.BatchClaims = false
	cfg.MaxAttempts = 2
	cfg.ClaimDelay.Duration = 0
	return cfg
}

func winningData(contract string) turbine.ClaimData {
	return turbine.ClaimData{
		MarketAddress:   contract,
		Resolved:        true,
		WinningOutcome:  int(domain.OutcomeYes),
		WinningBalance:  5 * domain.PriceScale,
		CTFAddress:      "0xCTF",
		CollateralToken: "0xUSDC",
		ConditionID:     "0xcond",
		CTFNonce:        3,
	}
}

func newTestScheduler(venue *fakeVenue, redeemer *fakeRedeemer, events Events, cfg config.ClaimsConfig) *Scheduler {
	return NewScheduler(venue, redeemer, fakeRedeemSigner{}, NewMemoryCooldown(), events, owner, 10143, cfg, discard())
}

func TestTrackIsIdempotent(t *testing.T) {
	s := newTestScheduler(&fakeVenue{}, &fakeRedeemer{}, nil, testConfig())

	s.Track("mkt-1", "0xAAA")
	s.Track("mkt-1", "0xBBB")

	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].ContractAddress != "0xAAA" {
		t.Error("second track overwrote the original claim")
	}
}

func TestSweepClaimsResolvedMarket(t *testing.T) {
	venue := &fakeVenue{
		resolved: map[string]bool{"mkt-1": true},
		data:     []turbine.ClaimData{winningData("0xAAA")},
	}
	redeemer := &fakeRedeemer{}
	events := &captureEvents{}
	s := newTestScheduler(venue, redeemer, events, testConfig())
	s.Track("mkt-1", "0xAAA")

	s.Sweep(context.Background())

	if len(redeemer.singles) != 1 {
		t.Fatalf("submitted %d redemptions, want 1", len(redeemer.singles))
	}
	red := redeemer.singles[0]
	if red.ConditionID != "0xcond" || len(red.IndexSets) != 1 || red.IndexSets[0] != "1" {
		t.Errorf("redemption = %+v, want YES index set 1", red)
	}
	if len(s.Pending()) != 0 {
		t.Error("settled claim should leave the pending set")
	}
	if len(events.results) != 1 || !events.results[0].Claimed || events.results[0].TxHash != "0xclaimtx" {
		t.Errorf("events = %+v", events.results)
	}
}

func TestSweepSkipsUnresolvedMarkets(t *testing.T) {
	venue := &fakeVenue{resolved: map[string]bool{"mkt-1": false}}
	redeemer := &fakeRedeemer{}
	s := newTestScheduler(venue, redeemer, nil, testConfig())
	s.Track("mkt-1", "0xAAA")

	s.Sweep(context.Background())

	if len(redeemer.singles) != 0 {
		t.Error("unresolved market must not be claimed")
	}
	if len(s.Pending()) != 1 {
		t.Error("unresolved claim must stay tracked")
	}
}

func TestSweepNoWinningsCompletesClaim(t *testing.T) {
	data := winningData("0xAAA")
	data.WinningBalance = 0
	venue := &fakeVenue{
		resolved: map[string]bool{"mkt-1": true},
		data:     []turbine.ClaimData{data},
	}
	redeemer := &fakeRedeemer{}
	events := &captureEvents{}
	s := newTestScheduler(venue, redeemer, events, testConfig())
	s.Track("mkt-1", "0xAAA")

	s.Sweep(context.Background())

	if len(redeemer.singles) != 0 {
		t.Error("a zero balance must not be redeemed")
	}
	if len(s.Pending()) != 0 {
		t.Error("no-winnings claim is settled")
	}
	if len(events.results) != 1 || !events.results[0].NoWinnings {
		t.Errorf("events = %+v, want one no-winnings result", events.results)
	}
}

func TestSweepNoWinningTokensResponse(t *testing.T) {
	venue := &fakeVenue{
		resolved: map[string]bool{"mkt-1": true},
		data:     []turbine.ClaimData{winningData("0xAAA")},
	}
	redeemer := &fakeRedeemer{err: domain.ErrNoWinningTokens}
	events := &captureEvents{}
	s := newTestScheduler(venue, redeemer, events, testConfig())
	s.Track("mkt-1", "0xAAA")

	s.Sweep(context.Background())

	if len(s.Pending()) != 0 {
		t.Error("no-winning-tokens response settles the claim")
	}
	if len(events.results) != 1 || !events.results[0].NoWinnings {
		t.Errorf("events = %+v", events.results)
	}
}

func TestSweepAbandonsAfterMaxAttempts(t *testing.T) {
	venue := &fakeVenue{
		resolved: map[string]bool{"mkt-1": true},
		data:     []turbine.ClaimData{winningData("0xAAA")},
	}
	redeemer := &fakeRedeemer{err: errors.New("relayer down")}
	s := newTestScheduler(venue, redeemer, nil, testConfig())
	s.Track("mkt-1", "0xAAA")

	s.Sweep(context.Background())
	if len(s.Pending()) != 1 {
		t.Fatal("first failure should keep the claim")
	}
	s.Sweep(context.Background())
	if len(s.Pending()) != 0 {
		t.Error("claim should be abandoned at the attempt cap")
	}
}

func TestSweepBatchesMultipleClaims(t *testing.T) {
	venue := &fakeVenue{
		resolved: map[string]bool{"mkt-1": true, "mkt-2": true},
		data:     []turbine.ClaimData{winningData("0xAAA"), winningData("0xBBB")},
	}
	redeemer := &fakeRedeemer{}
	cfg := testConfig()
	cfg.BatchClaims = true
	s := newTestScheduler(venue, redeemer, nil, cfg)
	s.Track("mkt-1", "0xAAA")
	s.Track("mkt-2", "0xBBB")

	s.Sweep(context.Background())

	if len(redeemer.batches) != 1 || len(redeemer.batches[0]) != 2 {
		t.Errorf("batches = %v", redeemer.batches)
	}
	if len(redeemer.singles) != 0 {
		t.Error("batch mode should not submit singles")
	}
	if len(s.Pending()) != 0 {
		t.Error("both claims should settle")
	}
}

func TestDiscoverSeedsPendingSet(t *testing.T) {
	venue := &fakeVenue{claimable: []domain.ClaimablePosition{
		{MarketID: "mkt-9", ContractAddress: "0xOld"},
	}}
	s := newTestScheduler(venue, &fakeRedeemer{}, nil, testConfig())

	if err := s.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	pending := s.Pending()
	if len(pending) != 1 || pending[0].MarketID != "mkt-9" {
		t.Errorf("pending = %+v", pending)
	}
}
