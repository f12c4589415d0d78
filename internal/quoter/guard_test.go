package quoter

import (
	"testing"
	"time"

	"github.com/quantfold/turbinebot/internal/domain"
)

func TestGuardTripsOnLopsidedFills(t *testing.T) {
	g := NewGuard(30*time.Second, 20*time.Second, 0.8)
	now := time.Now()

	for i := 0; i < guardMinFills-1; i++ {
		if g.Record(now, domain.SideBuy) {
			t.Fatalf("tripped on fill %d, below minimum sample", i+1)
		}
	}
	if !g.Record(now, domain.SideBuy) {
		t.Fatal("expected trip after four one-sided fills")
	}
	if !g.Paused(now) {
		t.Error("guard should be paused after trip")
	}
	if g.Paused(now.Add(21 * time.Second)) {
		t.Error("cooldown should have expired")
	}
}

func TestGuardIgnoresBalancedFlow(t *testing.T) {
	g := NewGuard(30*time.Second, 20*time.Second, 0.8)
	now := time.Now()

	sides := []domain.Side{domain.SideBuy, domain.SideSell, domain.SideBuy, domain.SideSell, domain.SideBuy, domain.SideSell}
	for i, s := range sides {
		if g.Record(now, s) {
			t.Fatalf("balanced flow tripped guard on fill %d", i+1)
		}
	}
}

func TestGuardWindowPrunesOldFills(t *testing.T) {
	g := NewGuard(30*time.Second, 20*time.Second, 0.8)
	now := time.Now()

	g.Record(now, domain.SideBuy)
	g.Record(now, domain.SideBuy)
	g.Record(now, domain.SideBuy)
	// The fourth fill lands after the first three left the window.
	if g.Record(now.Add(31*time.Second), domain.SideBuy) {
		t.Error("stale fills should not count toward the trip")
	}
}

func TestGuardReset(t *testing.T) {
	g := NewGuard(30*time.Second, time.Hour, 0.8)
	now := time.Now()

	for i := 0; i < guardMinFills; i++ {
		g.Record(now, domain.SideSell)
	}
	if !g.Paused(now) {
		t.Fatal("expected paused guard")
	}
	g.Reset()
	if g.Paused(now) {
		t.Error("reset should clear the cooldown")
	}
}
