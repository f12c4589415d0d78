package quoter

import (
	"sync"
	"time"

	"github.com/quantfold/turbinebot/internal/domain"
)

// guardMinFills is the minimum sample before lopsidedness is judged; a
// single fill is never a signal.
const guardMinFills = 4

// Guard detects adverse selection. When fills inside a rolling window land
// overwhelmingly on one side, something is moving through our quotes
// faster than we reprice; the guard trips, all quotes are pulled, and
// submissions pause for a cooldown.
type Guard struct {
	window   time.Duration
	cooldown time.Duration
	ratio    float64

	mu          sync.Mutex
	fills       []guardFill
	pausedUntil time.Time
}

type guardFill struct {
	at   time.Time
	side domain.Side
}

// NewGuard creates a Guard. ratio is the fraction of windowed fills on a
// single side that trips it.
func NewGuard(window, cooldown time.Duration, ratio float64) *Guard {
	return &Guard{window: window, cooldown: cooldown, ratio: ratio}
}

// Record registers one of our fills and reports whether it tripped the
// guard. Tripping clears the window and starts the cooldown.
func (g *Guard) Record(now time.Time, side domain.Side) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.fills = append(g.fills, guardFill{at: now, side: side})
	g.prune(now)

	total := len(g.fills)
	if total < guardMinFills {
		return false
	}
	var buys int
	for _, f := range g.fills {
		if f.side == domain.SideBuy {
			buys++
		}
	}
	sells := total - buys
	dominant := buys
	if sells > dominant {
		dominant = sells
	}
	if float64(dominant)/float64(total) < g.ratio {
		return false
	}

	g.pausedUntil = now.Add(g.cooldown)
	g.fills = nil
	return true
}

// Paused reports whether the cooldown is still in effect.
func (g *Guard) Paused(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return now.Before(g.pausedUntil)
}

// Reset clears windowed fills and any active cooldown. Called on rotation;
// a new market starts clean.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fills = nil
	g.pausedUntil = time.Time{}
}

func (g *Guard) prune(now time.Time) {
	cutoff := now.Add(-g.window)
	kept := g.fills[:0]
	for _, f := range g.fills {
		if f.at.After(cutoff) {
			kept = append(kept, f)
		}
	}
	g.fills = kept
}
