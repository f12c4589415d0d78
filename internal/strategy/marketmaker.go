package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/quantfold/turbinebot/internal/config"
	"github.com/quantfold/turbinebot/internal/domain"
)

// MarketMaker quotes a symmetric ladder around a fair YES probability. The
// fair value starts at the base probability and is pushed toward the
// outcome the oracle currently favors; sensitivity grows and the spread
// tightens as the market ages, since late price gaps are harder to close
// before expiry.
type MarketMaker struct {
	cfg config.MarketMakerConfig
}

// NewMarketMaker builds the strategy from config.
func NewMarketMaker(cfg config.MarketMakerConfig) *MarketMaker {
	return &MarketMaker{cfg: cfg}
}

// Name implements Strategy.
func (m *MarketMaker) Name() string { return "market_maker" }

// Decide derives the ladder's fair probability and spread from the
// oracle-strike deviation and the elapsed fraction of the market interval.
func (m *MarketMaker) Decide(_ context.Context, state domain.MarketState) (domain.Decision, error) {
	if state.OracleTicks == 0 {
		return domain.Hold("no oracle price"), nil
	}
	strike := state.Market.StrikeTicks
	if strike == 0 {
		return domain.Hold("no strike"), nil
	}

	timeFactor := state.Elapsed()
	deviationPct := float64(state.OracleTicks-strike) / float64(strike) * 100

	// Later in the interval the same deviation moves the fair value more.
	effSens := m.cfg.Sensitivity * (1 + timeFactor*m.cfg.TimeFactor)
	adj := math.Min(m.cfg.MaxProbability-m.cfg.BaseProbability, math.Abs(deviationPct)*effSens)

	yesTarget := m.cfg.BaseProbability
	if deviationPct > 0 {
		yesTarget += adj
	} else if deviationPct < 0 {
		yesTarget -= adj
	}
	yesTarget = clampProb(yesTarget, 1-m.cfg.MaxProbability, m.cfg.MaxProbability)

	spread := math.Max(m.cfg.MinSpread, m.cfg.BaseSpread*(1-timeFactor*m.cfg.SpreadTighten))

	return domain.Decision{
		Kind:            domain.DecisionLadder,
		TargetProbTicks: int64(yesTarget * domain.PriceScale),
		SpreadTicks:     int64(spread * domain.PriceScale),
		Levels:          m.cfg.Levels,
		Reason:          fmt.Sprintf("dev %.4f%% t %.2f target %.3f", deviationPct, timeFactor, yesTarget),
	}, nil
}

func clampProb(p, lo, hi float64) float64 {
	if p < lo {
		return lo
	}
	if p > hi {
		return hi
	}
	return p
}
