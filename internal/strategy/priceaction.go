package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/quantfold/turbinebot/internal/config"
	"github.com/quantfold/turbinebot/internal/domain"
)

// PriceAction trades directionally on the gap between the oracle price and
// the market strike. A gap wider than the configured threshold is treated
// as a signal that the closer-to-money outcome is underpriced.
type PriceAction struct {
	thresholdBps int
	minConf      float64
	maxConf      float64
}

// NewPriceAction builds the strategy from config.
func NewPriceAction(cfg config.PriceActionConfig) *PriceAction {
	return &PriceAction{
		thresholdBps: cfg.ThresholdBps,
		minConf:      cfg.MinConfidence,
		maxConf:      cfg.MaxConfidence,
	}
}

// Name implements Strategy.
func (p *PriceAction) Name() string { return "price_action" }

// Decide compares oracle against strike. Inside the threshold band it
// holds; outside it buys the outcome the gap favors, with confidence
// proportional to the gap and clamped to the configured bounds.
func (p *PriceAction) Decide(_ context.Context, state domain.MarketState) (domain.Decision, error) {
	if state.OracleTicks == 0 {
		return domain.Hold("no oracle price"), nil
	}
	strike := state.Market.StrikeTicks
	if strike == 0 {
		return domain.Hold("no strike"), nil
	}

	diffPct := float64(state.OracleTicks-strike) / float64(strike) * 100
	thresholdPct := float64(p.thresholdBps) / 100

	if math.Abs(diffPct) < thresholdPct {
		return domain.Hold(fmt.Sprintf("gap %.4f%% inside %.4f%% band", diffPct, thresholdPct)), nil
	}

	// Half the percentage gap, capped at max; never quote below min so the
	// sizer does not dust the book on marginal signals.
	conf := math.Min(math.Abs(diffPct)/2, p.maxConf)
	if conf < p.minConf {
		conf = p.minConf
	}

	outcome := domain.OutcomeNo
	if diffPct > 0 {
		outcome = domain.OutcomeYes
	}

	return domain.Decision{
		Kind:       domain.DecisionDirectional,
		Outcome:    outcome,
		Confidence: conf,
		Reason:     fmt.Sprintf("oracle %.4f%% from strike", diffPct),
	}, nil
}
