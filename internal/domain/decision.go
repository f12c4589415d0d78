package domain

import "time"

// DecisionKind tags the quoting shape a strategy asks for.
type DecisionKind int

const (
	DecisionHold DecisionKind = iota
	DecisionDirectional
	DecisionLadder
)

// String returns the display name for the decision kind.
func (k DecisionKind) String() string {
	switch k {
	case DecisionDirectional:
		return "directional"
	case DecisionLadder:
		return "ladder"
	}
	return "hold"
}

// Decision is a strategy's instruction to the quoting controller. Exactly one
// shape is meaningful per kind: Directional fields for DecisionDirectional,
// Ladder fields for DecisionLadder, nothing for DecisionHold.
type Decision struct {
	Kind DecisionKind

	// Directional shape.
	Outcome    Outcome
	Confidence float64 // 0..1, scales order size

	// Ladder shape.
	TargetProbTicks int64 // fair YES probability, 1e6 scale
	SpreadTicks     int64 // full spread around the target, 1e6 scale
	Levels          int

	Reason string
}

// Hold returns the no-op decision.
func Hold(reason string) Decision {
	return Decision{Kind: DecisionHold, Reason: reason}
}

// MarketState is the snapshot a strategy decides on.
type MarketState struct {
	Market      QuickMarket
	OracleTicks int64 // latest oracle price, 1e6 scale
	Book        OrderbookSnapshot
	Position    Position
	Now         time.Time
}

// Elapsed returns the fraction of the market interval already consumed,
// clamped to [0, 1].
func (s MarketState) Elapsed() float64 {
	total := s.Market.EndTime.Sub(s.Market.StartTime)
	if total <= 0 {
		return 1
	}
	f := float64(s.Now.Sub(s.Market.StartTime)) / float64(total)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
