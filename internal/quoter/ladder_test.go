package quoter

import (
	"math"
	"testing"

	"github.com/quantfold/turbinebot/internal/domain"
)

func TestGeometricWeightsNormalized(t *testing.T) {
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		weights := geometricWeights(5, 1.5, side)
		var sum float64
		for _, w := range weights {
			sum += w
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("side %s: weights sum to %f, want 1", side, sum)
		}
	}
}

func TestGeometricWeightsConcentration(t *testing.T) {
	// Buy ladders concentrate size at the highest index (best bid).
	buy := geometricWeights(4, 2, domain.SideBuy)
	for i := 1; i < len(buy); i++ {
		if buy[i] <= buy[i-1] {
			t.Fatalf("buy weights not increasing: %v", buy)
		}
	}
	// Sell ladders concentrate size at index 0 (best ask).
	sell := geometricWeights(4, 2, domain.SideSell)
	for i := 1; i < len(sell); i++ {
		if sell[i] >= sell[i-1] {
			t.Fatalf("sell weights not decreasing: %v", sell)
		}
	}
}

func TestLevelPricesSpacingAndClamp(t *testing.T) {
	prices := levelPrices(520_000, 540_000, 3)
	want := []int64{520_000, 530_000, 540_000}
	for i := range want {
		if prices[i] != want[i] {
			t.Errorf("price[%d] = %d, want %d", i, prices[i], want[i])
		}
	}

	clamped := levelPrices(-50_000, 5_000, 3)
	for _, p := range clamped {
		if p < minLevelTicks || p > maxLevelTicks {
			t.Errorf("price %d escaped the quotable band", p)
		}
	}

	single := levelPrices(400_000, 600_000, 1)
	if len(single) != 1 || single[0] != 500_000 {
		t.Errorf("single level = %v, want midpoint 500000", single)
	}
}

func TestSharesFromUSDC(t *testing.T) {
	// $10 at 50 cents buys 20 shares.
	got := sharesFromUSDC(10, 500_000)
	if got != 20*domain.PriceScale {
		t.Errorf("shares = %d, want %d", got, 20*domain.PriceScale)
	}
	if sharesFromUSDC(10, 0) != 0 {
		t.Error("zero price should yield zero shares")
	}
}

func TestBuildLadderTwoSided(t *testing.T) {
	levels := buildLadder(550_000, 20_000, 3, 2, 100, 0.8)

	counts := map[[2]int]int{}
	for _, lv := range levels {
		counts[[2]int{int(lv.outcome), int(lv.side)}]++
		if lv.priceTicks < minLevelTicks || lv.priceTicks > maxLevelTicks {
			t.Errorf("level price %d outside band", lv.priceTicks)
		}
		if lv.sizeUnits <= 0 {
			t.Errorf("level at %d has no size", lv.priceTicks)
		}
	}
	for _, key := range [][2]int{
		{int(domain.OutcomeYes), int(domain.SideBuy)},
		{int(domain.OutcomeYes), int(domain.SideSell)},
		{int(domain.OutcomeNo), int(domain.SideBuy)},
		{int(domain.OutcomeNo), int(domain.SideSell)},
	} {
		if counts[key] != 3 {
			t.Errorf("outcome %d side %d has %d levels, want 3", key[0], key[1], counts[key])
		}
	}

	// YES bids span [target-1.5*spread, target-spread/2] ascending; the best
	// (highest) bid carries the most size.
	var yesBids []level
	for _, lv := range levels {
		if lv.outcome == domain.OutcomeYes && lv.side == domain.SideBuy {
			yesBids = append(yesBids, lv)
		}
	}
	if yesBids[0].priceTicks != 520_000 || yesBids[2].priceTicks != 540_000 {
		t.Errorf("yes bid range [%d, %d], want [520000, 540000]",
			yesBids[0].priceTicks, yesBids[2].priceTicks)
	}
	for i := 1; i < len(yesBids); i++ {
		if yesBids[i].priceTicks <= yesBids[i-1].priceTicks {
			t.Error("yes bid prices not ascending")
		}
		if yesBids[i].sizeUnits <= yesBids[i-1].sizeUnits {
			t.Error("yes bid size should concentrate at the best bid")
		}
	}

	// YES asks start half a spread above the target.
	for _, lv := range levels {
		if lv.outcome == domain.OutcomeYes && lv.side == domain.SideSell && lv.idx == 0 {
			if lv.priceTicks != 560_000 {
				t.Errorf("best yes ask = %d, want 560000", lv.priceTicks)
			}
		}
	}

	// NO ladders mirror around the complement target.
	for _, lv := range levels {
		if lv.outcome == domain.OutcomeNo && lv.side == domain.SideBuy && lv.idx == 2 {
			if lv.priceTicks != 440_000 {
				t.Errorf("best no bid = %d, want 440000", lv.priceTicks)
			}
		}
	}
}

func TestBuildLadderOneSided(t *testing.T) {
	// YES nearly certain: never sell YES, never buy NO.
	levels := buildLadder(850_000, 20_000, 3, 1.5, 100, 0.8)
	if len(levels) == 0 {
		t.Fatal("expected levels")
	}
	for _, lv := range levels {
		if lv.outcome == domain.OutcomeYes && lv.side == domain.SideSell {
			t.Error("quoted a YES sell above the one-sided threshold")
		}
		if lv.outcome == domain.OutcomeNo && lv.side == domain.SideBuy {
			t.Error("quoted a NO buy above the one-sided threshold")
		}
	}

	// Mirror case: YES nearly impossible.
	levels = buildLadder(150_000, 20_000, 3, 1.5, 100, 0.8)
	for _, lv := range levels {
		if lv.outcome == domain.OutcomeYes && lv.side == domain.SideBuy {
			t.Error("quoted a YES buy below the mirrored threshold")
		}
		if lv.outcome == domain.OutcomeNo && lv.side == domain.SideSell {
			t.Error("quoted a NO sell below the mirrored threshold")
		}
	}
}

func TestBuildLadderDustDropped(t *testing.T) {
	// A sub-cent allocation never reaches the book.
	levels := buildLadder(500_000, 20_000, 3, 1.5, 0.03, 0.8)
	if len(levels) != 0 {
		t.Errorf("expected dust to be dropped, got %d levels", len(levels))
	}
}
