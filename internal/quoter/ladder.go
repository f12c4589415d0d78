package quoter

import (
	"math"

	"github.com/quantfold/turbinebot/internal/domain"
)

// Price levels never touch the book edges; the venue rejects quotes at 0
// or 1.
const (
	minLevelTicks = 10_000
	maxLevelTicks = 990_000
)

// level is one rung of the two-sided ladder before submission.
type level struct {
	outcome    domain.Outcome
	side       domain.Side
	priceTicks int64
	sizeUnits  int64
	idx        int
}

// geometricWeights returns normalized size weights for n levels. Buy
// ladders use lambda^i so size concentrates at the highest (best) bid;
// sell ladders mirror the exponent so size concentrates at the lowest
// (best) ask.
func geometricWeights(n int, lambda float64, side domain.Side) []float64 {
	weights := make([]float64, n)
	var total float64
	for i := 0; i < n; i++ {
		var w float64
		if side == domain.SideBuy {
			w = math.Pow(lambda, float64(i))
		} else {
			w = math.Pow(lambda, float64(n-1-i))
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		for i := range weights {
			weights[i] = 1 / float64(n)
		}
		return weights
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// levelPrices returns n evenly spaced prices from min to max inclusive,
// ascending, each clamped to the quotable band.
func levelPrices(minTicks, maxTicks int64, n int) []int64 {
	clamp := func(p int64) int64 {
		if p < minLevelTicks {
			return minLevelTicks
		}
		if p > maxLevelTicks {
			return maxLevelTicks
		}
		return p
	}
	if n <= 1 {
		return []int64{clamp((minTicks + maxTicks) / 2)}
	}
	step := float64(maxTicks-minTicks) / float64(n-1)
	prices := make([]int64, n)
	for i := 0; i < n; i++ {
		prices[i] = clamp(minTicks + int64(float64(i)*step))
	}
	return prices
}

// sharesFromUSDC converts a dollar budget into share units at a price.
func sharesFromUSDC(usdc float64, priceTicks int64) int64 {
	if priceTicks <= 0 {
		return 0
	}
	return int64(usdc * domain.PriceScale * domain.PriceScale / float64(priceTicks))
}

// minLevelUSDC is the dust floor; a rung worth less is not quoted.
const minLevelUSDC = 0.01

// buildLadder lays out the full two-sided ladder for both outcomes around
// the YES target. The allocation is split into four equal buckets (two
// outcomes times two sides), then distributed geometrically across levels.
// When the target probability is extreme, the sides that would accumulate
// the unfavored outcome are dropped entirely.
func buildLadder(targetTicks, spreadTicks int64, n int, lambda, allocationUSDC, oneSidedThreshold float64) []level {
	if n < 1 {
		return nil
	}

	half := spreadTicks / 2
	usdcPerSide := allocationUSDC / 4
	oneSidedTicks := int64(oneSidedThreshold * domain.PriceScale)

	type sideSpec struct {
		outcome domain.Outcome
		target  int64
		buy     bool
		sell    bool
	}
	specs := []sideSpec{
		{outcome: domain.OutcomeYes, target: targetTicks, buy: true, sell: true},
		{outcome: domain.OutcomeNo, target: domain.PriceScale - targetTicks, buy: true, sell: true},
	}
	if targetTicks >= oneSidedTicks {
		// YES nearly certain: quote only the YES accumulation path.
		specs[0].sell = false
		specs[1].buy = false
	} else if targetTicks <= domain.PriceScale-oneSidedTicks {
		specs[0].buy = false
		specs[1].sell = false
	}

	buyWeights := geometricWeights(n, lambda, domain.SideBuy)
	sellWeights := geometricWeights(n, lambda, domain.SideSell)

	var out []level
	for _, spec := range specs {
		bidMax := spec.target - half
		bidMin := maxTicks64(minLevelTicks, bidMax-spreadTicks)
		bidMax = maxTicks64(bidMin+minLevelTicks, minTicks64(maxLevelTicks, bidMax))
		askMin := maxTicks64(minLevelTicks, spec.target+half)
		askMax := maxTicks64(askMin+minLevelTicks, minTicks64(maxLevelTicks, askMin+spreadTicks))

		if spec.buy {
			prices := levelPrices(bidMin, bidMax, n)
			for i := 0; i < n; i++ {
				usdc := usdcPerSide * buyWeights[i]
				if usdc < minLevelUSDC {
					continue
				}
				shares := sharesFromUSDC(usdc, prices[i])
				if shares <= 0 {
					continue
				}
				out = append(out, level{
					outcome:    spec.outcome,
					side:       domain.SideBuy,
					priceTicks: prices[i],
					sizeUnits:  shares,
					idx:        i,
				})
			}
		}
		if spec.sell {
			prices := levelPrices(askMin, askMax, n)
			for i := 0; i < n; i++ {
				usdc := usdcPerSide * sellWeights[i]
				if usdc < minLevelUSDC {
					continue
				}
				shares := sharesFromUSDC(usdc, prices[i])
				if shares <= 0 {
					continue
				}
				out = append(out, level{
					outcome:    spec.outcome,
					side:       domain.SideSell,
					priceTicks: prices[i],
					sizeUnits:  shares,
					idx:        i,
				})
			}
		}
	}
	return out
}

func minTicks64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxTicks64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
