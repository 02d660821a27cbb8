// Package score turns per-product demand and freshness signals into a
// queue priority. Lower is more urgent: 1 schedules first, 10 last.
package score

import (
	"math"
)

// Weights defines the relative importance of each priority factor.
type Weights struct {
	Volatility float64
	Popularity float64
	Price      float64
	Staleness  float64
	Boost      float64
}

// DefaultWeights returns the default priority weights.
func DefaultWeights() Weights {
	return Weights{
		Volatility: 0.35,
		Popularity: 0.25,
		Price:      0.15,
		Staleness:  0.15,
		Boost:      0.10,
	}
}

// Signals holds the fields needed for scoring (decoupled from DB model).
type Signals struct {
	VolatilityPct  float64 // (high-low)/low over the trailing window, in percent
	RuleCount      int     // enabled alert rules watching the product
	Price          float64 // current price in the product currency
	HoursSinceScan float64 // hours since the last check, success or failure
	Boost          float64 // manual operator boost, 0-10
}

// Breakdown shows per-factor sub-scores on the 0-10 scale.
type Breakdown struct {
	Volatility float64 `json:"volatility"`
	Popularity float64 `json:"popularity"`
	Price      float64 `json:"price"`
	Staleness  float64 `json:"staleness"`
	Boost      float64 `json:"boost"`
	Priority   int     `json:"priority"`
}

// Score computes the composite priority for a product.
func Score(s Signals, w Weights) Breakdown {
	b := Breakdown{
		Volatility: volatilityScore(s.VolatilityPct),
		Popularity: popularityScore(s.RuleCount),
		Price:      priceScore(s.Price),
		Staleness:  stalenessScore(s.HoursSinceScan),
		Boost:      clamp(s.Boost, 0, 10),
	}

	weighted := b.Volatility*w.Volatility +
		b.Popularity*w.Popularity +
		b.Price*w.Price +
		b.Staleness*w.Staleness +
		b.Boost*w.Boost

	// High demand maps to a low priority number.
	b.Priority = int(math.Round(clamp(11-weighted, 1, 10)))

	return b
}

// volatilityScore maps trailing price movement to 0-10.
// 50% swings and beyond saturate.
func volatilityScore(pct float64) float64 {
	if pct <= 0 {
		return 0
	}
	return math.Min(pct/5, 10)
}

// popularityScore rewards products more users watch.
func popularityScore(rules int) float64 {
	if rules <= 0 {
		return 1
	}
	return math.Min(1+float64(rules)/2, 10)
}

// priceScore gives big-ticket items a mild edge; a missed drop on an
// expensive product costs the user more.
func priceScore(price float64) float64 {
	if price <= 1 {
		return 1
	}
	return clamp(1+3*math.Log10(price), 1, 10)
}

// stalenessScore grows with time since the last check; two days saturate.
func stalenessScore(hours float64) float64 {
	if hours <= 0 {
		return 0
	}
	return math.Min(hours/4.8, 10)
}

func clamp(v, minVal, maxVal float64) float64 {
	return math.Max(minVal, math.Min(maxVal, v))
}
