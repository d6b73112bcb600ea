package market

import "math"

// AmericanToImplied converts American odds to implied probability.
// Example: -150 → 0.6 (60%), +150 → 0.4 (40%)
func AmericanToImplied(odds int) float64 {
	if odds == 0 {
		return 0
	}
	if odds > 0 {
		// Underdog: probability = 100 / (odds + 100)
		return 100.0 / (float64(odds) + 100.0)
	}
	// Favorite: probability = |odds| / (|odds| + 100)
	return math.Abs(float64(odds)) / (math.Abs(float64(odds)) + 100.0)
}

// RemoveVig removes the vig/juice from a two-way market using multiplicative
// (proportional) normalization. Returns true probabilities summing to 1.
func RemoveVig(impliedA, impliedB float64) (float64, float64) {
	if impliedA <= 0 || impliedB <= 0 {
		return 0, 0
	}
	total := impliedA + impliedB
	if total <= 0 {
		return 0, 0
	}
	return impliedA / total, impliedB / total
}

// RemoveVigPower removes vig using the power method, which accounts for the
// favorite-longshot bias: finds k such that p1^k + p2^k = 1, deflating
// longshot probabilities more than favorites.
func RemoveVigPower(impliedA, impliedB float64) (float64, float64) {
	if impliedA <= 0 || impliedB <= 0 {
		return 0, 0
	}
	sum := impliedA + impliedB
	if math.Abs(sum-1.0) < 1e-9 {
		return impliedA, impliedB
	}

	k := findPowerExponent(impliedA, impliedB)
	return math.Pow(impliedA, k), math.Pow(impliedB, k)
}

// findPowerExponent finds k such that p1^k + p2^k = 1 via bisection.
// For 0 < p < 1, higher k shrinks p^k, so overround markets (sum > 1) need
// k > 1 and underround markets need k < 1.
func findPowerExponent(p1, p2 float64) float64 {
	const (
		tolerance = 1e-9
		maxIters  = 100
	)

	low, high := 0.01, 10.0
	for i := 0; i < maxIters; i++ {
		mid := (low + high) / 2
		sum := math.Pow(p1, mid) + math.Pow(p2, mid)
		if math.Abs(sum-1.0) < tolerance {
			return mid
		}
		if sum > 1 {
			low = mid
		} else {
			high = mid
		}
	}
	return (low + high) / 2
}

// HomeProbFromMoneylines de-vigs a home/away closing moneyline pair into a
// fair home-win probability. ok is false when either quote is missing.
// negativeVig flags an underround pair (implied sum < 1, arbitrage-looking
// input) — the probability is still returned, but callers should count and
// surface these rows for audit.
func HomeProbFromMoneylines(homeOdds, awayOdds int) (p float64, ok bool, negativeVig bool) {
	if homeOdds == 0 || awayOdds == 0 {
		return 0, false, false
	}

	impliedHome := AmericanToImplied(homeOdds)
	impliedAway := AmericanToImplied(awayOdds)
	negativeVig = impliedHome+impliedAway < 1.0

	home, _ := RemoveVig(impliedHome, impliedAway)
	if home <= 0 || home >= 1 {
		return 0, false, negativeVig
	}
	return home, true, negativeVig
}
