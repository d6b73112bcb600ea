package mathutil

import (
	"math"
	"sort"
)

// NormalCDF calculates the cumulative distribution function of the standard normal distribution.
// P(Z <= z) where Z ~ N(0,1)
func NormalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// NormalInvCDF calculates the inverse CDF (quantile function) of the standard normal distribution.
// Returns z such that P(Z <= z) = p.
// Uses Peter Acklam's 3-region rational approximation (error < 1.5e-8).
func NormalInvCDF(p float64) float64 {
	if p <= 0 {
		return -10 // Clamp to reasonable minimum
	}
	if p >= 1 {
		return 10 // Clamp to reasonable maximum
	}
	if p == 0.5 {
		return 0
	}

	const (
		a1 = -3.969683028665376e+01
		a2 = 2.209460984245205e+02
		a3 = -2.759285104469687e+02
		a4 = 1.383577518672690e+02
		a5 = -3.066479806614716e+01
		a6 = 2.506628277459239e+00

		b1 = -5.447609879822406e+01
		b2 = 1.615858368580409e+02
		b3 = -1.556989798598866e+02
		b4 = 6.680131188771972e+01
		b5 = -1.328068155288572e+01

		c1 = -7.784894002430293e-03
		c2 = -3.223964580411365e-01
		c3 = -2.400758277161838e+00
		c4 = -2.549732539343734e+00
		c5 = 4.374664141464968e+00
		c6 = 2.938163982698783e+00

		d1 = 7.784695709041462e-03
		d2 = 3.224671290700398e-01
		d3 = 2.445134137142996e+00
		d4 = 3.754408661907416e+00

		pLow  = 0.02425
		pHigh = 1 - pLow
	)

	var q float64

	if p < pLow {
		// Rational approximation for lower region
		q = math.Sqrt(-2 * math.Log(p))
		return (((((c1*q+c2)*q+c3)*q+c4)*q+c5)*q + c6) /
			((((d1*q+d2)*q+d3)*q+d4)*q + 1)
	} else if p <= pHigh {
		// Rational approximation for central region
		q = p - 0.5
		r := q * q
		return (((((a1*r+a2)*r+a3)*r+a4)*r+a5)*r + a6) * q /
			(((((b1*r+b2)*r+b3)*r+b4)*r+b5)*r + 1)
	} else {
		// Rational approximation for upper region
		q = math.Sqrt(-2 * math.Log(1-p))
		return -(((((c1*q+c2)*q+c3)*q+c4)*q+c5)*q + c6) /
			((((d1*q+d2)*q+d3)*q+d4)*q + 1)
	}
}

// Logistic is the standard sigmoid 1 / (1 + e^-x).
func Logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Logit is the inverse sigmoid ln(p / (1-p)).
// p is clamped away from 0 and 1 so the result stays finite.
func Logit(p float64) float64 {
	p = Clamp(p, 1e-15, 1-1e-15)
	return math.Log(p / (1 - p))
}

// Clamp restricts x to the closed interval [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// LogLossEpsilon bounds probabilities away from 0 and 1 in LogLoss so a
// confident miss costs a large finite amount instead of +Inf.
const LogLossEpsilon = 1e-15

// LogLoss is the per-observation binary cross-entropy
// -(y*ln(p) + (1-y)*ln(1-p)) with p clamped to [eps, 1-eps].
func LogLoss(y float64, p float64) float64 {
	p = Clamp(p, LogLossEpsilon, 1-LogLossEpsilon)
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

// Mean returns the arithmetic mean of values, or NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Quantile returns the q-th quantile (0 <= q <= 1) of values using linear
// interpolation between order statistics. values is not modified.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// LogisticFit fits a univariate logistic regression y ~ sigmoid(a + b*x) by
// Newton-Raphson. y values must be 0 or 1. Returns (intercept, slope).
func LogisticFit(x []float64, y []float64) (float64, float64) {
	if len(x) == 0 || len(x) != len(y) {
		return 0, 0
	}

	a, b := 0.0, 0.0

	const (
		maxIters  = 50
		tolerance = 1e-10
		ridge     = 1e-9 // keeps the Hessian invertible on separable data
	)

	for iter := 0; iter < maxIters; iter++ {
		var g0, g1 float64
		var h00, h01, h11 float64

		for i := range x {
			p := Logistic(a + b*x[i])
			r := y[i] - p
			w := p * (1 - p)

			g0 += r
			g1 += r * x[i]
			h00 += w
			h01 += w * x[i]
			h11 += w * x[i] * x[i]
		}

		h00 += ridge
		h11 += ridge

		det := h00*h11 - h01*h01
		if math.Abs(det) < 1e-300 {
			break
		}

		// Newton step: delta = H^-1 * gradient
		da := (h11*g0 - h01*g1) / det
		db := (h00*g1 - h01*g0) / det

		a += da
		b += db

		if math.Abs(da) < tolerance && math.Abs(db) < tolerance {
			break
		}
	}

	return a, b
}
