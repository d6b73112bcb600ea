// Package market turns closing lines into a "book" probability: either by
// de-vigging real moneyline quotes, or by fitting a spread → home-win-rate
// baseline on the training partition when no quotes exist.
package market

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"nfl-edge-pipeline/internal/mathutil"
)

// ErrInsufficientData indicates fitting was attempted on zero usable rows
// (or, for the binned method, zero bins met the minimum count).
var ErrInsufficientData = errors.New("insufficient data")

// ErrNotFitted indicates Predict was called before Fit.
var ErrNotFitted = errors.New("baseline not fitted")

// Method selects the spread → probability mapping.
type Method string

const (
	MethodIsotonic Method = "isotonic"
	MethodBinned   Method = "binned"
	MethodLogistic Method = "logistic"
	MethodNormal   Method = "normal"
)

// Defaults for baseline fitting.
const (
	DefaultBins        = 10
	DefaultMinBinCount = 5

	// DefaultMarginSigma is the historical standard deviation of NFL margin
	// around the closing spread, used by the normal-margin method.
	DefaultMarginSigma = 13.45
)

// Config parameterizes baseline fitting.
type Config struct {
	Method      Method
	Bins        int
	MinBinCount int
	MarginSigma float64
}

// DefaultConfig returns the isotonic method with standard settings.
func DefaultConfig() Config {
	return Config{
		Method:      MethodIsotonic,
		Bins:        DefaultBins,
		MinBinCount: DefaultMinBinCount,
		MarginSigma: DefaultMarginSigma,
	}
}

// Sample is one training observation for the baseline.
type Sample struct {
	Spread  float64 // closing spread, home perspective (negative = home favored)
	HomeWin int     // 1 or 0
}

// Model is the fitted spread → probability mapping. Immutable after Fit.
// Internally the curve is fitted over x = -spread so that "more home-favored"
// maps to higher x and a monotone non-decreasing probability.
type Model struct {
	method Method

	xs, ys []float64 // control points (isotonic, binned)
	a, b   float64   // logistic intercept/slope over x
	sigma  float64   // normal-margin std dev

	spreadMin, spreadMax float64
	trainCount           int
	baseRate             float64
	meanSpread           float64
	fitted               bool
}

// Fit learns the baseline from training samples only. Rows with NaN spread
// are excluded; fitting on zero valid rows fails with ErrInsufficientData.
// The returned model never mutates after this call.
func Fit(samples []Sample, cfg Config) (*Model, error) {
	if cfg.Bins <= 0 {
		cfg.Bins = DefaultBins
	}
	if cfg.MinBinCount <= 0 {
		cfg.MinBinCount = DefaultMinBinCount
	}
	if cfg.MarginSigma <= 0 {
		cfg.MarginSigma = DefaultMarginSigma
	}
	if cfg.Method == "" {
		cfg.Method = MethodIsotonic
	}

	valid := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if math.IsNaN(s.Spread) {
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no rows with spread and outcome", ErrInsufficientData)
	}

	m := &Model{
		method:     cfg.Method,
		sigma:      cfg.MarginSigma,
		trainCount: len(valid),
		spreadMin:  valid[0].Spread,
		spreadMax:  valid[0].Spread,
	}

	var spreadSum, winSum float64
	for _, s := range valid {
		spreadSum += s.Spread
		winSum += float64(s.HomeWin)
		if s.Spread < m.spreadMin {
			m.spreadMin = s.Spread
		}
		if s.Spread > m.spreadMax {
			m.spreadMax = s.Spread
		}
	}
	m.meanSpread = spreadSum / float64(len(valid))
	m.baseRate = winSum / float64(len(valid))

	switch cfg.Method {
	case MethodIsotonic:
		points := make([]isoPoint, len(valid))
		for i, s := range valid {
			points[i] = isoPoint{x: -s.Spread, y: float64(s.HomeWin), w: 1}
		}
		m.xs, m.ys = isotonicFit(points)

	case MethodBinned:
		xs, ys, err := fitBinned(valid, cfg.Bins, cfg.MinBinCount)
		if err != nil {
			return nil, err
		}
		m.xs, m.ys = xs, ys

	case MethodLogistic:
		x := make([]float64, len(valid))
		y := make([]float64, len(valid))
		for i, s := range valid {
			x[i] = -s.Spread
			y[i] = float64(s.HomeWin)
		}
		m.a, m.b = mathutil.LogisticFit(x, y)

	case MethodNormal:
		// No free parameters beyond sigma; spread range still recorded for
		// extrapolation warnings.

	default:
		return nil, fmt.Errorf("unknown baseline method %q", cfg.Method)
	}

	m.fitted = true
	return m, nil
}

// fitBinned groups samples into equal-population spread bins and keeps each
// bin's empirical home-win rate. Bins below minCount are dropped as
// unreliable; dropping all of them is fatal.
func fitBinned(samples []Sample, bins, minCount int) (xs, ys []float64, err error) {
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return -sorted[i].Spread < -sorted[j].Spread })

	if bins > len(sorted) {
		bins = len(sorted)
	}
	size := len(sorted) / bins
	if size == 0 {
		size = 1
	}

	for i := 0; i < len(sorted); i += size {
		end := i + size
		if end > len(sorted) {
			end = len(sorted)
		}
		chunk := sorted[i:end]
		if len(chunk) < minCount {
			continue
		}
		var xSum, wins float64
		for _, s := range chunk {
			xSum += -s.Spread
			wins += float64(s.HomeWin)
		}
		xs = append(xs, xSum/float64(len(chunk)))
		ys = append(ys, wins/float64(len(chunk)))
	}

	if len(xs) == 0 {
		return nil, nil, fmt.Errorf("%w: no bin met minimum count %d", ErrInsufficientData, minCount)
	}

	// Empirical bin rates need not be monotone; enforce it with a PAV pass so
	// the binned method honors the same direction guarantee as isotonic.
	points := make([]isoPoint, len(xs))
	for i := range xs {
		points[i] = isoPoint{x: xs[i], y: ys[i], w: 1}
	}
	xs, ys = isotonicFit(points)
	return xs, ys, nil
}

// Method returns the fitting method tag.
func (m *Model) Method() Method { return m.method }

// TrainCount returns the number of rows the model was fitted on.
func (m *Model) TrainCount() int { return m.trainCount }

// BaseRate returns the training-set home-win rate.
func (m *Model) BaseRate() float64 { return m.baseRate }

// SpreadRange returns the [min, max] closing spread seen in training.
func (m *Model) SpreadRange() (float64, float64) { return m.spreadMin, m.spreadMax }

// PredictOne maps one closing spread to a home-win probability in [0, 1].
// outOfRange reports that the spread fell outside the training range and the
// boundary value was used; that is a recoverable condition the caller should
// count and surface, not an error.
func (m *Model) PredictOne(spread float64) (p float64, outOfRange bool, err error) {
	if m == nil || !m.fitted {
		return 0, false, ErrNotFitted
	}
	if math.IsNaN(spread) {
		return 0, false, fmt.Errorf("spread is NaN")
	}

	outOfRange = spread < m.spreadMin || spread > m.spreadMax
	clamped := mathutil.Clamp(spread, m.spreadMin, m.spreadMax)
	x := -clamped

	switch m.method {
	case MethodIsotonic, MethodBinned:
		p = interpolate(m.xs, m.ys, x)
	case MethodLogistic:
		p = mathutil.Logistic(m.a + m.b*x)
	case MethodNormal:
		// P(home margin > 0) when margin ~ N(-spread, sigma).
		p = mathutil.NormalCDF(x / m.sigma)
	}

	return mathutil.Clamp(p, 0, 1), outOfRange, nil
}

// Predict maps a slice of spreads to probabilities, returning the number of
// out-of-range spreads that were clipped to the training boundary.
func (m *Model) Predict(spreads []float64) ([]float64, int, error) {
	probs := make([]float64, len(spreads))
	clipped := 0
	for i, s := range spreads {
		p, oor, err := m.PredictOne(s)
		if err != nil {
			return nil, clipped, fmt.Errorf("spread %d: %w", i, err)
		}
		if oor {
			clipped++
		}
		probs[i] = p
	}
	return probs, clipped, nil
}
