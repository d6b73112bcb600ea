package edge

import (
	"fmt"
	"math"
	"sort"

	"nfl-edge-pipeline/internal/mathutil"
)

// DefaultLiftBins is the default number of abs-edge quantile buckets.
const DefaultLiftBins = 10

// Calibration slope bounds; outside them a probability source is flagged.
const (
	calibSlopeLow  = 0.8
	calibSlopeHigh = 1.2
)

// BucketStats summarizes one group of edge records.
type BucketStats struct {
	Label string
	Count int

	MeanAbsEdge   float64
	MeanLossDelta float64
	ModelLogLoss  float64
	BookLogLoss   float64
	ModelBrier    float64
	BookBrier     float64

	// 95% normal-approximation interval around MeanLossDelta. Collapses to
	// the mean itself for buckets of fewer than two records.
	LossDeltaLo float64
	LossDeltaHi float64
}

// Calibration holds slope/intercept of a logistic regression of outcome on
// logit(probability). Ideal: slope 1, intercept 0.
type Calibration struct {
	Slope         float64
	Intercept     float64
	Miscalibrated bool // slope outside [0.8, 1.2]
}

// GainPoint is one step of the cumulative-gain curve over records sorted by
// descending abs edge.
type GainPoint struct {
	Rank          int     // 1-based number of games trusted so far
	AbsEdge       float64 // abs edge at this rank
	CumLossDelta  float64
	MeanLossDelta float64 // CumLossDelta / Rank
}

// Report is the full lift evaluation.
type Report struct {
	ByDecile    []BucketStats
	BySeason    []BucketStats
	ByThreshold []BucketStats

	// Abs-edge distribution landmarks, useful for picking τ thresholds.
	AbsEdgeMedian float64
	AbsEdgeP90    float64

	ModelCalibration Calibration
	BookCalibration  Calibration

	Gain []GainPoint
}

// Aggregate buckets records by abs-edge quantile, season, and τ threshold,
// and computes overall calibration and the cumulative-gain curve.
// thresholds must match the set used by Label (it indexes OffFlags).
func Aggregate(records []Record, nBins int, thresholds []float64) (Report, error) {
	if len(records) == 0 {
		return Report{}, fmt.Errorf("no edge records to aggregate")
	}
	if nBins <= 0 {
		nBins = DefaultLiftBins
	}
	if thresholds == nil {
		thresholds = DefaultThresholds
	}

	var report Report

	// Equal-population abs-edge buckets, D1 (lowest) … Dn (highest).
	byEdge := make([]Record, len(records))
	copy(byEdge, records)
	sort.SliceStable(byEdge, func(i, j int) bool { return byEdge[i].AbsEdge < byEdge[j].AbsEdge })

	bins := nBins
	if bins > len(byEdge) {
		bins = len(byEdge)
	}
	size := len(byEdge) / bins
	for b := 0; b < bins; b++ {
		lo := b * size
		hi := lo + size
		if b == bins-1 {
			hi = len(byEdge)
		}
		report.ByDecile = append(report.ByDecile, summarize(fmt.Sprintf("D%d", b+1), byEdge[lo:hi]))
	}

	// By season, ascending.
	bySeason := make(map[int][]Record)
	for _, r := range records {
		bySeason[r.Season] = append(bySeason[r.Season], r)
	}
	seasons := make([]int, 0, len(bySeason))
	for s := range bySeason {
		seasons = append(seasons, s)
	}
	sort.Ints(seasons)
	for _, s := range seasons {
		report.BySeason = append(report.BySeason, summarize(fmt.Sprintf("%d", s), bySeason[s]))
	}

	// By τ threshold: only games flagged at that τ.
	for t, tau := range thresholds {
		var flagged []Record
		for _, r := range records {
			if t < len(r.OffFlags) && r.OffFlags[t] {
				flagged = append(flagged, r)
			}
		}
		report.ByThreshold = append(report.ByThreshold, summarize(fmt.Sprintf("tau=%.2f", tau), flagged))
	}

	absEdges := make([]float64, len(records))
	for i, r := range records {
		absEdges[i] = r.AbsEdge
	}
	report.AbsEdgeMedian = mathutil.Quantile(absEdges, 0.5)
	report.AbsEdgeP90 = mathutil.Quantile(absEdges, 0.9)

	report.ModelCalibration = calibrate(records, func(r Record) float64 { return r.ProbModelOOF })
	report.BookCalibration = calibrate(records, func(r Record) float64 { return r.ProbBook })
	report.Gain = gainCurve(byEdge)

	return report, nil
}

func summarize(label string, records []Record) BucketStats {
	stats := BucketStats{Label: label, Count: len(records)}
	if len(records) == 0 {
		return stats
	}

	var absEdge, lossDelta, modelLoss, bookLoss, modelBrier, bookBrier float64
	for _, r := range records {
		y := float64(r.HomeWin)
		absEdge += r.AbsEdge
		lossDelta += r.LossDelta
		modelLoss += r.LossModel
		bookLoss += r.LossBook
		modelBrier += (r.ProbModelOOF - y) * (r.ProbModelOOF - y)
		bookBrier += (r.ProbBook - y) * (r.ProbBook - y)
	}

	n := float64(len(records))
	stats.MeanAbsEdge = absEdge / n
	stats.MeanLossDelta = lossDelta / n
	stats.ModelLogLoss = modelLoss / n
	stats.BookLogLoss = bookLoss / n
	stats.ModelBrier = modelBrier / n
	stats.BookBrier = bookBrier / n

	stats.LossDeltaLo = stats.MeanLossDelta
	stats.LossDeltaHi = stats.MeanLossDelta
	if len(records) > 1 {
		var sq float64
		for _, r := range records {
			dev := r.LossDelta - stats.MeanLossDelta
			sq += dev * dev
		}
		se := math.Sqrt(sq/(n-1)) / math.Sqrt(n)
		z := mathutil.NormalInvCDF(0.975)
		stats.LossDeltaLo = stats.MeanLossDelta - z*se
		stats.LossDeltaHi = stats.MeanLossDelta + z*se
	}
	return stats
}

// calibrate fits outcome ~ sigmoid(a + b*logit(p)). A perfectly calibrated
// source recovers slope 1, intercept 0.
func calibrate(records []Record, prob func(Record) float64) Calibration {
	x := make([]float64, len(records))
	y := make([]float64, len(records))
	for i, r := range records {
		x[i] = mathutil.Logit(prob(r))
		y[i] = float64(r.HomeWin)
	}

	a, b := mathutil.LogisticFit(x, y)
	return Calibration{
		Slope:         b,
		Intercept:     a,
		Miscalibrated: b < calibSlopeLow || b > calibSlopeHigh,
	}
}

// gainCurve walks records from highest abs edge down, accumulating loss
// delta. The mean column shows where trusting ever-smaller edges stops
// paying.
func gainCurve(sortedAsc []Record) []GainPoint {
	points := make([]GainPoint, 0, len(sortedAsc))
	cum := 0.0
	for i := len(sortedAsc) - 1; i >= 0; i-- {
		r := sortedAsc[i]
		cum += r.LossDelta
		rank := len(sortedAsc) - i
		points = append(points, GainPoint{
			Rank:          rank,
			AbsEdge:       r.AbsEdge,
			CumLossDelta:  cum,
			MeanLossDelta: cum / float64(rank),
		})
	}
	return points
}
