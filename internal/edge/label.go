// Package edge measures where the model disagrees with the market and
// whether that disagreement paid.
//
// Semantics: edge = prob_model_oof - prob_book (model-vs-book disagreement).
// The outcome-vs-book quantity home_win - prob_book is a different thing
// (calibration error) and is carried in the separate CalibrationResidual
// field — the two are never conflated under one name.
package edge

import (
	"fmt"
	"math"

	"nfl-edge-pipeline/internal/mathutil"
)

// DefaultThresholds is the standard τ set for off-flags.
var DefaultThresholds = []float64{0.03, 0.05, 0.07}

// Input is one game eligible for edge labeling. ProbModelOOF must be an
// out-of-fold prediction: a probability from a model that trained on this
// row would silently bias every downstream statistic, so the pipeline only
// feeds OOF/test-partition predictions here.
type Input struct {
	GameID       string
	Season       int
	Week         int
	HomeWin      int
	ProbBook     float64
	ProbModelOOF float64
}

// Record is the labeled result for one game.
type Record struct {
	GameID  string
	Season  int
	Week    int
	HomeWin int

	ProbBook     float64
	ProbModelOOF float64

	Edge    float64 // model - book
	AbsEdge float64
	Side    int // sign of edge: +1 model above book, -1 below, 0 equal

	// OffFlags[i] corresponds to the i-th τ threshold passed to Label:
	// true iff AbsEdge is strictly greater than τ.
	OffFlags []bool

	LossBook  float64
	LossModel float64
	LossDelta float64 // book - model; positive = model better on this game

	CalibrationResidual float64 // home_win - prob_book
}

// Label computes edge records for games with both probabilities available.
// thresholds defaults to DefaultThresholds when nil.
func Label(inputs []Input, thresholds []float64) ([]Record, error) {
	if thresholds == nil {
		thresholds = DefaultThresholds
	}

	records := make([]Record, 0, len(inputs))
	for i, in := range inputs {
		if in.HomeWin != 0 && in.HomeWin != 1 {
			return nil, fmt.Errorf("input %d (%s): home_win must be 0 or 1, got %d", i, in.GameID, in.HomeWin)
		}
		if in.ProbBook < 0 || in.ProbBook > 1 || math.IsNaN(in.ProbBook) {
			return nil, fmt.Errorf("input %d (%s): book prob %v out of [0,1]", i, in.GameID, in.ProbBook)
		}
		if in.ProbModelOOF < 0 || in.ProbModelOOF > 1 || math.IsNaN(in.ProbModelOOF) {
			return nil, fmt.Errorf("input %d (%s): model prob %v out of [0,1]", i, in.GameID, in.ProbModelOOF)
		}

		y := float64(in.HomeWin)
		e := in.ProbModelOOF - in.ProbBook

		rec := Record{
			GameID:              in.GameID,
			Season:              in.Season,
			Week:                in.Week,
			HomeWin:             in.HomeWin,
			ProbBook:            in.ProbBook,
			ProbModelOOF:        in.ProbModelOOF,
			Edge:                e,
			AbsEdge:             math.Abs(e),
			Side:                sign(e),
			OffFlags:            make([]bool, len(thresholds)),
			LossBook:            mathutil.LogLoss(y, in.ProbBook),
			LossModel:           mathutil.LogLoss(y, in.ProbModelOOF),
			CalibrationResidual: y - in.ProbBook,
		}
		rec.LossDelta = rec.LossBook - rec.LossModel

		for t, tau := range thresholds {
			rec.OffFlags[t] = rec.AbsEdge > tau
		}

		records = append(records, rec)
	}

	return records, nil
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
