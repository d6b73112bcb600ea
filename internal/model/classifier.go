// Package model wraps the binary probability classifier behind a narrow
// black-box interface: fit on (features, label) pairs, emit probabilities in
// [0, 1], and generate out-of-fold predictions. The pipeline's correctness
// depends only on that contract, not on which learner sits behind it; the
// bundled learner is a regularized logistic model trained by gradient
// descent.
package model

import (
	"fmt"
	"math"

	"nfl-edge-pipeline/internal/features"
	"nfl-edge-pipeline/internal/mathutil"
	"nfl-edge-pipeline/internal/schema"
)

// Neutral imputation constants for missing runtime features. Documented
// approximation: unknown rest defaults to a normal week, unknown margins to
// even, unknown lines to pick'em at the league-average total.
const (
	NeutralRest   = 7.0
	NeutralMargin = 0.0
	NeutralSpread = 0.0
	NeutralTotal  = 44.5
)

// FeatureNames lists the model input columns in matrix order.
var FeatureNames = []string{
	"elo_diff",
	"rest_home",
	"rest_away",
	"first_game_home",
	"first_game_away",
	"prev_margin_home",
	"prev_margin_away",
	"spread_close",
	"total_close",
	"week",
}

// Row is one model-ready observation.
type Row struct {
	GameID   string
	X        []float64
	Y        float64
	HasLabel bool
}

// Classifier is the black-box boundary. Implementations must return
// probabilities in [0, 1], one per input row.
type Classifier interface {
	Fit(X [][]float64, y []float64) error
	PredictProba(X [][]float64) []float64
}

// BuildMatrix joins game-owned columns (season, week, spread, total) back
// onto the context table and produces model rows with neutral imputation for
// missing values. games and ctx must be index-aligned 1:1 (the assembly
// stage guarantees and asserts this). Returns the rows and the count of
// imputed cells so callers can surface it.
func BuildMatrix(games []schema.Game, ctx []schema.ContextRow) ([]Row, int, error) {
	if len(games) != len(ctx) {
		return nil, 0, fmt.Errorf("%w: %d games vs %d context rows", schema.ErrSchemaViolation, len(games), len(ctx))
	}

	rows := make([]Row, 0, len(games))
	imputed := 0

	for i := range games {
		g := &games[i]
		c := &ctx[i]
		if g.GameID != c.GameID {
			return nil, 0, fmt.Errorf("%w: row %d keys differ (%s vs %s)", schema.ErrSchemaViolation, i, g.GameID, c.GameID)
		}

		impute := func(v, neutral float64) float64 {
			if math.IsNaN(v) {
				imputed++
				return neutral
			}
			return v
		}
		imputePtr := func(v *float64, neutral float64) float64 {
			if v == nil {
				imputed++
				return neutral
			}
			return *v
		}

		x := []float64{
			c.EloDiff,
			impute(features.CapRest(c.RestHome, features.DefaultRestCap), NeutralRest),
			impute(features.CapRest(c.RestAway, features.DefaultRestCap), NeutralRest),
			boolFeature(c.FirstGameHome),
			boolFeature(c.FirstGameAway),
			impute(c.PrevMarginHome, NeutralMargin),
			impute(c.PrevMarginAway, NeutralMargin),
			imputePtr(g.SpreadClose, NeutralSpread),
			imputePtr(g.TotalClose, NeutralTotal),
			float64(g.Week),
		}

		row := Row{GameID: g.GameID, X: x}
		if win, ok := g.HomeWin(); ok {
			row.Y = float64(win)
			row.HasLabel = true
		}
		rows = append(rows, row)
	}

	return rows, imputed, nil
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Hyperparams are the tunable knobs of the bundled logistic learner.
type Hyperparams struct {
	LearningRate float64
	Epochs       int
	L2           float64
}

// DefaultHyperparams returns a sane untuned starting point.
func DefaultHyperparams() Hyperparams {
	return Hyperparams{LearningRate: 0.1, Epochs: 300, L2: 1e-3}
}

// Logistic is a standardized-input logistic regression trained with
// full-batch gradient descent and L2 regularization.
type Logistic struct {
	hp Hyperparams

	weights []float64
	bias    float64
	means   []float64
	scales  []float64
	fitted  bool
}

// NewLogistic creates an unfitted learner with the given hyperparameters.
func NewLogistic(hp Hyperparams) *Logistic {
	return &Logistic{hp: hp}
}

// Fit trains on the given matrix. y values must be 0 or 1.
func (l *Logistic) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training matrix")
	}
	if len(X) != len(y) {
		return fmt.Errorf("matrix has %d rows but %d labels", len(X), len(y))
	}
	if l.hp.LearningRate <= 0 || l.hp.Epochs <= 0 {
		return fmt.Errorf("invalid hyperparams: %+v", l.hp)
	}

	d := len(X[0])
	l.means = make([]float64, d)
	l.scales = make([]float64, d)
	l.weights = make([]float64, d)
	l.bias = 0

	// Standardize features so one learning rate serves all columns.
	for j := 0; j < d; j++ {
		var sum float64
		for i := range X {
			sum += X[i][j]
		}
		mean := sum / float64(len(X))
		var sq float64
		for i := range X {
			dev := X[i][j] - mean
			sq += dev * dev
		}
		scale := math.Sqrt(sq / float64(len(X)))
		if scale < 1e-12 {
			scale = 1
		}
		l.means[j] = mean
		l.scales[j] = scale
	}

	n := float64(len(X))
	grad := make([]float64, d)

	for epoch := 0; epoch < l.hp.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0

		for i := range X {
			p := l.rawPredict(X[i])
			r := p - y[i]
			for j := 0; j < d; j++ {
				grad[j] += r * l.standardize(X[i][j], j)
			}
			gradBias += r
		}

		for j := 0; j < d; j++ {
			l.weights[j] -= l.hp.LearningRate * (grad[j]/n + l.hp.L2*l.weights[j])
		}
		l.bias -= l.hp.LearningRate * gradBias / n
	}

	l.fitted = true
	return nil
}

// PredictProba returns one probability per row. Calling before Fit yields
// the uninformative 0.5 for every row.
func (l *Logistic) PredictProba(X [][]float64) []float64 {
	probs := make([]float64, len(X))
	for i := range X {
		if !l.fitted {
			probs[i] = 0.5
			continue
		}
		probs[i] = l.rawPredict(X[i])
	}
	return probs
}

func (l *Logistic) rawPredict(x []float64) float64 {
	z := l.bias
	for j := range l.weights {
		z += l.weights[j] * l.standardize(x[j], j)
	}
	return mathutil.Logistic(z)
}

func (l *Logistic) standardize(v float64, j int) float64 {
	return (v - l.means[j]) / l.scales[j]
}
