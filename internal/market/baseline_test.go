package market

import (
	"errors"
	"math"
	"testing"
)

// trainingSamples builds a slate where more-negative spreads win more often.
func trainingSamples() []Sample {
	var samples []Sample
	add := func(spread float64, wins, losses int) {
		for i := 0; i < wins; i++ {
			samples = append(samples, Sample{Spread: spread, HomeWin: 1})
		}
		for i := 0; i < losses; i++ {
			samples = append(samples, Sample{Spread: spread, HomeWin: 0})
		}
	}
	add(-10.5, 16, 4) // 0.80
	add(-7.0, 14, 6)  // 0.70
	add(-3.5, 13, 7)  // 0.65 — Scenario B neighborhood
	add(-1.0, 11, 9)  // 0.55
	add(1.0, 9, 11)   // 0.45
	add(3.5, 7, 13)   // 0.35
	add(7.0, 5, 15)   // 0.25
	return samples
}

func TestIsotonicMonotoneDirection(t *testing.T) {
	m, err := Fit(trainingSamples(), DefaultConfig())
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	// More-negative spread (home more favored) must never predict lower
	// probability than a less-negative spread.
	spreads := []float64{-10.5, -7, -3.5, -1, 1, 3.5, 7}
	prev := math.Inf(1)
	for _, s := range spreads {
		p, _, err := m.PredictOne(s)
		if err != nil {
			t.Fatalf("PredictOne(%v) failed: %v", s, err)
		}
		if p > prev+1e-12 {
			t.Errorf("monotonicity violated: predict(%v) = %.4f > previous %.4f", s, p, prev)
		}
		if p < 0 || p > 1 {
			t.Errorf("probability out of [0,1]: %v", p)
		}
		prev = p
	}
}

func TestIsotonicRecoversEmpiricalRate(t *testing.T) {
	m, err := Fit(trainingSamples(), DefaultConfig())
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	// Spread -3.5 has empirical rate 0.65 and sits between monotone
	// neighbors, so isotonic should hold it (within pooling resolution).
	p, oor, err := m.PredictOne(-3.5)
	if err != nil {
		t.Fatalf("PredictOne failed: %v", err)
	}
	if oor {
		t.Error("spread -3.5 is inside the training range")
	}
	if math.Abs(p-0.65) > 0.05 {
		t.Errorf("predict(-3.5) = %.4f, want ≈0.65", p)
	}
}

func TestOutOfRangeClipsFlat(t *testing.T) {
	m, err := Fit(trainingSamples(), DefaultConfig())
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	pBoundary, _, _ := m.PredictOne(-10.5)
	pBeyond, oor, err := m.PredictOne(-24)
	if err != nil {
		t.Fatalf("PredictOne failed: %v", err)
	}
	if !oor {
		t.Error("spread -24 should be flagged out of range")
	}
	if pBeyond != pBoundary {
		t.Errorf("extrapolation should be flat: got %.4f at boundary, %.4f beyond", pBoundary, pBeyond)
	}

	probs, clipped, err := m.Predict([]float64{-24, 0, 30})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if clipped != 2 {
		t.Errorf("clipped count = %d, want 2", clipped)
	}
	if len(probs) != 3 {
		t.Errorf("got %d probs, want 3", len(probs))
	}
}

func TestPredictBeforeFit(t *testing.T) {
	var m *Model
	if _, _, err := m.PredictOne(-3); !errors.Is(err, ErrNotFitted) {
		t.Errorf("expected ErrNotFitted, got %v", err)
	}
}

func TestFitExcludesNaNAndFailsOnEmpty(t *testing.T) {
	samples := []Sample{
		{Spread: math.NaN(), HomeWin: 1},
		{Spread: math.NaN(), HomeWin: 0},
	}
	_, err := Fit(samples, DefaultConfig())
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("all-NaN fit should be insufficient data, got %v", err)
	}

	_, err = Fit(nil, DefaultConfig())
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("empty fit should be insufficient data, got %v", err)
	}
}

func TestBinnedMethod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = MethodBinned
	cfg.Bins = 5

	m, err := Fit(trainingSamples(), cfg)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	pFav, _, _ := m.PredictOne(-10.5)
	pDog, _, _ := m.PredictOne(7)
	if pFav <= pDog {
		t.Errorf("favored home should have higher prob: %.4f vs %.4f", pFav, pDog)
	}
}

func TestBinnedMinCountFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = MethodBinned
	cfg.Bins = 10
	cfg.MinBinCount = 50

	_, err := Fit(trainingSamples()[:20], cfg)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("no qualifying bins should be insufficient data, got %v", err)
	}
}

func TestLogisticMethod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = MethodLogistic

	m, err := Fit(trainingSamples(), cfg)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	pFav, _, _ := m.PredictOne(-7)
	pPick, _, _ := m.PredictOne(0)
	pDog, _, _ := m.PredictOne(7)
	if !(pFav > pPick && pPick > pDog) {
		t.Errorf("logistic curve not decreasing in spread: %.4f / %.4f / %.4f", pFav, pPick, pDog)
	}
}

func TestNormalMethod(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = MethodNormal

	m, err := Fit(trainingSamples(), cfg)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	// margin ~ N(3.5, 13.45) for spread -3.5: P(margin > 0) ≈ Φ(3.5/13.45)
	p, _, _ := m.PredictOne(-3.5)
	want := 0.6024
	if math.Abs(p-want) > 0.005 {
		t.Errorf("normal predict(-3.5) = %.4f, want ≈%.4f", p, want)
	}
}

func TestModelMetadata(t *testing.T) {
	m, err := Fit(trainingSamples(), DefaultConfig())
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if m.Method() != MethodIsotonic {
		t.Errorf("method = %s, want isotonic", m.Method())
	}
	if m.TrainCount() != 140 {
		t.Errorf("train count = %d, want 140", m.TrainCount())
	}
	lo, hi := m.SpreadRange()
	if lo != -10.5 || hi != 7 {
		t.Errorf("spread range = [%v, %v], want [-10.5, 7]", lo, hi)
	}
	if math.Abs(m.BaseRate()-75.0/140.0) > 1e-9 {
		t.Errorf("base rate = %v", m.BaseRate())
	}
}
