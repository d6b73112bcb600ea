package model

import (
	"math/rand"
	"testing"
)

func TestSampleHyperparamsDeterministic(t *testing.T) {
	a := SampleHyperparams(rand.New(rand.NewSource(42)), 10)
	b := SampleHyperparams(rand.New(rand.NewSource(42)), 10)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("trial %d differs across identical seeds: %+v vs %+v", i, a[i], b[i])
		}
	}

	c := SampleHyperparams(rand.New(rand.NewSource(7)), 10)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical trial lists")
	}
}

func TestCrossValidateOOFCoversEveryRow(t *testing.T) {
	rows := separableRows(50)

	oof, loss, err := CrossValidateOOF(rows, DefaultFolds, DefaultHyperparams())
	if err != nil {
		t.Fatalf("CrossValidateOOF failed: %v", err)
	}
	if len(oof) != len(rows) {
		t.Fatalf("got %d OOF predictions for %d rows", len(oof), len(rows))
	}
	for i, p := range oof {
		if p < 0 || p > 1 {
			t.Errorf("row %d: OOF prob %v out of range", i, p)
		}
	}
	// Separable data: even out-of-fold, the learner should beat coin-flip loss.
	if loss >= 0.693 {
		t.Errorf("OOF log loss = %.4f, expected below 0.693", loss)
	}
}

func TestCrossValidateOOFRejectsUnlabeled(t *testing.T) {
	rows := separableRows(10)
	rows[3].HasLabel = false

	if _, _, err := CrossValidateOOF(rows, 2, DefaultHyperparams()); err == nil {
		t.Error("unlabeled row should be rejected")
	}
}

func TestCrossValidateOOFFoldBounds(t *testing.T) {
	rows := separableRows(10)

	if _, _, err := CrossValidateOOF(rows, 1, DefaultHyperparams()); err == nil {
		t.Error("k=1 should be rejected")
	}
	if _, _, err := CrossValidateOOF(rows[:3], 5, DefaultHyperparams()); err == nil {
		t.Error("more folds than rows should be rejected")
	}
}

func TestSearchHyperparamsDeterministic(t *testing.T) {
	rows := separableRows(40)
	trials := SampleHyperparams(rand.New(rand.NewSource(1)), 6)

	first, err := SearchHyperparams(rows, 4, trials, 3)
	if err != nil {
		t.Fatalf("SearchHyperparams failed: %v", err)
	}
	second, err := SearchHyperparams(rows, 4, trials, 1)
	if err != nil {
		t.Fatalf("SearchHyperparams failed: %v", err)
	}

	if first.Best != second.Best {
		t.Errorf("worker count changed the winner: %+v vs %+v", first.Best, second.Best)
	}
	if first.BestLoss != second.BestLoss {
		t.Errorf("worker count changed the loss: %v vs %v", first.BestLoss, second.BestLoss)
	}
	if first.Trials != 6 {
		t.Errorf("trials = %d, want 6", first.Trials)
	}
	if len(first.OOF) != len(rows) {
		t.Errorf("winner OOF length = %d, want %d", len(first.OOF), len(rows))
	}
}

func TestSearchHyperparamsEmptyTrials(t *testing.T) {
	if _, err := SearchHyperparams(separableRows(10), 2, nil, 1); err == nil {
		t.Error("empty trial list should fail")
	}
}
