package model

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"nfl-edge-pipeline/internal/mathutil"
)

// DefaultFolds is the default k for out-of-fold prediction generation.
const DefaultFolds = 5

// hyperparamGrid is the explicit, enumerable search space. Trials are drawn
// from these lists with a seeded RNG so a run is reproducible bit for bit.
var hyperparamGrid = struct {
	LearningRates []float64
	Epochs        []int
	L2s           []float64
}{
	LearningRates: []float64{0.03, 0.1, 0.3},
	Epochs:        []int{100, 300, 600},
	L2s:           []float64{0, 1e-4, 1e-3, 1e-2},
}

// SampleHyperparams draws n trial configurations from the grid using rng.
// The same seed always yields the same trial list.
func SampleHyperparams(rng *rand.Rand, n int) []Hyperparams {
	trials := make([]Hyperparams, n)
	for i := range trials {
		trials[i] = Hyperparams{
			LearningRate: hyperparamGrid.LearningRates[rng.Intn(len(hyperparamGrid.LearningRates))],
			Epochs:       hyperparamGrid.Epochs[rng.Intn(len(hyperparamGrid.Epochs))],
			L2:           hyperparamGrid.L2s[rng.Intn(len(hyperparamGrid.L2s))],
		}
	}
	return trials
}

// CrossValidateOOF produces an out-of-fold probability for every row: the
// rows are cut into k contiguous chronological folds and each fold is
// predicted by a model fitted on the other k-1 folds only. Returns the OOF
// predictions and their mean log loss.
//
// rows must already be confined to the training partition — the caller owns
// the outer temporal split.
func CrossValidateOOF(rows []Row, k int, hp Hyperparams) ([]float64, float64, error) {
	if k < 2 {
		return nil, 0, fmt.Errorf("need at least 2 folds, got %d", k)
	}
	if len(rows) < k {
		return nil, 0, fmt.Errorf("cannot cut %d rows into %d folds", len(rows), k)
	}
	for i := range rows {
		if !rows[i].HasLabel {
			return nil, 0, fmt.Errorf("row %s has no label; OOF requires resolved games", rows[i].GameID)
		}
	}

	oof := make([]float64, len(rows))
	foldSize := len(rows) / k

	for f := 0; f < k; f++ {
		lo := f * foldSize
		hi := lo + foldSize
		if f == k-1 {
			hi = len(rows)
		}

		var trainX [][]float64
		var trainY []float64
		for i := range rows {
			if i >= lo && i < hi {
				continue
			}
			trainX = append(trainX, rows[i].X)
			trainY = append(trainY, rows[i].Y)
		}

		clf := NewLogistic(hp)
		if err := clf.Fit(trainX, trainY); err != nil {
			return nil, 0, fmt.Errorf("fold %d: %w", f, err)
		}

		var holdX [][]float64
		for i := lo; i < hi; i++ {
			holdX = append(holdX, rows[i].X)
		}
		probs := clf.PredictProba(holdX)
		copy(oof[lo:hi], probs)
	}

	var lossSum float64
	for i := range rows {
		lossSum += mathutil.LogLoss(rows[i].Y, oof[i])
	}
	return oof, lossSum / float64(len(rows)), nil
}

// SearchResult is the outcome of a hyperparameter search.
type SearchResult struct {
	Best     Hyperparams
	BestLoss float64
	OOF      []float64 // OOF predictions under the winning trial
	Trials   int
}

// SearchHyperparams evaluates each trial by k-fold OOF log loss using a
// worker pool — trials are independent and pure given (rows, params), so
// they parallelize freely. The winner is the minimum cross-validated log
// loss with ties broken by first-seen trial index, which keeps the result
// deterministic regardless of worker scheduling.
func SearchHyperparams(rows []Row, k int, trials []Hyperparams, workers int) (SearchResult, error) {
	if len(trials) == 0 {
		return SearchResult{}, fmt.Errorf("no trials to evaluate")
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if workers > len(trials) {
		workers = len(trials)
	}

	type trialResult struct {
		idx  int
		loss float64
		oof  []float64
		err  error
	}

	jobs := make(chan int)
	results := make(chan trialResult, len(trials))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				oof, loss, err := CrossValidateOOF(rows, k, trials[idx])
				results <- trialResult{idx: idx, loss: loss, oof: oof, err: err}
			}
		}()
	}

	go func() {
		for i := range trials {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	bestIdx := -1
	var best trialResult
	for res := range results {
		if res.err != nil {
			return SearchResult{}, fmt.Errorf("trial %d: %w", res.idx, res.err)
		}
		if bestIdx == -1 || res.loss < best.loss || (res.loss == best.loss && res.idx < bestIdx) {
			bestIdx = res.idx
			best = res
		}
	}

	return SearchResult{
		Best:     trials[bestIdx],
		BestLoss: best.loss,
		OOF:      best.oof,
		Trials:   len(trials),
	}, nil
}
