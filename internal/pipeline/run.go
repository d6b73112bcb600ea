// Package pipeline wires the stages together: ratings and lag features are
// derived causally over the full slate, the slate is split chronologically,
// the baseline and classifier are fitted on the train partition only, and
// edge records are labeled from held-out predictions exclusively.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"nfl-edge-pipeline/internal/config"
	"nfl-edge-pipeline/internal/edge"
	"nfl-edge-pipeline/internal/elo"
	"nfl-edge-pipeline/internal/features"
	"nfl-edge-pipeline/internal/market"
	"nfl-edge-pipeline/internal/mathutil"
	"nfl-edge-pipeline/internal/model"
	"nfl-edge-pipeline/internal/schema"
	"nfl-edge-pipeline/internal/split"
	"nfl-edge-pipeline/internal/store"
)

// Pipeline runs the full research flow. db may be nil, in which case nothing
// is persisted and Summary.RunID stays empty.
type Pipeline struct {
	cfg config.Config
	db  *store.DB
}

// Summary is the outcome of one run, including the warning counters that the
// stages accumulate instead of failing on.
type Summary struct {
	RunID string

	Games     int
	TrainRows int
	TestRows  int
	Folds     int

	BestParams model.Hyperparams
	BestCVLoss float64

	MeanLossModel float64 // mean held-out log loss of the model
	MeanLossBook  float64 // mean log loss of the book over the same games

	ImputedCells    int
	ClippedSpreads  int
	NegativeVigRows int
	BookFromQuotes  int // rows priced by de-vigged moneylines
	BookFromCurve   int // rows priced by the fitted spread baseline

	Records []edge.Record
	Report  edge.Report

	Context []schema.ContextRow
}

// New creates a pipeline from a validated config.
func New(cfg config.Config, db *store.DB) *Pipeline {
	return &Pipeline{cfg: cfg, db: db}
}

// Run executes every stage over the given slate. games need not be sorted;
// they are validated and sorted here, and the sorted order flows through all
// downstream stages.
func (p *Pipeline) Run(ctx context.Context, games []schema.Game) (*Summary, error) {
	if err := config.Validate(p.cfg); err != nil {
		return nil, err
	}
	if err := schema.ValidateGames(games); err != nil {
		return nil, err
	}

	sorted := make([]schema.Game, len(games))
	copy(sorted, games)
	schema.SortGames(sorted)

	sum := &Summary{Games: len(sorted)}

	ctxRows, err := p.buildContext(sorted)
	if err != nil {
		return nil, err
	}
	sum.Context = ctxRows

	rows, imputed, err := model.BuildMatrix(sorted, ctxRows)
	if err != nil {
		return nil, err
	}
	sum.ImputedCells = imputed
	slog.Info("context table assembled", "games", len(sorted), "imputed_cells", imputed)

	folds, err := split.Split(sorted, split.Config{
		Policy:        split.Policy(p.cfg.SplitPolicy),
		TrainFraction: p.cfg.TrainFraction,
		WindowWeeks:   p.cfg.WindowWeeks,
	})
	if err != nil {
		return nil, err
	}
	sum.Folds = len(folds)

	rng := rand.New(rand.NewSource(p.cfg.Seed))
	trials := model.SampleHyperparams(rng, p.cfg.Trials)

	var inputs []edge.Input
	for f, fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		foldInputs, err := p.evaluateFold(sorted, rows, fold, trials, sum)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", f, err)
		}
		inputs = append(inputs, foldInputs...)
		sum.TrainRows += len(fold.Train)
		sum.TestRows += len(fold.Test)
	}

	records, err := edge.Label(inputs, p.cfg.EdgeThresholds)
	if err != nil {
		return nil, err
	}
	sum.Records = records

	modelLosses := make([]float64, len(records))
	bookLosses := make([]float64, len(records))
	for i, r := range records {
		modelLosses[i] = r.LossModel
		bookLosses[i] = r.LossBook
	}
	sum.MeanLossModel = mathutil.Mean(modelLosses)
	sum.MeanLossBook = mathutil.Mean(bookLosses)

	report, err := edge.Aggregate(records, p.cfg.LiftBins, p.cfg.EdgeThresholds)
	if err != nil {
		return nil, err
	}
	sum.Report = report

	slog.Info("run complete",
		"folds", sum.Folds,
		"edge_records", len(records),
		"best_cv_loss", sum.BestCVLoss,
		"imputed_cells", sum.ImputedCells,
		"clipped_spreads", sum.ClippedSpreads,
		"negative_vig_rows", sum.NegativeVigRows,
	)

	if p.db != nil {
		if err := p.persist(sorted, sum); err != nil {
			return nil, err
		}
	}

	return sum, nil
}

// buildContext derives Elo and lag features over the sorted slate and joins
// them into the context table. The two derivations read the same input and
// share no state, so they run concurrently.
func (p *Pipeline) buildContext(sorted []schema.Game) ([]schema.ContextRow, error) {
	var (
		wg      sync.WaitGroup
		eloRes  elo.Result
		eloErr  error
		lagRows []features.LagRow
		lagErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		eloRes, eloErr = elo.Run(sorted, elo.Config{K: p.cfg.EloK, HFA: p.cfg.EloHFA, Seed: p.cfg.EloSeed})
	}()
	go func() {
		defer wg.Done()
		lagRows, lagErr = features.BuildLags(sorted)
	}()
	wg.Wait()

	if eloErr != nil {
		return nil, eloErr
	}
	if lagErr != nil {
		return nil, lagErr
	}

	return features.Assemble(sorted, eloRes.PerGame, lagRows)
}

// evaluateFold searches hyperparameters over the fold's train rows, fits the
// winning model on all of them, and produces edge inputs for the test rows.
// The book probability prefers de-vigged moneylines; games without quotes
// fall back to the spread baseline fitted on the train partition only.
func (p *Pipeline) evaluateFold(sorted []schema.Game, rows []model.Row, fold split.Fold, trials []model.Hyperparams, sum *Summary) ([]edge.Input, error) {
	trainRows := make([]model.Row, 0, len(fold.Train))
	for _, i := range fold.Train {
		trainRows = append(trainRows, rows[i])
	}

	search, err := model.SearchHyperparams(trainRows, p.cfg.CVFolds, trials, 0)
	if err != nil {
		return nil, err
	}
	if sum.BestCVLoss == 0 || search.BestLoss < sum.BestCVLoss {
		sum.BestParams = search.Best
		sum.BestCVLoss = search.BestLoss
	}
	slog.Info("hyperparameter search done",
		"trials", search.Trials,
		"cv_loss", search.BestLoss,
		"learning_rate", search.Best.LearningRate,
		"epochs", search.Best.Epochs,
		"l2", search.Best.L2,
	)

	trainX := make([][]float64, len(trainRows))
	trainY := make([]float64, len(trainRows))
	for i, r := range trainRows {
		trainX[i] = r.X
		trainY[i] = r.Y
	}
	clf := model.NewLogistic(search.Best)
	if err := clf.Fit(trainX, trainY); err != nil {
		return nil, err
	}

	baseline, err := p.fitBaseline(sorted, fold.Train)
	if err != nil {
		return nil, err
	}

	testX := make([][]float64, len(fold.Test))
	for i, idx := range fold.Test {
		testX[i] = rows[idx].X
	}
	probs := clf.PredictProba(testX)

	inputs := make([]edge.Input, 0, len(fold.Test))
	for i, idx := range fold.Test {
		g := &sorted[idx]
		win, ok := g.HomeWin()
		if !ok {
			continue
		}

		book, ok := p.bookProb(g, baseline, sum)
		if !ok {
			continue
		}

		inputs = append(inputs, edge.Input{
			GameID:       g.GameID,
			Season:       g.Season,
			Week:         g.Week,
			HomeWin:      win,
			ProbBook:     book,
			ProbModelOOF: probs[i],
		})
	}
	return inputs, nil
}

func (p *Pipeline) fitBaseline(sorted []schema.Game, train []int) (*market.Model, error) {
	samples := make([]market.Sample, 0, len(train))
	for _, i := range train {
		g := &sorted[i]
		win, ok := g.HomeWin()
		if !ok || g.SpreadClose == nil {
			continue
		}
		samples = append(samples, market.Sample{Spread: *g.SpreadClose, HomeWin: win})
	}

	m, err := market.Fit(samples, market.Config{
		Method:      market.Method(p.cfg.BaselineMethod),
		Bins:        p.cfg.BaselineBins,
		MinBinCount: p.cfg.MinBinCount,
		MarginSigma: market.DefaultMarginSigma,
	})
	if err != nil {
		return nil, fmt.Errorf("fitting baseline: %w", err)
	}
	return m, nil
}

// bookProb resolves the market probability for one game, counting the
// recoverable conditions (negative vig, clipped spread) on the summary.
func (p *Pipeline) bookProb(g *schema.Game, baseline *market.Model, sum *Summary) (float64, bool) {
	if prob, ok, negVig := market.HomeProbFromMoneylines(g.MoneylineHome, g.MoneylineAway); ok {
		if negVig {
			sum.NegativeVigRows++
			slog.Warn("negative vig moneyline pair", "game_id", g.GameID, "ml_home", g.MoneylineHome, "ml_away", g.MoneylineAway)
		}
		sum.BookFromQuotes++
		return prob, true
	}

	if g.SpreadClose == nil {
		return 0, false
	}
	prob, outOfRange, err := baseline.PredictOne(*g.SpreadClose)
	if err != nil || math.IsNaN(prob) {
		return 0, false
	}
	if outOfRange {
		sum.ClippedSpreads++
		slog.Warn("spread outside training range, clipped", "game_id", g.GameID, "spread", *g.SpreadClose)
	}
	sum.BookFromCurve++
	return prob, true
}

func (p *Pipeline) persist(sorted []schema.Game, sum *Summary) error {
	runID, err := p.db.CreateRun(fmt.Sprintf("policy=%s method=%s", p.cfg.SplitPolicy, p.cfg.BaselineMethod))
	if err != nil {
		return err
	}
	sum.RunID = runID

	if err := p.db.SaveGames(sorted); err != nil {
		return err
	}
	if err := p.db.SaveContextRows(runID, sum.Context); err != nil {
		return err
	}
	if err := p.db.SaveEdgeRecords(runID, sum.Records); err != nil {
		return err
	}
	slog.Info("artifacts saved", "run_id", runID)
	return nil
}

// UpcomingScore is one unplayed game priced by the model and, when lines
// exist, by the market.
type UpcomingScore struct {
	GameID    string
	HomeTeam  string
	AwayTeam  string
	ProbModel float64
	ProbBook  float64
	HasBook   bool
	Edge      float64 // model - book, zero when no book price exists
}

// ScoreUpcoming fits on every completed game in the slate and prices the
// unplayed ones. Feature derivation still runs over the whole slate, so an
// upcoming game carries real ratings and rest days from its teams' history;
// missing lines are neutrally imputed by the matrix builder.
func (p *Pipeline) ScoreUpcoming(ctx context.Context, games []schema.Game) ([]UpcomingScore, error) {
	if err := config.Validate(p.cfg); err != nil {
		return nil, err
	}
	if err := schema.ValidateGames(games); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sorted := make([]schema.Game, len(games))
	copy(sorted, games)
	schema.SortGames(sorted)

	ctxRows, err := p.buildContext(sorted)
	if err != nil {
		return nil, err
	}
	rows, imputed, err := model.BuildMatrix(sorted, ctxRows)
	if err != nil {
		return nil, err
	}

	var trainIdx, upcomingIdx []int
	for i := range sorted {
		if sorted[i].Played() {
			trainIdx = append(trainIdx, i)
		} else {
			upcomingIdx = append(upcomingIdx, i)
		}
	}
	if len(upcomingIdx) == 0 {
		return nil, fmt.Errorf("no unplayed games in slate")
	}
	if len(trainIdx) == 0 {
		return nil, fmt.Errorf("no completed games to fit on")
	}

	trainX := make([][]float64, len(trainIdx))
	trainY := make([]float64, len(trainIdx))
	for i, idx := range trainIdx {
		trainX[i] = rows[idx].X
		trainY[i] = rows[idx].Y
	}

	rng := rand.New(rand.NewSource(p.cfg.Seed))
	trials := model.SampleHyperparams(rng, p.cfg.Trials)
	trainRows := make([]model.Row, 0, len(trainIdx))
	for _, idx := range trainIdx {
		trainRows = append(trainRows, rows[idx])
	}
	search, err := model.SearchHyperparams(trainRows, p.cfg.CVFolds, trials, 0)
	if err != nil {
		return nil, err
	}

	clf := model.NewLogistic(search.Best)
	if err := clf.Fit(trainX, trainY); err != nil {
		return nil, err
	}

	baseline, err := p.fitBaseline(sorted, trainIdx)
	if err != nil {
		return nil, err
	}

	upX := make([][]float64, len(upcomingIdx))
	for i, idx := range upcomingIdx {
		upX[i] = rows[idx].X
	}
	probs := clf.PredictProba(upX)

	var scratch Summary
	scores := make([]UpcomingScore, 0, len(upcomingIdx))
	for i, idx := range upcomingIdx {
		g := &sorted[idx]
		s := UpcomingScore{
			GameID:    g.GameID,
			HomeTeam:  g.HomeTeam,
			AwayTeam:  g.AwayTeam,
			ProbModel: probs[i],
		}
		if book, ok := p.bookProb(g, baseline, &scratch); ok {
			s.ProbBook = book
			s.HasBook = true
			s.Edge = s.ProbModel - book
		}
		scores = append(scores, s)
	}

	slog.Info("upcoming games scored",
		"fitted_on", len(trainIdx),
		"scored", len(scores),
		"imputed_cells", imputed,
		"cv_loss", search.BestLoss,
	)
	return scores, nil
}
