package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"nfl-edge-pipeline/internal/config"
	"nfl-edge-pipeline/internal/schema"
	"nfl-edge-pipeline/internal/store"
)

// slate builds a deterministic multi-week schedule where lower-numbered teams
// are stronger and usually win, with closing lines that roughly track the
// strength gap.
func slate(seasons, weeks int) []schema.Game {
	teams := []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"}
	start, _ := time.Parse(schema.DateLayout, "2022-09-04")

	var games []schema.Game
	id := 0
	for s := 0; s < seasons; s++ {
		for w := 1; w <= weeks; w++ {
			date := start.AddDate(s, 0, (w-1)*7)
			for pair := 0; pair+1 < len(teams); pair += 2 {
				home := teams[(pair+w)%len(teams)]
				away := teams[(pair+w+1)%len(teams)]

				strengthGap := float64(teamRank(teams, away) - teamRank(teams, home))
				homeScore := 21 + int(strengthGap)
				awayScore := 20
				spread := -strengthGap - 1
				total := 44.0

				games = append(games, schema.Game{
					GameID:      fmt.Sprintf("g%03d", id),
					Season:      2022 + s,
					Week:        w,
					Date:        date,
					HomeTeam:    home,
					AwayTeam:    away,
					HomeScore:   &homeScore,
					AwayScore:   &awayScore,
					SpreadClose: &spread,
					TotalClose:  &total,
				})
				id++
			}
		}
	}
	return games
}

func teamRank(teams []string, name string) int {
	for i, t := range teams {
		if t == name {
			return i
		}
	}
	return -1
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Trials = 3
	cfg.CVFolds = 2
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	games := slate(2, 8)
	p := New(testConfig(), nil)

	sum, err := p.Run(context.Background(), games)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sum.Folds != 1 {
		t.Errorf("fraction policy should produce 1 fold, got %d", sum.Folds)
	}
	if len(sum.Records) == 0 {
		t.Fatal("no edge records produced")
	}
	if len(sum.Records) != sum.TestRows {
		t.Errorf("got %d records for %d test rows", len(sum.Records), sum.TestRows)
	}
	if sum.TrainRows+sum.TestRows != sum.Games {
		t.Errorf("train %d + test %d != games %d", sum.TrainRows, sum.TestRows, sum.Games)
	}
	if len(sum.Context) != sum.Games {
		t.Errorf("context table has %d rows for %d games", len(sum.Context), sum.Games)
	}

	// Test records come strictly after the training cut.
	byID := make(map[string]schema.Game)
	for _, g := range games {
		byID[g.GameID] = g
	}
	trainCut := sum.TrainRows
	sorted := make([]schema.Game, len(games))
	copy(sorted, games)
	schema.SortGames(sorted)
	lastTrain := sorted[trainCut-1]
	for _, r := range sum.Records {
		g := byID[r.GameID]
		if g.Season < lastTrain.Season || (g.Season == lastTrain.Season && g.Week <= lastTrain.Week) {
			t.Errorf("record %s (s%d w%d) overlaps the training window", r.GameID, g.Season, g.Week)
		}
	}

	for _, r := range sum.Records {
		if r.ProbModelOOF < 0 || r.ProbModelOOF > 1 {
			t.Errorf("record %s model prob %v outside [0,1]", r.GameID, r.ProbModelOOF)
		}
		if math.Abs(r.Edge-(r.ProbModelOOF-r.ProbBook)) > 1e-12 {
			t.Errorf("record %s edge inconsistent", r.GameID)
		}
	}

	if len(sum.Report.ByDecile) == 0 {
		t.Error("report has no decile buckets")
	}
	if got := len(sum.Report.ByThreshold); got != 3 {
		t.Errorf("got %d threshold buckets, want 3", got)
	}
}

func TestRunDeterministic(t *testing.T) {
	games := slate(2, 6)

	run := func() *Summary {
		sum, err := New(testConfig(), nil).Run(context.Background(), games)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return sum
	}

	a, b := run(), run()
	if a.BestParams != b.BestParams {
		t.Errorf("best params differ: %+v vs %+v", a.BestParams, b.BestParams)
	}
	if len(a.Records) != len(b.Records) {
		t.Fatalf("record counts differ: %d vs %d", len(a.Records), len(b.Records))
	}
	for i := range a.Records {
		if a.Records[i].Edge != b.Records[i].Edge {
			t.Errorf("record %s edge differs between identical runs", a.Records[i].GameID)
		}
	}
}

func TestRunPersists(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "run.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	sum, err := New(testConfig(), db).Run(context.Background(), slate(2, 6))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.RunID == "" {
		t.Fatal("persisted run has no ID")
	}

	n, err := db.EdgeRecordCount(sum.RunID)
	if err != nil {
		t.Fatalf("EdgeRecordCount failed: %v", err)
	}
	if n != len(sum.Records) {
		t.Errorf("stored %d records, want %d", n, len(sum.Records))
	}

	runs, err := db.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("manifest has %d runs, want 1", len(runs))
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TrainFraction = 1.5
	if _, err := New(cfg, nil).Run(context.Background(), slate(1, 6)); err == nil {
		t.Error("invalid config should fail the run")
	}
}

func TestScoreUpcoming(t *testing.T) {
	games := slate(2, 8)

	// Two unplayed games a week after the last completed one.
	last := games[len(games)-1]
	spread := -3.0
	games = append(games,
		schema.Game{
			GameID: "up1", Season: last.Season, Week: last.Week + 1,
			Date: last.Date.AddDate(0, 0, 7), HomeTeam: "AAA", AwayTeam: "FFF",
			SpreadClose: &spread, MoneylineHome: -160, MoneylineAway: 140,
		},
		schema.Game{
			GameID: "up2", Season: last.Season, Week: last.Week + 1,
			Date: last.Date.AddDate(0, 0, 7), HomeTeam: "BBB", AwayTeam: "EEE",
		},
	)

	scores, err := New(testConfig(), nil).ScoreUpcoming(context.Background(), games)
	if err != nil {
		t.Fatalf("ScoreUpcoming failed: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}

	for _, s := range scores {
		if s.ProbModel < 0 || s.ProbModel > 1 {
			t.Errorf("%s model prob %v outside [0,1]", s.GameID, s.ProbModel)
		}
	}

	if !scores[0].HasBook {
		t.Error("up1 has moneylines and should carry a book price")
	}
	if math.Abs(scores[0].Edge-(scores[0].ProbModel-scores[0].ProbBook)) > 1e-12 {
		t.Error("up1 edge inconsistent with probabilities")
	}
	// up2 has neither moneylines nor a spread, so there is nothing to price
	// the market side with.
	if scores[1].HasBook {
		t.Error("up2 has no lines and should carry no book price")
	}
	if scores[1].Edge != 0 {
		t.Errorf("up2 edge = %v, want 0 without a book price", scores[1].Edge)
	}
}

func TestScoreUpcomingNoUnplayed(t *testing.T) {
	if _, err := New(testConfig(), nil).ScoreUpcoming(context.Background(), slate(1, 6)); err == nil {
		t.Error("slate without unplayed games should fail")
	}
}
