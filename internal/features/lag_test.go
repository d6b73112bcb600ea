package features

import (
	"math"
	"testing"
	"time"

	"nfl-edge-pipeline/internal/schema"
)

func intPtr(v int) *int { return &v }

func game(id, date, home, away string, week, homeScore, awayScore int) schema.Game {
	d, _ := time.Parse(schema.DateLayout, date)
	return schema.Game{
		GameID:    id,
		Season:    d.Year(),
		Week:      week,
		Date:      d,
		HomeTeam:  home,
		AwayTeam:  away,
		HomeScore: intPtr(homeScore),
		AwayScore: intPtr(awayScore),
	}
}

func TestBuildLagsRestAndMargin(t *testing.T) {
	// T1 beats T2 at home in week 1; T2 beats T1 at home two weeks later.
	games := []schema.Game{
		game("g1", "2023-09-10", "T1", "T2", 1, 24, 17),
		game("g2", "2023-09-24", "T2", "T1", 3, 27, 24),
	}

	rows, err := BuildLags(games)
	if err != nil {
		t.Fatalf("BuildLags failed: %v", err)
	}

	first := rows[0]
	if !first.FirstGameHome || !first.FirstGameAway {
		t.Error("both teams should be flagged first-game in g1")
	}
	if !math.IsNaN(first.RestHome) || !math.IsNaN(first.RestAway) {
		t.Errorf("first-game rest should be NaN, got %v/%v", first.RestHome, first.RestAway)
	}
	if !math.IsNaN(first.PrevMarginHome) {
		t.Errorf("first-game margin should be NaN, got %v", first.PrevMarginHome)
	}

	second := rows[1]
	// T1 is away in g2: 14 days since g1, previous margin +7 (24-17).
	if second.RestAway != 14 {
		t.Errorf("RestAway = %v, want 14", second.RestAway)
	}
	if second.PrevMarginAway != 7 {
		t.Errorf("PrevMarginAway = %v, want +7", second.PrevMarginAway)
	}
	// T2 is home in g2: lost g1 by 7.
	if second.RestHome != 14 {
		t.Errorf("RestHome = %v, want 14", second.RestHome)
	}
	if second.PrevMarginHome != -7 {
		t.Errorf("PrevMarginHome = %v, want -7", second.PrevMarginHome)
	}
	if second.FirstGameHome || second.FirstGameAway {
		t.Error("no first-game flags expected in g2")
	}
}

func TestBuildLagsUnplayedGameDoesNotResetClock(t *testing.T) {
	unplayed := game("g2", "2023-09-17", "T1", "T3", 2, 0, 0)
	unplayed.HomeScore = nil
	unplayed.AwayScore = nil

	games := []schema.Game{
		game("g1", "2023-09-10", "T1", "T2", 1, 20, 10),
		unplayed,
		game("g3", "2023-09-24", "T1", "T4", 3, 30, 3),
	}

	rows, err := BuildLags(games)
	if err != nil {
		t.Fatalf("BuildLags failed: %v", err)
	}

	// g3's rest for T1 should come from g1 (14 days), not the unplayed g2.
	if rows[2].RestHome != 14 {
		t.Errorf("RestHome = %v, want 14 (measured from last completed game)", rows[2].RestHome)
	}
	if rows[2].PrevMarginHome != 10 {
		t.Errorf("PrevMarginHome = %v, want +10", rows[2].PrevMarginHome)
	}
}

func TestBuildLagsZeroRestDistinctFromFirstGame(t *testing.T) {
	// Same-day doubleheader: zero rest is a real value, not a sentinel.
	games := []schema.Game{
		game("g1", "2023-09-10", "T1", "T2", 1, 20, 10),
		game("g2", "2023-09-10", "T3", "T1", 1, 14, 7),
	}

	rows, err := BuildLags(games)
	if err != nil {
		t.Fatalf("BuildLags failed: %v", err)
	}
	if rows[1].RestAway != 0 {
		t.Errorf("RestAway = %v, want 0", rows[1].RestAway)
	}
	if rows[1].FirstGameAway {
		t.Error("zero rest must not be flagged as first game")
	}
}

func TestCapRest(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{7, 7},
		{14, 14},
		{200, 14},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := CapRest(tt.in, DefaultRestCap); got != tt.want {
			t.Errorf("CapRest(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if !math.IsNaN(CapRest(math.NaN(), DefaultRestCap)) {
		t.Error("CapRest should pass NaN through")
	}
}
