// Package features derives per-game lag features and assembles the context
// table. Everything here is strictly causal: a game's features come only from
// that team's earlier games.
package features

import (
	"fmt"
	"math"
	"time"

	"nfl-edge-pipeline/internal/elo"
	"nfl-edge-pipeline/internal/schema"
)

// DefaultRestCap is the ceiling applied by CapRest. Raw off-season gaps can
// run into the hundreds of days and would swamp the feature scale if fed raw.
const DefaultRestCap = 14.0

// LagRow holds the rest-day and previous-margin features for one game.
// NaN marks "no prior game for this team"; callers must not read NaN as
// zero rest.
type LagRow struct {
	GameID         string
	RestHome       float64
	RestAway       float64
	PrevMarginHome float64
	PrevMarginAway float64
	FirstGameHome  bool
	FirstGameAway  bool
}

// teamLast tracks the most recent completed appearance of a team.
type teamLast struct {
	date   time.Time
	margin float64
}

// BuildLags computes rest days and previous-game margins for every game.
// games must be sorted by (date, game_id) ascending, same contract as the
// Elo engine.
func BuildLags(games []schema.Game) ([]LagRow, error) {
	last := make(map[string]*teamLast, 32)
	rows := make([]LagRow, 0, len(games))

	for i := range games {
		g := &games[i]
		if i > 0 && !games[i-1].Before(g) && games[i-1].GameID != g.GameID {
			return nil, fmt.Errorf("%w: %s before %s", elo.ErrNotChronological, games[i-1].GameID, g.GameID)
		}

		row := LagRow{
			GameID:         g.GameID,
			RestHome:       math.NaN(),
			RestAway:       math.NaN(),
			PrevMarginHome: math.NaN(),
			PrevMarginAway: math.NaN(),
		}

		if prev, ok := last[g.HomeTeam]; ok {
			row.RestHome = g.Date.Sub(prev.date).Hours() / 24
			row.PrevMarginHome = prev.margin
		} else {
			row.FirstGameHome = true
		}
		if prev, ok := last[g.AwayTeam]; ok {
			row.RestAway = g.Date.Sub(prev.date).Hours() / 24
			row.PrevMarginAway = prev.margin
		} else {
			row.FirstGameAway = true
		}

		rows = append(rows, row)

		// Only completed games become a team's "previous game"; an unplayed
		// game has no margin and should not reset the rest clock either.
		if margin, ok := g.HomeMargin(); ok {
			last[g.HomeTeam] = &teamLast{date: g.Date, margin: float64(margin)}
			last[g.AwayTeam] = &teamLast{date: g.Date, margin: float64(-margin)}
		}
	}

	return rows, nil
}

// CapRest clamps a rest value to [0, cap]. NaN passes through so first-game
// sentinels survive; the caller pairs this with the first-game flag feature.
func CapRest(rest, cap float64) float64 {
	if math.IsNaN(rest) {
		return rest
	}
	if rest > cap {
		return cap
	}
	if rest < 0 {
		return 0
	}
	return rest
}
