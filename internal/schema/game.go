package schema

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrSchemaViolation indicates structurally invalid input: missing required
// columns, duplicate game IDs, or a join that changed cardinality. Runs must
// abort on it rather than dropping rows.
var ErrSchemaViolation = errors.New("schema violation")

// DateLayout is the calendar-date format used throughout the pipeline.
const DateLayout = "2006-01-02"

// Game is one contest row as delivered by the ingestion collaborator.
// Scores are nil until the game has been played. SpreadClose/TotalClose are
// closing-line values from the home perspective (negative spread = home
// favored). MoneylineHome/Away are American odds, 0 when no book quote exists.
type Game struct {
	GameID    string
	Season    int
	Week      int
	Date      time.Time
	HomeTeam  string
	AwayTeam  string
	HomeScore *int
	AwayScore *int

	SpreadClose   *float64
	TotalClose    *float64
	MoneylineHome int
	MoneylineAway int
}

// Played reports whether both scores are present.
func (g *Game) Played() bool {
	return g.HomeScore != nil && g.AwayScore != nil
}

// HomeWin returns (1, true) if the home team won, (0, true) if it lost, and
// (0, false) for unplayed games. Ties resolve to 0 (home did not win).
func (g *Game) HomeWin() (int, bool) {
	if !g.Played() {
		return 0, false
	}
	if *g.HomeScore > *g.AwayScore {
		return 1, true
	}
	return 0, true
}

// HomeMargin returns home score minus away score for played games.
func (g *Game) HomeMargin() (int, bool) {
	if !g.Played() {
		return 0, false
	}
	return *g.HomeScore - *g.AwayScore, true
}

// Before orders games by (date, game_id). The game_id tie-break makes every
// sort of the same slate deterministic even when several games share a date.
func (g *Game) Before(other *Game) bool {
	if !g.Date.Equal(other.Date) {
		return g.Date.Before(other.Date)
	}
	return g.GameID < other.GameID
}

// SortGames orders games chronologically in place, ties broken by game_id.
func SortGames(games []Game) {
	sort.Slice(games, func(i, j int) bool {
		return games[i].Before(&games[j])
	})
}

// ValidateGames checks the structural invariants required by every downstream
// stage: non-empty game IDs and team codes, a parseable date, exactly one row
// per game_id. A violation is fatal for the whole run.
func ValidateGames(games []Game) error {
	seen := make(map[string]bool, len(games))
	for i := range games {
		g := &games[i]
		if g.GameID == "" {
			return fmt.Errorf("%w: row %d has empty game_id", ErrSchemaViolation, i)
		}
		if g.HomeTeam == "" || g.AwayTeam == "" {
			return fmt.Errorf("%w: game %s missing team code", ErrSchemaViolation, g.GameID)
		}
		if g.Date.IsZero() {
			return fmt.Errorf("%w: game %s has no date", ErrSchemaViolation, g.GameID)
		}
		if g.Week < 1 || g.Week > 22 {
			return fmt.Errorf("%w: game %s week %d outside 1-22", ErrSchemaViolation, g.GameID, g.Week)
		}
		if seen[g.GameID] {
			return fmt.Errorf("%w: duplicate game_id %s", ErrSchemaViolation, g.GameID)
		}
		seen[g.GameID] = true
	}
	return nil
}
