// Package elo maintains sequential team strength ratings. The engine is an
// explicit state-threading fold: the ratings map goes in and comes out of
// every step, and the rating recorded as a feature for a game is always the
// pre-update value. Nothing about a game or any later game ever leaks into
// its own feature.
package elo

import (
	"errors"
	"fmt"
	"math"

	"nfl-edge-pipeline/internal/schema"
)

// ErrNotChronological indicates the input slice was not sorted by
// (date, game_id) ascending. The update chain is causal; processing out of
// order would corrupt every rating after the violation.
var ErrNotChronological = errors.New("games not in chronological order")

// Defaults for the rating model.
const (
	DefaultK    = 20.0
	DefaultHFA  = 65.0
	DefaultSeed = 1500.0
)

// Config parameterizes one Elo pass.
type Config struct {
	K    float64
	HFA  float64 // home-field advantage in rating points
	Seed float64 // initial rating for unseen teams

	// SeedRatings optionally overrides Seed per team (e.g. carrying ratings
	// across seasons). Teams absent from the map fall back to Seed.
	SeedRatings map[string]float64
}

// DefaultConfig returns the standard K/HFA/seed values.
func DefaultConfig() Config {
	return Config{K: DefaultK, HFA: DefaultHFA, Seed: DefaultSeed}
}

// GameRating holds the pre-game rating features for one game.
type GameRating struct {
	GameID       string
	EloHome      float64
	EloAway      float64
	EloDiff      float64 // EloHome - EloAway + HFA
	ExpectedHome float64 // logistic expectation of a home win

	FirstGameHome bool
	FirstGameAway bool
	Updated       bool // false when the game had no resolved score
}

// Result is the output of one full pass.
type Result struct {
	PerGame []GameRating
	Final   map[string]float64 // ratings after the last processed game
}

// Run folds cfg over games, which must already be sorted by (date, game_id)
// ascending; out-of-order input returns ErrNotChronological. Games without a
// resolved score still receive pre-game rating features but skip the update,
// so upcoming games at the tail of the slate can be scored.
func Run(games []schema.Game, cfg Config) (Result, error) {
	if cfg.K <= 0 {
		return Result{}, fmt.Errorf("elo: K must be positive, got %v", cfg.K)
	}

	ratings := make(map[string]float64, 32)
	seen := make(map[string]bool, 32)
	perGame := make([]GameRating, 0, len(games))

	for i := range games {
		g := &games[i]
		if i > 0 && !games[i-1].Before(g) && games[i-1].GameID != g.GameID {
			return Result{}, fmt.Errorf("%w: %s before %s", ErrNotChronological, games[i-1].GameID, g.GameID)
		}

		gr := Step(ratings, seen, g, cfg)
		perGame = append(perGame, gr)
	}

	return Result{PerGame: perGame, Final: ratings}, nil
}

// Step records pre-update features for one game and, if the game has a
// resolved score, applies the rating update to both teams. ratings and seen
// are mutated; they are the explicit fold state.
func Step(ratings map[string]float64, seen map[string]bool, g *schema.Game, cfg Config) GameRating {
	home := lookup(ratings, seen, g.HomeTeam, cfg)
	away := lookup(ratings, seen, g.AwayTeam, cfg)

	gr := GameRating{
		GameID:        g.GameID,
		EloHome:       home,
		EloAway:       away,
		EloDiff:       home - away + cfg.HFA,
		FirstGameHome: !seen[g.HomeTeam],
		FirstGameAway: !seen[g.AwayTeam],
	}
	gr.ExpectedHome = Expect(gr.EloDiff)

	seen[g.HomeTeam] = true
	seen[g.AwayTeam] = true

	win, ok := g.HomeWin()
	if !ok {
		// Unresolved score: emit features only. Legitimate for upcoming
		// games at the end of the slate.
		return gr
	}

	actual := float64(win)
	delta := cfg.K * (actual - gr.ExpectedHome)
	ratings[g.HomeTeam] = home + delta
	ratings[g.AwayTeam] = away - delta
	gr.Updated = true

	return gr
}

// Expect converts an HFA-adjusted rating difference into the logistic
// expected home-win probability: 1 / (1 + 10^(-diff/400)).
func Expect(eloDiff float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, -eloDiff/400.0))
}

func lookup(ratings map[string]float64, seen map[string]bool, team string, cfg Config) float64 {
	if r, ok := ratings[team]; ok {
		return r
	}
	r := cfg.Seed
	if s, ok := cfg.SeedRatings[team]; ok {
		r = s
	}
	if !seen[team] {
		ratings[team] = r
	}
	return r
}
