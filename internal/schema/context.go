package schema

import "math"

// ContextRow is the derived pre-game feature row for one game, 1:1 with Game
// on GameID. Rest and previous-margin fields use NaN as the "no prior game"
// sentinel so callers can distinguish a first appearance from zero rest;
// FirstGameHome/Away make the same fact available as explicit flags.
//
// Columns owned by Game (season, week, spread, total) are deliberately not
// duplicated here; model training joins them back by game_id.
type ContextRow struct {
	GameID string
	Home   float64 // structural constant 1

	RestHome       float64
	RestAway       float64
	PrevMarginHome float64
	PrevMarginAway float64
	FirstGameHome  bool
	FirstGameAway  bool

	EloHome float64
	EloAway float64
	EloDiff float64 // EloHome - EloAway + HFA
}

// HasRestHome reports whether the home rest value is defined.
func (c *ContextRow) HasRestHome() bool { return !math.IsNaN(c.RestHome) }

// HasRestAway reports whether the away rest value is defined.
func (c *ContextRow) HasRestAway() bool { return !math.IsNaN(c.RestAway) }
