package features

import (
	"fmt"

	"nfl-edge-pipeline/internal/elo"
	"nfl-edge-pipeline/internal/schema"
)

// Assemble left-joins Elo features and lag features onto the game table and
// returns the context table, exactly one row per game in input order.
//
// The join cardinality is asserted, not assumed: a missing or duplicate
// game_id on either side means a key bug upstream and fails the run as a
// schema violation. Columns owned by Game (season, week, spread, total) are
// not copied in; model training joins them back by game_id.
func Assemble(games []schema.Game, eloRows []elo.GameRating, lagRows []LagRow) ([]schema.ContextRow, error) {
	eloByID := make(map[string]*elo.GameRating, len(eloRows))
	for i := range eloRows {
		if _, dup := eloByID[eloRows[i].GameID]; dup {
			return nil, fmt.Errorf("%w: duplicate elo row for game %s", schema.ErrSchemaViolation, eloRows[i].GameID)
		}
		eloByID[eloRows[i].GameID] = &eloRows[i]
	}

	lagByID := make(map[string]*LagRow, len(lagRows))
	for i := range lagRows {
		if _, dup := lagByID[lagRows[i].GameID]; dup {
			return nil, fmt.Errorf("%w: duplicate lag row for game %s", schema.ErrSchemaViolation, lagRows[i].GameID)
		}
		lagByID[lagRows[i].GameID] = &lagRows[i]
	}

	rows := make([]schema.ContextRow, 0, len(games))
	for i := range games {
		g := &games[i]

		er, ok := eloByID[g.GameID]
		if !ok {
			return nil, fmt.Errorf("%w: no elo row for game %s", schema.ErrSchemaViolation, g.GameID)
		}
		lr, ok := lagByID[g.GameID]
		if !ok {
			return nil, fmt.Errorf("%w: no lag row for game %s", schema.ErrSchemaViolation, g.GameID)
		}

		rows = append(rows, schema.ContextRow{
			GameID:         g.GameID,
			Home:           1,
			RestHome:       lr.RestHome,
			RestAway:       lr.RestAway,
			PrevMarginHome: lr.PrevMarginHome,
			PrevMarginAway: lr.PrevMarginAway,
			FirstGameHome:  lr.FirstGameHome,
			FirstGameAway:  lr.FirstGameAway,
			EloHome:        er.EloHome,
			EloAway:        er.EloAway,
			EloDiff:        er.EloDiff,
		})
	}

	if len(rows) != len(games) {
		return nil, fmt.Errorf("%w: join produced %d rows for %d games", schema.ErrSchemaViolation, len(rows), len(games))
	}

	return rows, nil
}
