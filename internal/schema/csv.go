package schema

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// csvColumns is the required header for game CSV files. Score, spread, total
// and moneyline cells may be empty (unplayed game / no line).
var csvColumns = []string{
	"game_id", "season", "week", "date", "home_team", "away_team",
	"home_score", "away_score", "spread_close", "total_close",
	"ml_home", "ml_away",
}

// ReadGamesCSV parses a game table from CSV. The header must match
// csvColumns exactly; a mismatch is a schema violation, not a silent remap.
func ReadGamesCSV(r io.Reader) ([]Game, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) != len(csvColumns) {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", ErrSchemaViolation, len(csvColumns), len(header))
	}
	for i, col := range csvColumns {
		if header[i] != col {
			return nil, fmt.Errorf("%w: column %d is %q, expected %q", ErrSchemaViolation, i, header[i], col)
		}
	}

	var games []Game
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line+1, err)
		}
		line++

		g, err := parseGameRecord(record)
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line, err)
		}
		games = append(games, g)
	}

	if err := ValidateGames(games); err != nil {
		return nil, err
	}
	return games, nil
}

func parseGameRecord(record []string) (Game, error) {
	var g Game
	var err error

	g.GameID = record[0]
	if g.Season, err = strconv.Atoi(record[1]); err != nil {
		return g, fmt.Errorf("bad season %q: %w", record[1], err)
	}
	if g.Week, err = strconv.Atoi(record[2]); err != nil {
		return g, fmt.Errorf("bad week %q: %w", record[2], err)
	}
	if g.Date, err = time.Parse(DateLayout, record[3]); err != nil {
		return g, fmt.Errorf("bad date %q: %w", record[3], err)
	}
	g.HomeTeam = record[4]
	g.AwayTeam = record[5]

	if g.HomeScore, err = parseOptionalInt(record[6]); err != nil {
		return g, fmt.Errorf("bad home_score %q: %w", record[6], err)
	}
	if g.AwayScore, err = parseOptionalInt(record[7]); err != nil {
		return g, fmt.Errorf("bad away_score %q: %w", record[7], err)
	}
	if (g.HomeScore == nil) != (g.AwayScore == nil) {
		return g, fmt.Errorf("%w: game %s has exactly one score", ErrSchemaViolation, g.GameID)
	}

	if g.SpreadClose, err = parseOptionalFloat(record[8]); err != nil {
		return g, fmt.Errorf("bad spread_close %q: %w", record[8], err)
	}
	if g.TotalClose, err = parseOptionalFloat(record[9]); err != nil {
		return g, fmt.Errorf("bad total_close %q: %w", record[9], err)
	}

	if g.MoneylineHome, err = parseOptionalOdds(record[10]); err != nil {
		return g, fmt.Errorf("bad ml_home %q: %w", record[10], err)
	}
	if g.MoneylineAway, err = parseOptionalOdds(record[11]); err != nil {
		return g, fmt.Errorf("bad ml_away %q: %w", record[11], err)
	}

	return g, nil
}

func parseOptionalInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseOptionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseOptionalOdds(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
