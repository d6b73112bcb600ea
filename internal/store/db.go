// Package store persists pipeline inputs and artifacts in sqlite. Artifacts
// are addressed through the runs manifest — a caller holds a run ID and asks
// for that run's rows, never "the most recent file on disk".
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"nfl-edge-pipeline/internal/edge"
	"nfl-edge-pipeline/internal/schema"
)

// DB wraps the sqlite handle.
type DB struct {
	db *sql.DB
}

// Run is one manifest entry.
type Run struct {
	ID        string
	CreatedAt time.Time
	Note      string
}

// Open opens (and if needed initializes) the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS games (
		game_id TEXT PRIMARY KEY,
		season INTEGER NOT NULL,
		week INTEGER NOT NULL,
		date TEXT NOT NULL,
		home_team TEXT NOT NULL,
		away_team TEXT NOT NULL,
		home_score INTEGER,
		away_score INTEGER,
		spread_close REAL,
		total_close REAL,
		ml_home INTEGER NOT NULL DEFAULT 0,
		ml_away INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_games_season_week ON games(season, week);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		note TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS context_rows (
		run_id TEXT NOT NULL,
		game_id TEXT NOT NULL,
		rest_home REAL,
		rest_away REAL,
		prev_margin_home REAL,
		prev_margin_away REAL,
		first_game_home INTEGER NOT NULL,
		first_game_away INTEGER NOT NULL,
		elo_home REAL NOT NULL,
		elo_away REAL NOT NULL,
		elo_diff REAL NOT NULL,
		PRIMARY KEY (run_id, game_id)
	);

	CREATE TABLE IF NOT EXISTS edge_records (
		run_id TEXT NOT NULL,
		game_id TEXT NOT NULL,
		season INTEGER NOT NULL,
		week INTEGER NOT NULL,
		home_win INTEGER NOT NULL,
		prob_book REAL NOT NULL,
		prob_model_oof REAL NOT NULL,
		edge REAL NOT NULL,
		abs_edge REAL NOT NULL,
		side INTEGER NOT NULL,
		loss_book REAL NOT NULL,
		loss_model REAL NOT NULL,
		loss_delta REAL NOT NULL,
		PRIMARY KEY (run_id, game_id)
	);
	`

	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// CreateRun registers a new run in the manifest and returns its ID.
func (d *DB) CreateRun(note string) (string, error) {
	id := uuid.NewString()
	if _, err := d.db.Exec(`INSERT INTO runs (run_id, note) VALUES (?, ?)`, id, note); err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// ListRuns returns manifest entries, newest first.
func (d *DB) ListRuns() ([]Run, error) {
	rows, err := d.db.Query(`SELECT run_id, created_at, note FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Note); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveGames upserts the game table.
func (d *DB) SaveGames(games []schema.Game) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO games
		(game_id, season, week, date, home_team, away_team, home_score, away_score, spread_close, total_close, ml_home, ml_away)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range games {
		g := &games[i]
		_, err := stmt.Exec(
			g.GameID, g.Season, g.Week, g.Date.Format(schema.DateLayout),
			g.HomeTeam, g.AwayTeam,
			nullInt(g.HomeScore), nullInt(g.AwayScore),
			nullFloat(g.SpreadClose), nullFloat(g.TotalClose),
			g.MoneylineHome, g.MoneylineAway,
		)
		if err != nil {
			return fmt.Errorf("inserting game %s: %w", g.GameID, err)
		}
	}

	return tx.Commit()
}

// LoadGames reads the full game table in chronological order.
func (d *DB) LoadGames() ([]schema.Game, error) {
	rows, err := d.db.Query(`
		SELECT game_id, season, week, date, home_team, away_team,
		       home_score, away_score, spread_close, total_close, ml_home, ml_away
		FROM games ORDER BY date, game_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}
	defer rows.Close()

	var games []schema.Game
	for rows.Next() {
		var g schema.Game
		var date string
		var homeScore, awayScore sql.NullInt64
		var spread, total sql.NullFloat64

		if err := rows.Scan(&g.GameID, &g.Season, &g.Week, &date, &g.HomeTeam, &g.AwayTeam,
			&homeScore, &awayScore, &spread, &total, &g.MoneylineHome, &g.MoneylineAway); err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}

		if g.Date, err = time.Parse(schema.DateLayout, date); err != nil {
			return nil, fmt.Errorf("parsing date for %s: %w", g.GameID, err)
		}
		if homeScore.Valid {
			v := int(homeScore.Int64)
			g.HomeScore = &v
		}
		if awayScore.Valid {
			v := int(awayScore.Int64)
			g.AwayScore = &v
		}
		if spread.Valid {
			v := spread.Float64
			g.SpreadClose = &v
		}
		if total.Valid {
			v := total.Float64
			g.TotalClose = &v
		}

		games = append(games, g)
	}

	return games, rows.Err()
}

// SaveContextRows persists the context table for one run.
func (d *DB) SaveContextRows(runID string, rows []schema.ContextRow) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO context_rows
		(run_id, game_id, rest_home, rest_away, prev_margin_home, prev_margin_away,
		 first_game_home, first_game_away, elo_home, elo_away, elo_diff)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		c := &rows[i]
		_, err := stmt.Exec(
			runID, c.GameID,
			nanToNull(c.RestHome), nanToNull(c.RestAway),
			nanToNull(c.PrevMarginHome), nanToNull(c.PrevMarginAway),
			boolToInt(c.FirstGameHome), boolToInt(c.FirstGameAway),
			c.EloHome, c.EloAway, c.EloDiff,
		)
		if err != nil {
			return fmt.Errorf("inserting context row %s: %w", c.GameID, err)
		}
	}

	return tx.Commit()
}

// SaveEdgeRecords persists edge records for one run.
func (d *DB) SaveEdgeRecords(runID string, records []edge.Record) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO edge_records
		(run_id, game_id, season, week, home_win, prob_book, prob_model_oof,
		 edge, abs_edge, side, loss_book, loss_model, loss_delta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		_, err := stmt.Exec(
			runID, r.GameID, r.Season, r.Week, r.HomeWin,
			r.ProbBook, r.ProbModelOOF, r.Edge, r.AbsEdge, r.Side,
			r.LossBook, r.LossModel, r.LossDelta,
		)
		if err != nil {
			return fmt.Errorf("inserting edge record %s: %w", r.GameID, err)
		}
	}

	return tx.Commit()
}

// EdgeRecordCount returns the number of stored edge records for a run.
func (d *DB) EdgeRecordCount(runID string) (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM edge_records WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting edge records: %w", err)
	}
	return n, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nanToNull(v float64) any {
	if v != v { // NaN
		return nil
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
