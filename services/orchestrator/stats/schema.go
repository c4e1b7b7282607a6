// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stats

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
)

// bootstrapDDL creates the statistics schema. Percentage columns are
// constrained to [0,1] and counting columns to >= 0; signed rate metrics
// (plus_minus, bpm, vorp, ws) are deliberately unconstrained.
const bootstrapDDL = `
CREATE TABLE IF NOT EXISTS players (
	id       INTEGER PRIMARY KEY,
	name     TEXT NOT NULL,
	team     TEXT NOT NULL DEFAULT '',
	position TEXT NOT NULL DEFAULT '',
	age      INTEGER NOT NULL DEFAULT 0 CHECK (age >= 0)
);

CREATE TABLE IF NOT EXISTS player_stats (
	player_id     INTEGER PRIMARY KEY REFERENCES players(id) ON DELETE CASCADE,
	games_played  INTEGER NOT NULL DEFAULT 0 CHECK (games_played >= 0),
	games_started INTEGER NOT NULL DEFAULT 0 CHECK (games_started >= 0),
	minutes       REAL    NOT NULL DEFAULT 0 CHECK (minutes >= 0),
	pts           INTEGER NOT NULL DEFAULT 0 CHECK (pts >= 0),
	fgm           INTEGER NOT NULL DEFAULT 0 CHECK (fgm >= 0),
	fga           INTEGER NOT NULL DEFAULT 0 CHECK (fga >= 0),
	fg_pct        REAL    NOT NULL DEFAULT 0 CHECK (fg_pct BETWEEN 0 AND 1),
	fg3m          INTEGER NOT NULL DEFAULT 0 CHECK (fg3m >= 0),
	fg3a          INTEGER NOT NULL DEFAULT 0 CHECK (fg3a >= 0),
	fg3_pct       REAL    NOT NULL DEFAULT 0 CHECK (fg3_pct BETWEEN 0 AND 1),
	ftm           INTEGER NOT NULL DEFAULT 0 CHECK (ftm >= 0),
	fta           INTEGER NOT NULL DEFAULT 0 CHECK (fta >= 0),
	ft_pct        REAL    NOT NULL DEFAULT 0 CHECK (ft_pct BETWEEN 0 AND 1),
	oreb          INTEGER NOT NULL DEFAULT 0 CHECK (oreb >= 0),
	dreb          INTEGER NOT NULL DEFAULT 0 CHECK (dreb >= 0),
	reb           INTEGER NOT NULL DEFAULT 0 CHECK (reb >= 0),
	ast           INTEGER NOT NULL DEFAULT 0 CHECK (ast >= 0),
	stl           INTEGER NOT NULL DEFAULT 0 CHECK (stl >= 0),
	blk           INTEGER NOT NULL DEFAULT 0 CHECK (blk >= 0),
	tov           INTEGER NOT NULL DEFAULT 0 CHECK (tov >= 0),
	pf            INTEGER NOT NULL DEFAULT 0 CHECK (pf >= 0),
	plus_minus    REAL    NOT NULL DEFAULT 0,
	ts_pct        REAL    NOT NULL DEFAULT 0 CHECK (ts_pct BETWEEN 0 AND 1),
	efg_pct       REAL    NOT NULL DEFAULT 0 CHECK (efg_pct BETWEEN 0 AND 1),
	usg_pct       REAL    NOT NULL DEFAULT 0 CHECK (usg_pct BETWEEN 0 AND 1),
	ortg          REAL    NOT NULL DEFAULT 0 CHECK (ortg >= 0),
	drtg          REAL    NOT NULL DEFAULT 0 CHECK (drtg >= 0),
	per           REAL    NOT NULL DEFAULT 0,
	ws            REAL    NOT NULL DEFAULT 0,
	bpm           REAL    NOT NULL DEFAULT 0,
	vorp          REAL    NOT NULL DEFAULT 0,
	mpg           REAL    NOT NULL DEFAULT 0 CHECK (mpg >= 0),
	ppg           REAL    NOT NULL DEFAULT 0 CHECK (ppg >= 0),
	rpg           REAL    NOT NULL DEFAULT 0 CHECK (rpg >= 0),
	apg           REAL    NOT NULL DEFAULT 0 CHECK (apg >= 0),
	spg           REAL    NOT NULL DEFAULT 0 CHECK (spg >= 0),
	bpg           REAL    NOT NULL DEFAULT 0 CHECK (bpg >= 0),
	topg          REAL    NOT NULL DEFAULT 0 CHECK (topg >= 0),
	ast_pct       REAL    NOT NULL DEFAULT 0 CHECK (ast_pct BETWEEN 0 AND 1),
	reb_pct       REAL    NOT NULL DEFAULT 0 CHECK (reb_pct BETWEEN 0 AND 1),
	stl_pct       REAL    NOT NULL DEFAULT 0 CHECK (stl_pct BETWEEN 0 AND 1),
	blk_pct       REAL    NOT NULL DEFAULT 0 CHECK (blk_pct BETWEEN 0 AND 1),
	tov_pct       REAL    NOT NULL DEFAULT 0 CHECK (tov_pct BETWEEN 0 AND 1),
	dd2           INTEGER NOT NULL DEFAULT 0 CHECK (dd2 >= 0),
	td3           INTEGER NOT NULL DEFAULT 0 CHECK (td3 >= 0)
);

CREATE TABLE IF NOT EXISTS teams (
	id           INTEGER PRIMARY KEY,
	name         TEXT NOT NULL,
	abbreviation TEXT NOT NULL,
	conference   TEXT NOT NULL DEFAULT '',
	division     TEXT NOT NULL DEFAULT '',
	wins         INTEGER NOT NULL DEFAULT 0 CHECK (wins >= 0),
	losses       INTEGER NOT NULL DEFAULT 0 CHECK (losses >= 0)
);

CREATE INDEX IF NOT EXISTS idx_players_name ON players(name);
CREATE INDEX IF NOT EXISTS idx_players_team ON players(team);
`

// ColumnDescription is one column with its glossary text.
type ColumnDescription struct {
	Name        string
	Type        string
	Description string
}

// TableDescription is one table with its described columns.
type TableDescription struct {
	Name    string
	Columns []ColumnDescription
}

// SchemaDescription is the full schema knowledge handed to the SQL
// generator.
type SchemaDescription struct {
	Tables []TableDescription
}

// Describe returns the statistics schema with NBA glossary descriptions.
// The value is rebuilt on each call so callers can never mutate shared
// state.
func Describe() SchemaDescription {
	return SchemaDescription{Tables: []TableDescription{
		{
			Name: "players",
			Columns: []ColumnDescription{
				{"id", "INTEGER", "Unique player identifier"},
				{"name", "TEXT", "Player full name, e.g. 'Nikola Jokić'"},
				{"team", "TEXT", "Three-letter team abbreviation, e.g. 'DEN'"},
				{"position", "TEXT", "Listed position: G, F or C"},
				{"age", "INTEGER", "Age in years at season end"},
			},
		},
		{
			Name: "player_stats",
			Columns: []ColumnDescription{
				{"player_id", "INTEGER", "References players.id"},
				{"games_played", "INTEGER", "Games played this season"},
				{"games_started", "INTEGER", "Games started"},
				{"minutes", "REAL", "Total minutes played"},
				{"pts", "INTEGER", "Total points scored"},
				{"fgm", "INTEGER", "Field goals made"},
				{"fga", "INTEGER", "Field goals attempted"},
				{"fg_pct", "REAL", "Field Goal Percentage (FG%), 0..1"},
				{"fg3m", "INTEGER", "Three-pointers made"},
				{"fg3a", "INTEGER", "Three-pointers attempted"},
				{"fg3_pct", "REAL", "Three-Point Percentage (3P%), 0..1"},
				{"ftm", "INTEGER", "Free throws made"},
				{"fta", "INTEGER", "Free throws attempted"},
				{"ft_pct", "REAL", "Free Throw Percentage (FT%), 0..1"},
				{"oreb", "INTEGER", "Offensive rebounds"},
				{"dreb", "INTEGER", "Defensive rebounds"},
				{"reb", "INTEGER", "Total rebounds"},
				{"ast", "INTEGER", "Total assists"},
				{"stl", "INTEGER", "Total steals"},
				{"blk", "INTEGER", "Total blocks"},
				{"tov", "INTEGER", "Total turnovers"},
				{"pf", "INTEGER", "Personal fouls"},
				{"plus_minus", "REAL", "Point differential while on the floor; may be negative"},
				{"ts_pct", "REAL", "True Shooting Percentage (TS%): shooting efficiency including free throws, 0..1"},
				{"efg_pct", "REAL", "Effective Field Goal Percentage (eFG%): FG% weighting threes as 1.5 makes, 0..1"},
				{"usg_pct", "REAL", "Usage Rate (USG%): share of team plays used while on the floor, 0..1"},
				{"ortg", "REAL", "Offensive Rating: points produced per 100 possessions"},
				{"drtg", "REAL", "Defensive Rating: points allowed per 100 possessions, lower is better"},
				{"per", "REAL", "Player Efficiency Rating (PER): per-minute production, league average 15"},
				{"ws", "REAL", "Win Shares: estimated wins contributed"},
				{"bpm", "REAL", "Box Plus/Minus (BPM): points per 100 possessions vs league average; may be negative"},
				{"vorp", "REAL", "Value Over Replacement Player (VORP)"},
				{"mpg", "REAL", "Minutes per game"},
				{"ppg", "REAL", "Points per game"},
				{"rpg", "REAL", "Rebounds per game"},
				{"apg", "REAL", "Assists per game"},
				{"spg", "REAL", "Steals per game"},
				{"bpg", "REAL", "Blocks per game"},
				{"topg", "REAL", "Turnovers per game"},
				{"ast_pct", "REAL", "Assist Percentage (AST%): share of teammate field goals assisted, 0..1"},
				{"reb_pct", "REAL", "Rebound Percentage (REB%): share of available rebounds grabbed, 0..1"},
				{"stl_pct", "REAL", "Steal Percentage (STL%): opponent possessions ended by a steal, 0..1"},
				{"blk_pct", "REAL", "Block Percentage (BLK%): opponent two-point attempts blocked, 0..1"},
				{"tov_pct", "REAL", "Turnover Percentage (TOV%): plays ending in a turnover, 0..1"},
				{"dd2", "INTEGER", "Double-doubles recorded"},
				{"td3", "INTEGER", "Triple-doubles recorded"},
			},
		},
		{
			Name: "teams",
			Columns: []ColumnDescription{
				{"id", "INTEGER", "Unique team identifier"},
				{"name", "TEXT", "Franchise name, e.g. 'Denver Nuggets'"},
				{"abbreviation", "TEXT", "Three-letter abbreviation, e.g. 'DEN'"},
				{"conference", "TEXT", "East or West"},
				{"division", "TEXT", "Division name"},
				{"wins", "INTEGER", "Regular-season wins"},
				{"losses", "INTEGER", "Regular-season losses"},
			},
		},
	}}
}

// Render formats the schema as the text block embedded in the generator
// prompt: one line per column with type and glossary description.
func (d SchemaDescription) Render() string {
	var b strings.Builder
	for i, table := range d.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table %s:\n", table.Name)
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  - %s (%s): %s\n", col.Name, col.Type, col.Description)
		}
	}
	return b.String()
}

// Identifiers returns the lowercase set of every table and column name,
// used by the semantic sniff to reject hallucinated identifiers.
func (d SchemaDescription) Identifiers() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, table := range d.Tables {
		ids[strings.ToLower(table.Name)] = struct{}{}
		for _, col := range table.Columns {
			ids[strings.ToLower(col.Name)] = struct{}{}
		}
	}
	return ids
}

// TableNames returns the described table names in stable order.
func (d SchemaDescription) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, t := range d.Tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Bootstrap creates the schema if it does not exist. Serving never calls
// this; it belongs to tooling and tests.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, bootstrapDDL); err != nil {
		return datatypes.WrapError(datatypes.KindInternalError, "bootstrap statistics schema", err)
	}
	return nil
}

// Tables lists the user tables present in the database, for health
// reporting.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, datatypes.WrapError(datatypes.KindInternalError, "list tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, datatypes.WrapError(datatypes.KindInternalError, "scan table name", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// seedRows is a small deterministic 2024-25 season snapshot used by tests
// and local demos.
const seedRows = `
INSERT INTO players (id, name, team, position, age) VALUES
	(1, 'Shai Gilgeous-Alexander', 'OKC', 'G', 26),
	(2, 'Nikola Jokić',            'DEN', 'C', 30),
	(3, 'Giannis Antetokounmpo',   'MIL', 'F', 30),
	(4, 'Luka Dončić',             'LAL', 'G', 26),
	(5, 'LeBron James',            'LAL', 'F', 40),
	(6, 'Kevin Durant',            'PHX', 'F', 36),
	(7, 'Stephen Curry',           'GSW', 'G', 37),
	(8, 'Joel Embiid',             'PHI', 'C', 31);

INSERT INTO player_stats
	(player_id, games_played, minutes, pts, reb, ast, stl, blk, tov,
	 fg_pct, fg3_pct, ft_pct, ts_pct, per, ppg, rpg, apg, plus_minus, td3) VALUES
	(1, 76, 2598, 2484, 380, 464, 129, 76, 181, 0.519, 0.375, 0.898, 0.637, 30.5, 32.7, 5.0, 6.1,  9.3, 0),
	(2, 70, 2571, 2071, 892, 716,  72, 46, 229, 0.576, 0.417, 0.800, 0.663, 32.0, 29.6, 12.7, 10.2, 8.7, 34),
	(3, 67, 2289, 2036, 806, 388,  59, 73, 207, 0.601, 0.222, 0.617, 0.625, 30.6, 30.4, 12.0, 5.8,  5.1, 5),
	(4, 50, 1762, 1414, 410, 384,  90, 22, 178, 0.452, 0.368, 0.778, 0.580, 24.8, 28.3, 8.2, 7.7,  2.4, 3),
	(5, 70, 2437, 1708, 548, 577,  63, 38, 261, 0.513, 0.376, 0.782, 0.597, 23.8, 24.4, 7.8, 8.2,  3.9, 4),
	(6, 62, 2278, 1648, 372, 262,  50, 74, 187, 0.527, 0.430, 0.839, 0.642, 22.5, 26.6, 6.0, 4.2,  1.8, 0),
	(7, 70, 2258, 1715, 308, 420,  77, 28, 198, 0.448, 0.397, 0.933, 0.615, 21.3, 24.5, 4.4, 6.0,  4.6, 0),
	(8, 19,  573,  449, 154,  79,  13, 17,  68, 0.444, 0.299, 0.881, 0.556, 18.9, 23.6, 8.1, 4.2, -4.2, 0);

INSERT INTO teams (id, name, abbreviation, conference, division, wins, losses) VALUES
	(1, 'Oklahoma City Thunder', 'OKC', 'West', 'Northwest', 68, 14),
	(2, 'Denver Nuggets',        'DEN', 'West', 'Northwest', 50, 32),
	(3, 'Milwaukee Bucks',       'MIL', 'East', 'Central',   48, 34),
	(4, 'Los Angeles Lakers',    'LAL', 'West', 'Pacific',   50, 32),
	(5, 'Phoenix Suns',          'PHX', 'West', 'Pacific',   36, 46),
	(6, 'Golden State Warriors', 'GSW', 'West', 'Pacific',   48, 34),
	(7, 'Philadelphia 76ers',    'PHI', 'East', 'Atlantic',  24, 58),
	(8, 'Boston Celtics',        'BOS', 'East', 'Atlantic',  61, 21);
`

// SeedDemo bootstraps the schema and loads the demo snapshot. Intended for
// tests and the local quick-start; refuses nothing and is not idempotent.
func (s *Store) SeedDemo(ctx context.Context) error {
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, seedRows); err != nil {
		return datatypes.WrapError(datatypes.KindInternalError, "seed demo rows", err)
	}
	return nil
}
