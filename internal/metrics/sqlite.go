package metrics

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink persists observations to a SQLite database, one row per value.
type SQLiteSink struct {
	db  *sql.DB
	run string
}

// OpenSQLiteSink opens or creates the database at path and tags every row
// with run.
func OpenSQLiteSink(path, run string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("metrics: open %s: %w", path, err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS observations(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run TEXT NOT NULL,
			ts REAL NOT NULL,
			phase TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("metrics: create observations table: %w", err)
	}
	return &SQLiteSink{db: db, run: run}, nil
}

func (s *SQLiteSink) Emit(obs Observation) error {
	_, err := s.db.Exec("INSERT INTO observations(run, ts, phase, epoch, name, value) VALUES(?,?,?,?,?,?)",
		s.run, float64(time.Now().UnixNano())/1e9, obs.Phase.String(), obs.Epoch, obs.Name, obs.Value)
	if err != nil {
		return fmt.Errorf("metrics: insert %s: %w", obs.Name, err)
	}
	return nil
}

// Query returns the values recorded for name in this run, ordered by epoch.
func (s *SQLiteSink) Query(name string) ([]Observation, error) {
	rows, err := s.db.Query("SELECT phase, epoch, value FROM observations WHERE run = ? AND name = ? ORDER BY epoch ASC, id ASC", s.run, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Observation
	for rows.Next() {
		var phase string
		obs := Observation{Name: name}
		if err := rows.Scan(&phase, &obs.Epoch, &obs.Value); err != nil {
			return nil, err
		}
		obs.Phase = parsePhase(phase)
		out = append(out, obs)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func parsePhase(name string) Phase {
	switch name {
	case "val":
		return Val
	case "test":
		return Test
	}
	return Train
}
