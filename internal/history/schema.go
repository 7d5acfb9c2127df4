package history

// schemaSQL defines the SQLite schema for the history database.
// Tables:
//   - runs: one row per recorded coverage run with the overall
//     aggregates across the three axes
const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    recorded_at TEXT NOT NULL,
    package TEXT NOT NULL DEFAULT '',
    models INTEGER NOT NULL DEFAULT 0,
    models_with_column_tests INTEGER NOT NULL DEFAULT 0,
    column_tested INTEGER NOT NULL DEFAULT 0,
    column_total INTEGER NOT NULL DEFAULT 0,
    column_pct REAL NOT NULL DEFAULT 0,
    unit_tested INTEGER NOT NULL DEFAULT 0,
    unit_total INTEGER NOT NULL DEFAULT 0,
    unit_pct REAL NOT NULL DEFAULT 0,
    contract_tested INTEGER NOT NULL DEFAULT 0,
    contract_total INTEGER NOT NULL DEFAULT 0,
    contract_pct REAL NOT NULL DEFAULT 0,
    passed INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_runs_recorded_at ON runs(recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_package ON runs(package);
`

// initSchema creates the database tables and indexes if they don't exist.
func (s *Store) initSchema() error {
	_, err := s.db.Exec(schemaSQL)
	return err
}
