package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hargabyte/dbtcov/internal/coverage"
)

// Run is one recorded coverage run.
type Run struct {
	ID         string             `yaml:"id" json:"id"`
	RecordedAt time.Time          `yaml:"recorded_at" json:"recorded_at"`
	Package    string             `yaml:"package,omitempty" json:"package,omitempty"`
	Summary    coverage.Aggregate `yaml:"summary" json:"summary"`
	Passed     bool               `yaml:"passed" json:"passed"`
}

// runColumns is the column list every run query selects, in the order
// scanRun expects.
const runColumns = `id, recorded_at, package, models, models_with_column_tests,
	column_tested, column_total, column_pct,
	unit_tested, unit_total, unit_pct,
	contract_tested, contract_total, contract_pct, passed`

// RecordRun stores the overall aggregates of a coverage run and
// returns the stored entry.
func (s *Store) RecordRun(pkg string, summary coverage.Aggregate, passed bool) (*Run, error) {
	run := &Run{
		ID:         uuid.NewString(),
		RecordedAt: time.Now().UTC().Truncate(time.Second),
		Package:    pkg,
		Summary:    summary,
		Passed:     passed,
	}

	passedInt := 0
	if passed {
		passedInt = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RecordedAt.Format(time.RFC3339), pkg,
		summary.Models, summary.ModelsWithColumnTests,
		summary.ColumnTest.Tested, summary.ColumnTest.Total, summary.ColumnTest.Percent,
		summary.UnitTest.Tested, summary.UnitTest.Total, summary.UnitTest.Percent,
		summary.Contract.Tested, summary.Contract.Total, summary.Contract.Percent,
		passedInt,
	)
	if err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	return run, nil
}

// ListRuns returns recorded runs, newest first. An empty pkg lists runs
// for every package; limit 0 returns everything.
func (s *Store) ListRuns(pkg string, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs"
	args := []interface{}{}
	if pkg != "" {
		query += " WHERE package = ?"
		args = append(args, pkg)
	}
	query += " ORDER BY recorded_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the most recent recorded run, optionally restricted
// to one package. Returns ErrNoRuns if nothing has been recorded.
func (s *Store) LastRun(pkg string) (*Run, error) {
	query := "SELECT " + runColumns + " FROM runs"
	args := []interface{}{}
	if pkg != "" {
		query += " WHERE package = ?"
		args = append(args, pkg)
	}
	query += " ORDER BY recorded_at DESC, rowid DESC LIMIT 1"

	run, err := scanRun(s.db.QueryRow(query, args...).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoRuns
		}
		return nil, fmt.Errorf("last run: %w", err)
	}
	return run, nil
}

// Prune deletes the oldest runs beyond keep. A keep of zero or less
// retains everything. Returns the number of runs removed.
func (s *Store) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	result, err := s.db.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY recorded_at DESC, rowid DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}

	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return int(pruned), nil
}

// scanRun destructures one runs row via the given Scan function.
func scanRun(scan func(dest ...interface{}) error) (*Run, error) {
	var run Run
	var recordedAt string
	var passed int
	err := scan(&run.ID, &recordedAt, &run.Package,
		&run.Summary.Models, &run.Summary.ModelsWithColumnTests,
		&run.Summary.ColumnTest.Tested, &run.Summary.ColumnTest.Total, &run.Summary.ColumnTest.Percent,
		&run.Summary.UnitTest.Tested, &run.Summary.UnitTest.Total, &run.Summary.UnitTest.Percent,
		&run.Summary.Contract.Tested, &run.Summary.Contract.Total, &run.Summary.Contract.Percent,
		&passed)
	if err != nil {
		return nil, err
	}
	run.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
	run.Passed = passed != 0
	return &run, nil
}
