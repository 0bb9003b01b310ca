package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/perfettosql/pkg/core"
)

const runColumns = `id, inputs, status, statements, started_at, completed_at, error`

// CreateRun records the start of a run over the given input files.
func (s *SQLiteStore) CreateRun(inputs []string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if inputs == nil {
		inputs = []string{}
	}

	run := &core.Run{
		ID:        generateID(),
		Inputs:    inputs,
		Status:    core.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inputs: %w", err)
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.Int("inputs", len(inputs)))

	_, err = s.db.Exec(
		`INSERT INTO runs (id, inputs, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(inputsJSON), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, statements int, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, statements = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), statements, time.Now().UTC(), nullableString(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	s.logger.Debug("completed run",
		slog.String("id", id),
		slog.String("status", string(status)),
		slog.Int("statements", statements))
	return nil
}

// GetLatestRun returns the most recently started run, or nil if there are none.
func (s *SQLiteStore) GetLatestRun() (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run, err := scanRun(s.db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*core.Run, error) {
	var (
		run         core.Run
		inputs      string
		status      string
		completedAt sql.NullTime
		errMsg      sql.NullString
	)
	if err := row.Scan(&run.ID, &inputs, &status, &run.Statements, &run.StartedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inputs), &run.Inputs); err != nil {
		return nil, fmt.Errorf("failed to decode inputs: %w", err)
	}
	run.Status = core.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	return &run, nil
}
