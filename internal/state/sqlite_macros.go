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

const macroColumns = `name, params, returns, body, source_name, updated_at`

// SaveMacro inserts or replaces a macro definition.
func (s *SQLiteStore) SaveMacro(m *core.PersistedMacro) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if m.Name == "" {
		return fmt.Errorf("macro name is required")
	}

	params := m.Params
	if params == nil {
		params = []core.MacroParam{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	m.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(
		`INSERT INTO macros (`+macroColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   params = excluded.params,
		   returns = excluded.returns,
		   body = excluded.body,
		   source_name = excluded.source_name,
		   updated_at = excluded.updated_at`,
		m.Name, string(paramsJSON), m.Returns, m.Body, m.SourceName, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save macro: %w", err)
	}

	s.logger.Debug("saved macro", slog.String("name", m.Name))
	return nil
}

// GetMacro returns the macro with the given name, or nil if it is not stored.
func (s *SQLiteStore) GetMacro(name string) (*core.PersistedMacro, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	m, err := scanMacro(s.db.QueryRow(`SELECT `+macroColumns+` FROM macros WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get macro: %w", err)
	}
	return m, nil
}

// ListMacros returns every stored macro ordered by name.
func (s *SQLiteStore) ListMacros() ([]*core.PersistedMacro, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT ` + macroColumns + ` FROM macros ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list macros: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var macros []*core.PersistedMacro
	for rows.Next() {
		m, err := scanMacro(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan macro: %w", err)
		}
		macros = append(macros, m)
	}
	return macros, rows.Err()
}

// DeleteMacro removes a macro. Deleting a missing macro is not an error.
func (s *SQLiteStore) DeleteMacro(name string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.Exec(`DELETE FROM macros WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete macro: %w", err)
	}
	return nil
}

func scanMacro(row scanner) (*core.PersistedMacro, error) {
	var (
		m      core.PersistedMacro
		params string
	)
	if err := row.Scan(&m.Name, &params, &m.Returns, &m.Body, &m.SourceName, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &m.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params: %w", err)
	}
	return &m, nil
}
