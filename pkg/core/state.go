package core

import "time"

// Store defines the interface for state management operations.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(inputs []string) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, statements int, errMsg string) error
	GetLatestRun() (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	// Macro operations
	SaveMacro(m *PersistedMacro) error
	GetMacro(name string) (*PersistedMacro, error)
	ListMacros() ([]*PersistedMacro, error)
	DeleteMacro(name string) error
}

// RunStatus represents the status of a run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is one execution of a set of input files.
type Run struct {
	ID          string
	Inputs      []string
	Status      RunStatus
	Statements  int
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// MacroParam is a persisted macro parameter.
type MacroParam struct {
	Name string
	Type string
}

// PersistedMacro is a macro created with CREATE PERFETTO MACRO, stored so
// later engines can reload it.
type PersistedMacro struct {
	Name       string
	Params     []MacroParam
	Returns    string
	Body       string
	SourceName string
	UpdatedAt  time.Time
}
