// Package core defines the shared language of the PerfettoSQL system.
//
// This package contains:
//   - Values exchanged with the backing engine (Value, ValueKind)
//   - Service interfaces (Backend, Stmt, FunctionRegistrar, Store)
//   - Configuration types (AdapterConfig)
//   - Persisted state (Run, PersistedMacro)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
