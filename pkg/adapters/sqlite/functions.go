package sqlite

import (
	"context"
	"database/sql/driver"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"sync"

	"github.com/leapstack-labs/perfettosql/pkg/core"
	"modernc.org/sqlite"
)

// modernc registers scalar functions for the whole process and installs
// them on connections opened afterwards. Each name is registered once with
// a trampoline; the implementation is looked up in the function table bound
// to the connection executing the call, so adapters never see each other's
// functions.
var (
	funcsMu sync.RWMutex
	known   = make(map[string]bool)
	bound   = make(map[uintptr]*functionTable)
)

// functionTable holds the implementations owned by one adapter.
type functionTable struct {
	mu    sync.RWMutex
	impls map[string]core.ScalarFunc
}

func newFunctionTable() *functionTable {
	return &functionTable{impls: make(map[string]core.ScalarFunc)}
}

func (t *functionTable) set(key string, fn core.ScalarFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.impls[key] = fn
}

func (t *functionTable) get(key string) core.ScalarFunc {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.impls[key]
}

func funcKey(name string, nargs int) string {
	return fmt.Sprintf("%s/%d", strings.ToLower(name), nargs)
}

// declareFunction makes sure a trampoline exists for name with nargs
// arguments.
func declareFunction(name string, nargs int) (string, error) {
	key := funcKey(name, nargs)

	funcsMu.Lock()
	defer funcsMu.Unlock()
	if known[key] {
		return key, nil
	}
	if err := sqlite.RegisterScalarFunction(name, int32(nargs), trampoline(name, key)); err != nil {
		return "", fmt.Errorf("failed to register function %s: %w", name, err)
	}
	known[key] = true
	return key, nil
}

func declaredNames() map[string]bool {
	funcsMu.RLock()
	defer funcsMu.RUnlock()
	return maps.Clone(known)
}

// connID identifies a modernc connection by its libc TLS, which the driver
// also passes to function callbacks running on that connection.
func connID(v any) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, false
	}
	tls := rv.Elem().FieldByName("tls")
	if !tls.IsValid() || tls.Kind() != reflect.Pointer || tls.IsNil() {
		return 0, false
	}
	return tls.Pointer(), true
}

func bindConn(conn driver.Conn, table *functionTable) error {
	id, ok := connID(conn)
	if !ok {
		return fmt.Errorf("cannot bind functions to sqlite connection of type %T", conn)
	}
	funcsMu.Lock()
	defer funcsMu.Unlock()
	bound[id] = table
	return nil
}

func unbindConn(conn driver.Conn) {
	if id, ok := connID(conn); ok {
		funcsMu.Lock()
		defer funcsMu.Unlock()
		delete(bound, id)
	}
}

func trampoline(name, key string) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(fctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		var fn core.ScalarFunc
		if id, ok := connID(fctx); ok {
			funcsMu.RLock()
			table := bound[id]
			funcsMu.RUnlock()
			if table != nil {
				fn = table.get(key)
			}
		}
		if fn == nil {
			return nil, fmt.Errorf("no such function: %s", name)
		}

		vals := make([]core.Value, len(args))
		for i, arg := range args {
			v, err := core.FromAny(arg)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		out, err := fn(context.Background(), vals)
		if err != nil {
			return nil, err
		}
		return out.Any(), nil
	}
}
