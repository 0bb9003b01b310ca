package sqlite

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/leapstack-labs/perfettosql/pkg/core"
	"modernc.org/sqlite/vtab"
)

// tableFunctionModule is the virtual table module behind every table
// function. Its single argument is the tag of the owning adapter.
const tableFunctionModule = "perfetto_table_function"

// maxTableFunctionArgs keeps the argument bitmask within an int32 idxNum.
const maxTableFunctionArgs = 30

func init() {
	if err := vtab.RegisterModule(nil, tableFunctionModule, tableFunctionVTabModule{}); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", tableFunctionModule, err))
	}
}

var (
	ownersMu sync.RWMutex
	owners   = make(map[string]*tableFunctions)
)

// tableFunctions holds the table functions owned by one adapter.
type tableFunctions struct {
	mu  sync.RWMutex
	fns map[string]*core.TableFunction
}

func newTableFunctions() *tableFunctions {
	return &tableFunctions{fns: make(map[string]*core.TableFunction)}
}

// set stores fn and returns the function it replaced, if any.
func (t *tableFunctions) set(fn *core.TableFunction) *core.TableFunction {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := strings.ToLower(fn.Name)
	prev := t.fns[key]
	t.fns[key] = fn
	return prev
}

// restore undoes set.
func (t *tableFunctions) restore(name string, prev *core.TableFunction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev == nil {
		delete(t.fns, strings.ToLower(name))
		return
	}
	t.fns[strings.ToLower(name)] = prev
}

func (t *tableFunctions) get(name string) *core.TableFunction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fns[strings.ToLower(name)]
}

func ownTableFunctions(tag string, t *tableFunctions) {
	ownersMu.Lock()
	defer ownersMu.Unlock()
	owners[tag] = t
}

func disownTableFunctions(tag string) {
	ownersMu.Lock()
	defer ownersMu.Unlock()
	delete(owners, tag)
}

// lookupTableFunction resolves the function declared by
// CREATE VIRTUAL TABLE name USING perfetto_table_function('tag').
func lookupTableFunction(tag, name string) (*core.TableFunction, error) {
	ownersMu.RLock()
	fns := owners[tag]
	ownersMu.RUnlock()
	if fns == nil {
		return nil, fmt.Errorf("table function %s belongs to a closed session", name)
	}
	fn := fns.get(name)
	if fn == nil {
		return nil, fmt.Errorf("no such table function: %s", name)
	}
	return fn, nil
}

type tableFunctionVTabModule struct{}

func (m tableFunctionVTabModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

// Connect declares the function's columns followed by one hidden column per
// argument, so name(a, b) in a FROM clause binds a and b to the arguments.
func (tableFunctionVTabModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("%s expects the owning session tag as its only argument", tableFunctionModule)
	}
	name := args[2]
	tag := strings.Trim(strings.TrimSpace(args[3]), `'"`)
	fn, err := lookupTableFunction(tag, name)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(fn.Columns)+len(fn.Args))
	for _, c := range fn.Columns {
		cols = append(cols, quoteIdent(c))
	}
	for _, a := range fn.Args {
		cols = append(cols, quoteIdent("$"+a)+" HIDDEN")
	}
	if err := ctx.Declare("CREATE TABLE x(" + strings.Join(cols, ", ") + ")"); err != nil {
		return nil, fmt.Errorf("failed to declare table function %s: %w", name, err)
	}
	return &tableFunctionVTab{tag: tag, name: name, ncols: len(fn.Columns), nargs: len(fn.Args)}, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// tableFunctionVTab is one declaration of a table function. The function is
// resolved again on every scan so a replacement takes effect at once.
type tableFunctionVTab struct {
	tag   string
	name  string
	ncols int
	nargs int
}

// BestIndex consumes equality constraints on the argument columns. idxNum is
// the bitmask of the arguments present; Filter receives their values in
// argument order. A plan that leaves a constrained argument unusable is made
// expensive so SQLite evaluates the constraint first.
func (t *tableFunctionVTab) BestIndex(info *vtab.IndexInfo) error {
	chosen := make([]int, t.nargs)
	for i := range chosen {
		chosen[i] = -1
	}
	blocked := false
	for i, c := range info.Constraints {
		arg := c.Column - t.ncols
		if arg < 0 || arg >= t.nargs || c.Op != vtab.OpEQ {
			continue
		}
		if !c.Usable {
			blocked = true
			continue
		}
		if chosen[arg] < 0 {
			chosen[arg] = i
		}
	}

	var mask int64
	next := 0
	for arg, i := range chosen {
		if i < 0 {
			continue
		}
		mask |= 1 << arg
		info.Constraints[i].ArgIndex = next
		info.Constraints[i].Omit = true
		next++
	}
	info.IdxNum = mask

	missing := t.nargs - next
	switch {
	case missing > 0 && blocked:
		info.EstimatedCost = 1e18
		info.EstimatedRows = 1 << 40
	default:
		info.EstimatedCost = float64(1 + 1000*missing)
		info.EstimatedRows = 100
	}
	return nil
}

func (t *tableFunctionVTab) Open() (vtab.Cursor, error) {
	return &tableFunctionCursor{t: t}, nil
}

func (t *tableFunctionVTab) Disconnect() error { return nil }

func (t *tableFunctionVTab) Destroy() error { return nil }

// tableFunctionCursor materializes the rows of one call.
type tableFunctionCursor struct {
	t    *tableFunctionVTab
	args []core.Value
	rows [][]core.Value
	pos  int
}

// Filter runs the function. Arguments absent from the query are NULL.
func (c *tableFunctionCursor) Filter(idxNum int, _ string, vals []vtab.Value) error {
	fn, err := lookupTableFunction(c.t.tag, c.t.name)
	if err != nil {
		return err
	}

	c.args = make([]core.Value, c.t.nargs)
	next := 0
	for arg := range c.args {
		if idxNum&(1<<arg) == 0 || next >= len(vals) {
			continue
		}
		v, err := core.FromAny(vals[next])
		if err != nil {
			return fmt.Errorf("table function %s: %w", c.t.name, err)
		}
		c.args[arg] = v
		next++
	}

	rows, err := fn.Call(context.Background(), c.args)
	if err != nil {
		return err
	}
	c.rows, c.pos = rows, 0
	return nil
}

func (c *tableFunctionCursor) Next() error {
	c.pos++
	return nil
}

func (c *tableFunctionCursor) Eof() bool { return c.pos >= len(c.rows) }

func (c *tableFunctionCursor) Column(col int) (vtab.Value, error) {
	if col >= c.t.ncols {
		return c.args[col-c.t.ncols].Any(), nil
	}
	row := c.rows[c.pos]
	if col >= len(row) {
		return nil, nil
	}
	return row[col].Any(), nil
}

func (c *tableFunctionCursor) Rowid() (int64, error) { return int64(c.pos), nil }

func (c *tableFunctionCursor) Close() error {
	c.rows, c.args = nil, nil
	return nil
}
