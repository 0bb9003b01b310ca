package function

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/perfettosql/pkg/core"
)

type visitState int

const (
	unseen visitState = iota
	seen
	evaluating
	evaluated
)

type pass int

const (
	firstPass pass = iota
	secondPass
)

// unroller computes a memoized call tree without native recursion.
//
// The first pass walks the tree breadth first: each argument's body runs with
// nested calls answered by NULL, which only discovers the arguments they
// need. The second pass re-runs the bodies in reverse discovery order so
// every nested call finds its answer in the memo table.
type unroller struct {
	fn      *Function
	pass    pass
	queue   []int64
	stack   []int64
	visited map[int64]visitState
}

func newUnroller(fn *Function, root int64) *unroller {
	return &unroller{
		fn:      fn,
		queue:   []int64{root},
		visited: map[int64]visitState{root: seen},
	}
}

func (u *unroller) run(ctx context.Context, stmt core.Stmt) error {
	for len(u.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		arg := u.queue[0]
		u.queue = u.queue[1:]

		u.visited[arg] = evaluating
		if _, err := u.fn.evaluate(stmt, []core.Value{core.IntValue(arg)}); err != nil {
			return err
		}
		u.visited[arg] = seen
		u.stack = append(u.stack, arg)
	}

	u.pass = secondPass
	for len(u.stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		arg := u.stack[len(u.stack)-1]
		u.stack = u.stack[:len(u.stack)-1]
		if _, ok := u.fn.memo[arg]; ok {
			continue
		}

		u.visited[arg] = evaluating
		v, err := u.fn.evaluate(stmt, []core.Value{core.IntValue(arg)})
		if err != nil {
			return err
		}
		if v.Kind != core.KindInt {
			u.visited[arg] = seen
			continue
		}
		u.fn.memo[arg] = v
		u.visited[arg] = evaluated
	}

	u.fn.logger.Debug("unrolled recursive call",
		slog.String("function", u.fn.name), slog.Int("arguments", len(u.visited)))
	return nil
}

// query answers a nested call made while a body is being unrolled.
func (u *unroller) query(arg int64) (core.Value, error) {
	switch u.visited[arg] {
	case evaluating:
		return core.Null, ErrInfiniteRecursion
	case unseen:
		if u.pass == firstPass {
			u.visited[arg] = seen
			u.queue = append(u.queue, arg)
		}
	}
	return core.Null, nil
}
