package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/leapstack-labs/perfettosql/pkg/parser"
	"github.com/leapstack-labs/perfettosql/pkg/source"
)

// executeInclude runs each module matching the key once. A module is marked
// included before it runs, so include cycles terminate, and unmarked again if
// it fails so a later include retries it. Modules must not return rows.
func (e *Engine) executeInclude(ctx context.Context, s *parser.IncludeModule) error {
	at := s.Source()
	mods, err := e.modules.Resolve(s.Key)
	if err != nil {
		return source.NewError(source.KindExecution, at, 0, "%s", err.Error())
	}

	for _, m := range mods {
		e.includes.AddNode(m.Key, m)
		if e.module != "" && e.module != m.Key {
			if err := e.includes.AddEdge(m.Key, e.module); err != nil {
				e.logger.Warn("failed to record include", slog.String("error", err.Error()))
			}
		}

		if !e.modules.MarkIncluded(m.Key) {
			continue
		}
		e.logger.Debug("including module", slog.String("module", m.Key))

		outer := e.module
		e.module = m.Key
		res, err := e.run(ctx, m.Text())
		e.module = outer
		if err != nil {
			e.modules.Unmark(m.Key)
			var se *source.Error
			if errors.As(err, &se) {
				return se.WithFrame(at, 0)
			}
			return err
		}
		if res.Stats.StatementCountWithOutput > 0 {
			e.modules.Unmark(m.Key)
			return source.NewError(source.KindExecution, at, 0,
				"INCLUDE: included module %s returned values", m.Key)
		}
	}
	return nil
}
