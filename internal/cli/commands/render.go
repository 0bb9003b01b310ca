package commands

import (
	"github.com/leapstack-labs/perfettosql/internal/cli/output"
	"github.com/leapstack-labs/perfettosql/pkg/core"
)

// renderStrings renders a listing through the result renderer, so listings
// honor --output like query results do.
func renderStrings(r *output.Renderer, cols []string, rows [][]string) error {
	values := make([][]core.Value, len(rows))
	for i, row := range rows {
		values[i] = make([]core.Value, len(row))
		for j, cell := range row {
			values[i][j] = core.StringValue(cell)
		}
	}
	return r.Result(cols, values)
}
