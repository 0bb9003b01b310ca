package adapter

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/perfettosql/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStmt_Step(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"id", "name", "score"}).
		AddRow(int64(1), "alice", 1.5).
		AddRow(int64(2), nil, 2.0)
	mock.ExpectPrepare("SELECT id").ExpectQuery().WithArgs(int64(10), "x").WillReturnRows(rows)

	stmt, err := PrepareSQL(context.Background(), db, "SELECT id, name, score FROM t WHERE a = ? AND b = ?")
	require.NoError(t, err)
	require.NoError(t, stmt.Bind(2, core.StringValue("x")))
	require.NoError(t, stmt.Bind(1, core.IntValue(10)))

	ok, err := stmt.Step()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, stmt.ColumnCount())
	assert.Equal(t, "name", stmt.ColumnName(1))
	assert.Equal(t, core.IntValue(1), stmt.Column(0))
	assert.Equal(t, core.StringValue("alice"), stmt.Column(1))
	assert.Equal(t, core.FloatValue(1.5), stmt.Column(2))

	ok, err = stmt.Step()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stmt.Column(1).IsNull())

	ok, err = stmt.Step()
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = stmt.Step()
	require.NoError(t, err)
	assert.False(t, ok, "a finished statement stays finished until Reset")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStmt_ColumnsWithoutRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectPrepare("SELECT").ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"a", "b"}))

	stmt, err := PrepareSQL(context.Background(), db, "SELECT * FROM (SELECT 1 AS a, 2 AS b) LIMIT 0")
	require.NoError(t, err)

	ok, err := stmt.Step()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, stmt.ColumnCount())
	assert.Equal(t, "b", stmt.ColumnName(1))
}

func TestSQLStmt_ResetRunsAgain(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	prep := mock.ExpectPrepare("SELECT")
	prep.ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(int64(1)))
	prep.ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(int64(2)))

	stmt, err := PrepareSQL(context.Background(), db, "SELECT v")
	require.NoError(t, err)

	ok, err := stmt.Step()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.IntValue(1), stmt.Column(0))

	require.NoError(t, stmt.Reset())
	ok, err = stmt.Step()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.IntValue(2), stmt.Column(0))

	prep.WillBeClosed()
	assert.NoError(t, stmt.Close())
}

func TestSQLStmt_Errors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectPrepare("BROKEN").WillReturnError(assert.AnError)
	_, err = PrepareSQL(context.Background(), db, "BROKEN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to prepare statement")

	mock.ExpectPrepare("SELECT").ExpectQuery().WillReturnError(assert.AnError)
	stmt, err := PrepareSQL(context.Background(), db, "SELECT 1")
	require.NoError(t, err)
	_, err = stmt.Step()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute query")
}

func TestBindings(t *testing.T) {
	var b bindings
	require.Error(t, b.bind(0, core.IntValue(1)))
	require.NoError(t, b.bind(2, core.IntValue(2)))
	require.NoError(t, b.bindNamed("$name", core.StringValue("n")))
	require.NoError(t, b.bindNamed(":alpha", core.Null))
	require.Error(t, b.bindNamed("$", core.Null))

	args := b.args()
	require.Len(t, args, 4)
	assert.Nil(t, args[0])
	assert.Equal(t, int64(2), args[1])

	nv := b.namedValues()
	require.Len(t, nv, 4)
	assert.Equal(t, 1, nv[0].Ordinal)
	assert.Equal(t, "alpha", nv[2].Name)
	assert.Equal(t, "name", nv[3].Name)
	assert.Equal(t, "n", nv[3].Value)
}
