package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
)

func setupExecutor(t *testing.T, readOnly bool, maxRows int) *Executor {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "target.db"),
		MaxRows:      maxRows,
		QueryTimeout: 5 * time.Second,
		ReadOnly:     readOnly,
	}
	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	seed(t, db)
	return NewExecutor(db, cfg)
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE countries (Code TEXT PRIMARY KEY, Name TEXT NOT NULL)`,
		`CREATE TABLE nuclear_power_plants (Id INTEGER PRIMARY KEY, Name TEXT, CountryCode TEXT, StatusId INTEGER, Capacity INTEGER)`,
		`INSERT INTO countries VALUES ('FR', 'France'), ('CN', 'China')`,
		`INSERT INTO nuclear_power_plants VALUES (1, 'Flamanville', 'FR', 3, 1330), (2, 'Taishan', 'CN', 3, 1750), (3, 'Fessenheim', 'FR', 5, 880)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
}

func TestExecute_Select(t *testing.T) {
	e := setupExecutor(t, true, 100)

	res := e.Execute(context.Background(), "SELECT Name, Capacity FROM nuclear_power_plants WHERE StatusId = 3 ORDER BY Id;")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, []string{"Name", "Capacity"}, res.Columns)
	assert.Equal(t, "Flamanville", res.Data[0]["Name"])
	assert.EqualValues(t, 1750, res.Data[1]["Capacity"])
}

func TestExecute_EmptyResultIsSuccess(t *testing.T) {
	e := setupExecutor(t, true, 100)

	res := e.Execute(context.Background(), "SELECT * FROM countries WHERE Code = 'XX'")
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.RowCount)
	assert.Empty(t, res.Error)
}

func TestExecute_ErrorsAsValues(t *testing.T) {
	e := setupExecutor(t, true, 100)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"unknown column", "SELECT Foo FROM countries", "no such column"},
		{"unknown table", "SELECT * FROM reactors", "no such table"},
		{"empty", "  ;", "empty SQL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Execute(context.Background(), tt.query)
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, tt.want)
		})
	}
}

func TestExecute_ReadOnlyGuard(t *testing.T) {
	e := setupExecutor(t, true, 100)

	res := e.Execute(context.Background(), "DELETE FROM countries")
	assert.False(t, res.Success)
	assert.Equal(t, ErrReadOnly.Error(), res.Error)

	res = e.Execute(context.Background(), "  with c AS (SELECT * FROM countries) SELECT COUNT(*) AS n FROM c")
	assert.True(t, res.Success, res.Error)
}

func TestExecute_RejectsStackedStatements(t *testing.T) {
	e := setupExecutor(t, true, 100)

	res := e.Execute(context.Background(), "SELECT 1; DROP TABLE countries")
	assert.False(t, res.Success)
	assert.Equal(t, ErrReadOnly.Error(), res.Error)

	res = e.Execute(context.Background(), "SELECT COUNT(*) AS n FROM countries")
	require.True(t, res.Success, "表仍然存在: %s", res.Error)
	assert.EqualValues(t, 2, res.Data[0]["n"])

	// 字符串内的分号与结尾分号不算多语句
	res = e.Execute(context.Background(), "SELECT Name FROM countries WHERE Name <> 'a;b';")
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.RowCount)
}

func TestHasStatementSeparator(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT 1", false},
		{"SELECT 1; DROP TABLE t", true},
		{"SELECT ';' AS s", false},
		{`SELECT "a;b" FROM t`, false},
		{"SELECT 'it''s'; DELETE FROM t", true},
		{"SELECT `x;y` FROM t", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, hasStatementSeparator(tt.query))
		})
	}
}

func TestExecute_MaxRows(t *testing.T) {
	e := setupExecutor(t, true, 2)

	res := e.Execute(context.Background(), "SELECT * FROM nuclear_power_plants")
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.RowCount)
}

func TestExecute_CancelledContext(t *testing.T) {
	e := setupExecutor(t, true, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Execute(ctx, "SELECT * FROM countries")
	assert.False(t, res.Success)
}

func TestDriverName(t *testing.T) {
	for driver, want := range map[string]string{"sqlite": "sqlite", "postgres": "pgx", "mysql": "mysql"} {
		got, err := driverName(driver)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := driverName("oracle")
	assert.True(t, err != nil && !errors.Is(err, ErrReadOnly))
}
