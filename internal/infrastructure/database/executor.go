package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// ErrReadOnly 只读模式下拒绝的语句
var ErrReadOnly = errors.New("only read-only statements are allowed")

// readOnlyPrefix 允许的语句开头
var readOnlyPrefix = regexp.MustCompile(`(?is)^\s*(select|with|show|explain|describe|desc|pragma)\b`)

// driverName 配置驱动名到 database/sql 驱动名
func driverName(driver string) (string, error) {
	switch driver {
	case config.DriverSQLite:
		return "sqlite", nil
	case config.DriverPostgres:
		return "pgx", nil
	case config.DriverMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open 打开目标业务库
func Open(cfg *config.DatabaseConfig) (*sql.DB, error) {
	name, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(name, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// Executor 在目标库上执行生成的 SQL
type Executor struct {
	db       *sql.DB
	maxRows  int
	timeout  time.Duration
	readOnly bool
	logger   *slog.Logger
}

// NewExecutor 创建执行器
func NewExecutor(db *sql.DB, cfg *config.DatabaseConfig) *Executor {
	return &Executor{
		db:       db,
		maxRows:  cfg.MaxRows,
		timeout:  cfg.QueryTimeout,
		readOnly: cfg.ReadOnly,
		logger:   log.NewModuleLogger("database", "executor"),
	}
}

// ProvideExecutor 打开目标库并创建执行器
func ProvideExecutor(cfg *config.DatabaseConfig) (*Executor, func(), error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewExecutor(db, cfg), func() { _ = db.Close() }, nil
}

// hasStatementSeparator 引号外是否还有分号
func hasStatementSeparator(query string) bool {
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == ';':
			return true
		}
	}
	return false
}

// Ping 检查连接
func (e *Executor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Execute 执行查询，失败以结果值返回
func (e *Executor) Execute(ctx context.Context, query string) *text2sql.ExecutionResult {
	query = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if query == "" {
		return text2sql.Failed(errors.New("empty SQL statement"))
	}
	if e.readOnly && (!readOnlyPrefix.MatchString(query) || hasStatementSeparator(query)) {
		return text2sql.Failed(ErrReadOnly)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logger := log.FromContext(ctx, e.logger)
	start := time.Now()

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		logger.Warn("SQL execution failed", "error", err)
		return text2sql.Failed(err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return text2sql.Failed(fmt.Errorf("failed to read columns: %w", err))
	}

	data := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if e.maxRows > 0 && len(data) >= e.maxRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return text2sql.Failed(fmt.Errorf("failed to scan row: %w", err))
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		logger.Warn("SQL execution failed while reading rows", "error", err)
		return text2sql.Failed(err)
	}

	logger.Info("SQL executed",
		"rows", len(data),
		"truncated", truncated,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &text2sql.ExecutionResult{
		Success:  true,
		Data:     data,
		Columns:  columns,
		RowCount: len(data),
	}
}

// normalizeValue 驱动返回的 []byte 转字符串，时间转 RFC3339
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}
