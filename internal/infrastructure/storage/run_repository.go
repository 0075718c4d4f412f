package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
)

// runRepository 运行审计 SQLite 仓储实现
type runRepository struct {
	db *sql.DB
}

// NewRunRepository 创建运行审计仓储，建表失败返回错误
func NewRunRepository(db *DB) (text2sql.RunRepository, error) {
	if err := initRunTable(db.DB); err != nil {
		return nil, err
	}
	return &runRepository{db: db.DB}, nil
}

// initRunTable 初始化运行审计表
func initRunTable(db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS agent_runs (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		query TEXT NOT NULL,
		resolved_query TEXT,
		sql_query TEXT,
		success INTEGER NOT NULL DEFAULT 0,
		iterations INTEGER NOT NULL DEFAULT 0,
		tool_calls INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create agent_runs table: %w", err)
	}

	createIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_agent_runs_created_at ON agent_runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_agent_runs_session ON agent_runs(session_id);`

	if _, err := db.Exec(createIndexSQL); err != nil {
		return fmt.Errorf("failed to create agent_runs indexes: %w", err)
	}
	return nil
}

// Save 保存运行记录，ID 为空时生成 UUID
func (r *runRepository) Save(ctx context.Context, run *text2sql.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	success := 0
	if run.Success {
		success = 1
	}

	query := `
		INSERT OR REPLACE INTO agent_runs
		(id, session_id, query, resolved_query, sql_query, success, iterations, tool_calls, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.SessionID,
		run.Query,
		run.ResolvedQuery,
		run.SQL,
		success,
		run.Iterations,
		run.ToolCalls,
		run.Error,
		run.DurationMS,
		run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

const runColumns = `id, session_id, query, resolved_query, sql_query, success, iterations, tool_calls, error, duration_ms, created_at`

// ListRecent 按创建时间倒序返回最近的运行
func (r *runRepository) ListRecent(ctx context.Context, limit int) ([]*text2sql.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM agent_runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*text2sql.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// FindByID 根据 ID 查找，不存在返回 nil, nil
func (r *runRepository) FindByID(ctx context.Context, id string) (*text2sql.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM agent_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*text2sql.Run, error) {
	var (
		run                               text2sql.Run
		sessionID, resolved, sqlText, msg sql.NullString
		success                           int
		createdAt                         int64
	)
	err := s.Scan(
		&run.ID,
		&sessionID,
		&run.Query,
		&resolved,
		&sqlText,
		&success,
		&run.Iterations,
		&run.ToolCalls,
		&msg,
		&run.DurationMS,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.SessionID = sessionID.String
	run.ResolvedQuery = resolved.String
	run.SQL = sqlText.String
	run.Error = msg.String
	run.Success = success == 1
	run.CreatedAt = time.UnixMilli(createdAt)
	return &run, nil
}
