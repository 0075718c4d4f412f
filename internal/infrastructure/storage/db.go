package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
)

// DB 本地审计库连接
type DB struct {
	*sql.DB
}

// OpenDB 打开指定路径的 SQLite 数据库，目录不存在时创建
func OpenDB(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	return db, nil
}

// ProvideDB 按配置打开审计库
func ProvideDB(cfg *config.Config) (*DB, func(), error) {
	db, err := OpenDB(cfg.StoragePath())
	if err != nil {
		return nil, nil, err
	}
	return &DB{DB: db}, func() { _ = db.Close() }, nil
}
