package session

import (
	"context"
	"time"
)

// MaxTurns 每个会话保留的最大轮数，超出后丢弃最早的
const MaxTurns = 10

// ChatTurn 一轮对话
type ChatTurn struct {
	UserQuery     string    `json:"user_query"`
	ResolvedQuery string    `json:"resolved_query,omitempty"`
	SQL           string    `json:"sql"`
	Timestamp     time.Time `json:"timestamp"`
}

// Store 会话历史存储
// Append 必须与截断到 MaxTurns 一起原子完成
type Store interface {
	// History 返回按时间顺序排列的历史，未知会话返回空列表
	History(ctx context.Context, sessionID string) ([]ChatTurn, error)
	// Append 追加一轮并保留最近 MaxTurns 轮
	Append(ctx context.Context, sessionID string, turn ChatTurn) error
	// Clear 清空会话，未知会话为空操作
	Clear(ctx context.Context, sessionID string) error
}
