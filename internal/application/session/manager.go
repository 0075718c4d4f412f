package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/session"
	"github.com/marshnicholas123/nlq-demo/internal/domain/text2sql"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// 会话上下文参数
const (
	// contextTurns 对话上下文包含的轮数
	contextTurns = 5
	// resolutionTurns LLM 改写使用的轮数
	resolutionTurns = 3
	// sqlPreviewLen 对话上下文中 SQL 的截断长度
	sqlPreviewLen = 200
	// followupMaxWords 启发式判定为追问的最大词数
	followupMaxWords = 10
	// followupJoin 启发式改写的连接词，出现即视为已改写
	followupJoin = ". Additionally: "
)

// NoHistoryContext 无历史时的对话上下文
const NoHistoryContext = "Conversation History: None (this is the first question)"

// followupCues 提示追问的开头短语
var followupCues = []string{
	"what about",
	"how about",
	"and for",
	"and in",
	"in",
	"show me",
	"can you",
	"what are",
	"list",
	"tell me",
}

// Manager 会话上下文管理
type Manager struct {
	store     domain.Store
	completer text2sql.Completer
	maxTokens int
	locksMu   sync.Mutex
	locks     map[string]*sessionLock
	logger    *slog.Logger
}

// sessionLock 引用计数的会话锁，最后一个持有者释放时移除
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager 创建会话管理器，completer 仅 LLM 改写使用
func NewManager(store domain.Store, completer text2sql.Completer, cfg *config.AgentConfig) *Manager {
	return &Manager{
		store:     store,
		completer: completer,
		maxTokens: cfg.ResolutionMaxTokens,
		locks:     make(map[string]*sessionLock),
		logger:    log.NewModuleLogger("session", "manager"),
	}
}

// Lock 获取会话锁，返回解锁函数；同一会话的整轮处理串行执行
func (m *Manager) Lock(sessionID string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		m.locks[sessionID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			m.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(m.locks, sessionID)
			}
			m.locksMu.Unlock()
		})
	}
}

// activeLocks 当前持有或等待中的会话锁数量
func (m *Manager) activeLocks() int {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	return len(m.locks)
}

// History 会话历史，未知会话返回空列表
func (m *Manager) History(ctx context.Context, sessionID string) ([]domain.ChatTurn, error) {
	history, err := m.store.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return history, nil
}

// Append 追加一轮
func (m *Manager) Append(ctx context.Context, sessionID string, turn domain.ChatTurn) error {
	if err := m.store.Append(ctx, sessionID, turn); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// Clear 清空会话
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	if err := m.store.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.logger.Info("Session cleared", "session_id", sessionID)
	return nil
}

// Resolve 按指定方式改写追问
func (m *Manager) Resolve(ctx context.Context, mode, query string, history []domain.ChatTurn) string {
	if mode == config.ResolverLLM {
		return m.ResolveWithLLM(ctx, query, history)
	}
	return ResolveHeuristic(query, history)
}

// ResolveHeuristic 启发式追问改写
// 以提示短语开头且少于 10 个词的查询，拼接上一轮用户问题
func ResolveHeuristic(query string, history []domain.ChatTurn) string {
	if len(history) == 0 {
		return query
	}
	if strings.Contains(query, strings.TrimSpace(followupJoin)) {
		return query
	}
	if !isFollowup(query) {
		return query
	}
	last := history[len(history)-1]
	return last.UserQuery + followupJoin + query
}

// isFollowup 是否像追问
func isFollowup(query string) bool {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 || len(words) >= followupMaxWords {
		return false
	}
	lower := strings.Join(words, " ")
	for _, cue := range followupCues {
		if lower == cue || strings.HasPrefix(lower, cue+" ") {
			return true
		}
	}
	return false
}

// ResolveWithLLM 让模型把追问改写为独立问题
// 模型失败或返回空时原样返回查询
func (m *Manager) ResolveWithLLM(ctx context.Context, query string, history []domain.ChatTurn) string {
	if len(history) == 0 || m.completer == nil {
		return query
	}

	recent := history
	if len(recent) > resolutionTurns {
		recent = recent[len(recent)-resolutionTurns:]
	}

	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for i, t := range recent {
		fmt.Fprintf(&b, "%d. User: %s\n   SQL: %s\n", i+1, t.UserQuery, truncate(t.SQL, sqlPreviewLen))
	}
	fmt.Fprintf(&b, "\nNew question: %s\n\n", query)
	b.WriteString("If the new question is a follow-up that depends on the conversation, rewrite it as a single standalone question. " +
		"If it is already standalone, return it unchanged. Return only the question.")

	system := "You rewrite follow-up questions about a database into standalone questions."
	out, err := m.completer.Invoke(ctx, b.String(), system, m.maxTokens)
	if err != nil {
		log.FromContext(ctx, m.logger).Warn("LLM follow-up resolution failed, using original query", "error", err)
		return query
	}

	resolved := strings.Trim(strings.TrimSpace(out), "\"'`")
	if resolved == "" {
		return query
	}
	return resolved
}

// ConversationContext 渲染最近 5 轮对话供生成提示使用
func ConversationContext(history []domain.ChatTurn) string {
	if len(history) == 0 {
		return NoHistoryContext
	}
	recent := history
	if len(recent) > contextTurns {
		recent = recent[len(recent)-contextTurns:]
	}

	var b strings.Builder
	b.WriteString("Conversation History:\n")
	for i, t := range recent {
		fmt.Fprintf(&b, "\nTurn %d:\n  User: %s\n", i+1, t.UserQuery)
		if t.ResolvedQuery != "" && t.ResolvedQuery != t.UserQuery {
			fmt.Fprintf(&b, "  Interpreted as: %s\n", t.ResolvedQuery)
		}
		fmt.Fprintf(&b, "  SQL: %s\n", truncate(t.SQL, sqlPreviewLen))
	}
	return b.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
