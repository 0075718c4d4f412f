package session

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/session"
)

// record 单个会话的历史
type record struct {
	turns []domain.ChatTurn
}

// MemoryStore 进程内会话存储，空闲超过 ttl 的会话被淘汰
type MemoryStore struct {
	cache *cache.Cache
	mu    sync.Mutex
}

// NewMemoryStore 创建内存会话存储，ttl <= 0 表示永不过期
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	expiration := ttl
	cleanup := 10 * time.Minute
	if ttl <= 0 {
		expiration = cache.NoExpiration
		cleanup = 0
	}
	return &MemoryStore{cache: cache.New(expiration, cleanup)}
}

// load 取出或惰性创建会话记录，调用方持有 mu
func (s *MemoryStore) load(sessionID string) *record {
	if x, found := s.cache.Get(sessionID); found {
		return x.(*record)
	}
	rec := &record{}
	s.cache.SetDefault(sessionID, rec)
	return rec
}

// History 返回历史副本
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]domain.ChatTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.load(sessionID)
	out := make([]domain.ChatTurn, len(rec.turns))
	copy(out, rec.turns)
	return out, nil
}

// Append 追加并截断到 MaxTurns，同时刷新过期时间
func (s *MemoryStore) Append(_ context.Context, sessionID string, turn domain.ChatTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.load(sessionID)
	rec.turns = append(rec.turns, turn)
	if over := len(rec.turns) - domain.MaxTurns; over > 0 {
		rec.turns = append([]domain.ChatTurn(nil), rec.turns[over:]...)
	}
	s.cache.SetDefault(sessionID, rec)
	return nil
}

// Clear 删除会话，未知会话为空操作
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(sessionID)
	return nil
}

// Len 当前会话数
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
