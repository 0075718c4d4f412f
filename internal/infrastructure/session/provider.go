package session

import (
	"context"
	"time"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/session"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// ProvideStore 按配置选择会话存储
func ProvideStore(cfg *config.SessionConfig) (domain.Store, func(), error) {
	logger := log.NewModuleLogger("session", "store")

	if cfg.Backend != config.BackendRedis {
		logger.Info("Using in-memory session store", "ttl", cfg.TTL)
		return NewMemoryStore(cfg.TTL), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Using redis session store", "ttl", cfg.TTL)
	return NewRedisStore(client, cfg.TTL), func() { _ = client.Close() }, nil
}
