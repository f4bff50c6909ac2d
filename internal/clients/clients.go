package clients

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ANADelta/AlphaClassBot-App2/internal/config"
	"github.com/ANADelta/AlphaClassBot-App2/internal/llm"
)

// Clients bundles the external collaborators: the inference backend and the
// optional redis cache. Redis is absent when REDIS_ADDR is unset.
type Clients struct {
	AI    *llm.Client
	Redis *redis.Client
}

func New(ctx context.Context, cfg config.Config) (*Clients, error) {
	c := &Clients{
		AI: llm.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITimeout),
	}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, err
		}
		c.Redis = redisClient
	}
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
