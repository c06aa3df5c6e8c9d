package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"classattend/internal/config"
)

// Redis wraps the redis client used for the alert queue.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects using the app config. Timeouts stay short so a redis
// outage degrades the alert path instead of request handling.
func NewRedis(cfg config.App) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}
