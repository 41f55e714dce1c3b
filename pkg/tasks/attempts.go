package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// MaxAttempts 是同一任务允许失败的最大次数。
const MaxAttempts = 3

// Attempts 记录任务失败次数。配置了 Redis 时计数跨进程共享，否则只在进程内有效。
type Attempts struct {
	rdb redis.UniversalClient
	ttl time.Duration

	mu    sync.Mutex
	local map[string]int64
}

// NewAttempts 创建失败计数器，rdb 可以为 nil。
func NewAttempts(rdb redis.UniversalClient) *Attempts {
	return &Attempts{rdb: rdb, ttl: 24 * time.Hour, local: make(map[string]int64)}
}

func attemptsKey(key string) string {
	return fmt.Sprintf("kafka:attempts:%s", key)
}

// Fail 记录一次失败并返回累计次数。
func (a *Attempts) Fail(ctx context.Context, key string) (int64, error) {
	if a.rdb == nil {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.local[key]++
		return a.local[key], nil
	}
	n, err := a.rdb.Incr(ctx, attemptsKey(key)).Result()
	if err != nil {
		return 0, err
	}
	_ = a.rdb.Expire(ctx, attemptsKey(key), a.ttl).Err()
	return n, nil
}

// Reset 清除失败计数。
func (a *Attempts) Reset(ctx context.Context, key string) {
	if a.rdb == nil {
		a.mu.Lock()
		delete(a.local, key)
		a.mu.Unlock()
		return
	}
	_ = a.rdb.Del(ctx, attemptsKey(key)).Err()
}
