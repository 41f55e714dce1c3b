package stream

import (
	"ai-chat-go/pkg/log"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	stateActive = "active"
	stateDone   = "done"
	chunkField  = "chunk"
	readBatch   = 100
)

// RedisOptions 是 RedisBackend 的键前缀与过期策略。
type RedisOptions struct {
	KeyPrefix    string
	ActiveTTL    time.Duration
	ReclaimTTL   time.Duration
	BlockTimeout time.Duration
}

// RedisBackend 基于 Redis Streams 实现 Backend。
// 每个流对应两个键：{prefix}:{id}:state 记录 active/done，{prefix}:{id}:chunks 为 chunk 的 Stream。
type RedisBackend struct {
	rdb  redis.UniversalClient
	opts RedisOptions
}

// NewRedisBackend 创建 Redis Streams 后端。
func NewRedisBackend(rdb redis.UniversalClient, opts RedisOptions) *RedisBackend {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "resumable-stream"
	}
	if opts.ActiveTTL <= 0 {
		opts.ActiveTTL = 10 * time.Minute
	}
	if opts.ReclaimTTL <= 0 {
		opts.ReclaimTTL = 24 * time.Hour
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = 2 * time.Second
	}
	return &RedisBackend{rdb: rdb, opts: opts}
}

func (b *RedisBackend) stateKey(id string) string {
	return fmt.Sprintf("%s:%s:state", b.opts.KeyPrefix, id)
}

func (b *RedisBackend) chunksKey(id string) string {
	return fmt.Sprintf("%s:%s:chunks", b.opts.KeyPrefix, id)
}

func (b *RedisBackend) Create(ctx context.Context, id string) error {
	ok, err := b.rdb.SetNX(ctx, b.stateKey(id), stateActive, b.opts.ActiveTTL).Result()
	if err != nil {
		return fmt.Errorf("create stream %s: %w", id, err)
	}
	if !ok {
		return ErrStreamExists
	}
	return nil
}

// Append 写入一个 chunk，并刷新两个键的存活时间。
func (b *RedisBackend) Append(ctx context.Context, id string, c Chunk) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	pipe := b.rdb.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: b.chunksKey(id),
		Values: map[string]interface{}{chunkField: string(payload)},
	})
	pipe.Expire(ctx, b.chunksKey(id), b.opts.ActiveTTL)
	pipe.Expire(ctx, b.stateKey(id), b.opts.ActiveTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append to stream %s: %w", id, err)
	}
	return nil
}

// Close 将流标记为 done，已缓冲的 chunk 保留 ReclaimTTL 后过期。
func (b *RedisBackend) Close(ctx context.Context, id string) error {
	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, b.stateKey(id), stateDone, b.opts.ReclaimTTL)
	pipe.Expire(ctx, b.chunksKey(id), b.opts.ReclaimTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("close stream %s: %w", id, err)
	}
	return nil
}

func (b *RedisBackend) Subscribe(ctx context.Context, id string) (<-chan Chunk, bool, error) {
	state, err := b.rdb.Get(ctx, b.stateKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read stream state %s: %w", id, err)
	}
	if state != stateActive {
		return nil, false, nil
	}

	out := make(chan Chunk)
	go b.follow(ctx, id, out)
	return out, true, nil
}

// follow 从头读取 chunk Stream，直到读到结束标记或流不再活跃。
func (b *RedisBackend) follow(ctx context.Context, id string, out chan<- Chunk) {
	defer close(out)
	lastID := "0-0"
	for {
		msgs, err := b.read(ctx, id, lastID, b.opts.BlockTimeout)
		if err != nil {
			if ctx.Err() == nil {
				log.Errorw("读取 Redis Stream 失败", "streamId", id, "error", err)
			}
			return
		}
		if len(msgs) == 0 {
			state, err := b.rdb.Get(ctx, b.stateKey(id)).Result()
			if err != nil || state != stateActive {
				// 发布者已关闭或已过期：分页补读关闭前写入的剩余数据。
				b.catchUp(ctx, id, lastID, out)
				return
			}
			continue
		}
		var finished bool
		lastID, finished = b.deliver(ctx, msgs, out)
		if finished {
			return
		}
	}
}

func (b *RedisBackend) catchUp(ctx context.Context, id, lastID string, out chan<- Chunk) {
	for {
		rest, err := b.read(ctx, id, lastID, -1)
		if err != nil || len(rest) == 0 {
			return
		}
		var finished bool
		if lastID, finished = b.deliver(ctx, rest, out); finished {
			return
		}
	}
}

// read 读取 lastID 之后的消息。block 为负数时不阻塞；超时返回空切片。
func (b *RedisBackend) read(ctx context.Context, id, lastID string, block time.Duration) ([]redis.XMessage, error) {
	res, err := b.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{b.chunksKey(id), lastID},
		Count:   readBatch,
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res[0].Messages, nil
}

// deliver 依次投递消息，返回最后投递的消息 ID 以及读者是否应当结束。
func (b *RedisBackend) deliver(ctx context.Context, msgs []redis.XMessage, out chan<- Chunk) (string, bool) {
	var lastID string
	for _, m := range msgs {
		lastID = m.ID
		raw, _ := m.Values[chunkField].(string)
		var c Chunk
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			log.Warnw("跳过无法解析的 chunk", "entryId", m.ID, "error", err)
			continue
		}
		select {
		case out <- c:
		case <-ctx.Done():
			return lastID, true
		}
		if c.IsTerminator() {
			return lastID, true
		}
	}
	return lastID, false
}
