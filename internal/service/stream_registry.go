package service

import (
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"context"
	"fmt"

	"github.com/google/uuid"
)

// StreamRegistry 维护会话到流 ID 的只追加列表，最后一个即当前流。
type StreamRegistry struct {
	repo repository.StreamRepository
	now  Clock
}

// NewStreamRegistry 创建 StreamRegistry。
func NewStreamRegistry(repo repository.StreamRepository, now Clock) *StreamRegistry {
	if now == nil {
		now = utcNow
	}
	return &StreamRegistry{repo: repo, now: now}
}

// Mint 为会话铸造一个新的流 ID。每次生成尝试调用一次，且在生产者启动之前调用。
func (r *StreamRegistry) Mint(ctx context.Context, chatID string) (string, error) {
	id := uuid.NewString()
	if err := r.repo.Mint(ctx, &model.StreamID{ID: id, ChatID: chatID, CreatedAt: r.now()}); err != nil {
		return "", fmt.Errorf("mint stream id for chat %s: %w", chatID, err)
	}
	return id, nil
}

// List 按铸造顺序返回会话的全部流 ID。
func (r *StreamRegistry) List(ctx context.Context, chatID string) ([]string, error) {
	return r.repo.FindByChat(ctx, chatID)
}

// Latest 返回最近铸造的流 ID。
func (r *StreamRegistry) Latest(ctx context.Context, chatID string) (string, bool, error) {
	ids, err := r.List(ctx, chatID)
	if err != nil || len(ids) == 0 {
		return "", false, err
	}
	return ids[len(ids)-1], true, nil
}
