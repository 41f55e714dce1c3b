package repository

import (
	"ai-chat-go/internal/model"
	"context"

	"gorm.io/gorm"
)

// StreamRepository 记录会话下铸造过的流 ID。只追加，没有更新和删除接口，
// 删除随会话级联发生。
type StreamRepository interface {
	Mint(ctx context.Context, record *model.StreamID) error
	// FindByChat 按铸造顺序返回流 ID。
	FindByChat(ctx context.Context, chatID string) ([]string, error)
}

type streamRepository struct {
	db *gorm.DB
}

// NewStreamRepository 创建一个新的 StreamRepository 实例。
func NewStreamRepository(db *gorm.DB) StreamRepository {
	return &streamRepository{db: db}
}

func (r *streamRepository) Mint(ctx context.Context, record *model.StreamID) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *streamRepository) FindByChat(ctx context.Context, chatID string) ([]string, error) {
	var records []model.StreamID
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}
