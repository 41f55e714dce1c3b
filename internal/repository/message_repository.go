package repository

import (
	"ai-chat-go/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

// MessageRepository 定义了消息记录的持久化操作。
type MessageRepository interface {
	SaveMessages(ctx context.Context, messages []model.Message) error
	// FindByChat 按创建时间正序返回会话的全部消息，最后一条即最新消息。
	FindByChat(ctx context.Context, chatID string) ([]model.Message, error)
	// CountUserMessagesSince 统计用户自 since 起发送的 user 角色消息数。
	CountUserMessagesSince(ctx context.Context, userID uint, since time.Time) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) SaveMessages(ctx context.Context, messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&messages).Error
}

func (r *messageRepository) FindByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

func (r *messageRepository) CountUserMessagesSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Joins("JOIN chats ON chats.id = messages.chat_id").
		Where("chats.user_id = ? AND messages.role = ? AND messages.created_at >= ?", userID, model.RoleUser, since.UTC()).
		Count(&count).Error
	return count, err
}
