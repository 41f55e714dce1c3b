// Package repository 提供了数据访问层的实现。
package repository

import (
	"ai-chat-go/internal/model"
	"context"

	"gorm.io/gorm"
)

// ChatRepository 定义了会话记录的持久化操作。
type ChatRepository interface {
	Create(ctx context.Context, chat *model.Chat) error
	FindByID(ctx context.Context, id string) (*model.Chat, error)
	FindByUser(ctx context.Context, userID uint, offset, limit int) ([]model.Chat, int64, error)
	UpdateTitle(ctx context.Context, id, title string) error
	UpdateVisibility(ctx context.Context, id string, visibility model.Visibility) error
	// DeleteByID 级联删除会话的消息、投票和流 ID，返回被删除的会话。
	DeleteByID(ctx context.Context, id string) (*model.Chat, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Create(ctx context.Context, chat *model.Chat) error {
	return r.db.WithContext(ctx).Create(chat).Error
}

// FindByID 查找会话，不存在时返回 gorm.ErrRecordNotFound。
func (r *chatRepository) FindByID(ctx context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindByUser 按创建时间倒序分页列出用户的会话。
func (r *chatRepository) FindByUser(ctx context.Context, userID uint, offset, limit int) ([]model.Chat, int64, error) {
	var chats []model.Chat
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Chat{}).Where("user_id = ?", userID).Session(&gorm.Session{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&chats).Error; err != nil {
		return nil, 0, err
	}
	return chats, total, nil
}

func (r *chatRepository) UpdateTitle(ctx context.Context, id, title string) error {
	return r.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", id).Update("title", title).Error
}

func (r *chatRepository) UpdateVisibility(ctx context.Context, id string, visibility model.Visibility) error {
	return r.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", id).Update("visibility", visibility).Error
}

func (r *chatRepository) DeleteByID(ctx context.Context, id string) (*model.Chat, error) {
	var deleted model.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&deleted).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", id).Delete(&model.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", id).Delete(&model.StreamID{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Chat{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}
