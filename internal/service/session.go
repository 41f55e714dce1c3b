// Package service 包含了应用的业务逻辑层。
package service

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Session 是当前请求的登录态，由鉴权中间件产生。
type Session struct {
	UserID   uint
	Username string
	UserType model.UserType
}

// Clock 返回当前时间（UTC）。
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// loadChat 读取会话，不存在时返回 notFound。
func loadChat(ctx context.Context, repo repository.ChatRepository, chatID string, notFound *apperr.Error) (*model.Chat, error) {
	chat, err := repo.FindByID(ctx, chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("load chat %s: %w", chatID, err)
	}
	return chat, nil
}
