package service

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"ai-chat-go/internal/stream"
	"ai-chat-go/pkg/log"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ResumeResult 是一次续传请求的结果。Unavailable 为 true 时没有可用的通道后端。
type ResumeResult struct {
	Unavailable bool
	Stream      <-chan stream.Chunk
}

// ResumeService 处理断线重连。
type ResumeService interface {
	// Resume 为会话最近的流返回一个读者；流已关闭时回退为重放最后一条助手消息。
	Resume(ctx context.Context, sess *Session, chatID string, requestedAt time.Time) (*ResumeResult, error)
}

type resumeService struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	streams  *StreamRegistry
	manager  *stream.Manager
	window   time.Duration
}

// NewResumeService 创建 ResumeService，window 为回退重放允许的最大消息年龄。
func NewResumeService(chats repository.ChatRepository, messages repository.MessageRepository, streams *StreamRegistry, manager *stream.Manager, window time.Duration) ResumeService {
	return &resumeService{
		chats:    chats,
		messages: messages,
		streams:  streams,
		manager:  manager,
		window:   window,
	}
}

func (s *resumeService) Resume(ctx context.Context, sess *Session, chatID string, requestedAt time.Time) (*ResumeResult, error) {
	if !s.manager.Available(ctx) {
		return &ResumeResult{Unavailable: true}, nil
	}
	if chatID == "" {
		return nil, apperr.New(apperr.KindBadRequest, apperr.DomainAPI, "Parameter id is required.")
	}
	if sess == nil {
		return nil, apperr.New(apperr.KindUnauthorized, apperr.DomainChat)
	}
	chat, err := loadChat(ctx, s.chats, chatID, apperr.New(apperr.KindNotFound, apperr.DomainChat))
	if err != nil {
		return nil, err
	}
	if chat.Visibility == model.VisibilityPrivate && !chat.OwnedBy(sess.UserID) {
		return nil, apperr.New(apperr.KindForbidden, apperr.DomainChat)
	}

	streamID, ok, err := s.streams.Latest(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list stream ids: %w", err)
	}
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, apperr.DomainStream)
	}

	if ch, ok := s.manager.Attach(ctx, streamID); ok {
		log.Debugw("续传已附加到流", "chatId", chatID, "streamId", streamID)
		return &ResumeResult{Stream: ch}, nil
	}

	fallback, err := s.fallback(ctx, chatID, requestedAt)
	if err != nil {
		return nil, err
	}
	return &ResumeResult{Stream: fallback}, nil
}

// fallback 在流已关闭或被回收时，重放窗口内最近完成的助手消息。
func (s *resumeService) fallback(ctx context.Context, chatID string, requestedAt time.Time) (<-chan stream.Chunk, error) {
	messages, err := s.messages.FindByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if len(messages) == 0 {
		return stream.Empty(), nil
	}
	last := messages[len(messages)-1]
	if last.Role != model.RoleAssistant {
		return stream.Empty(), nil
	}
	// 按整秒比较，不足一秒的部分舍去。
	if requestedAt.Sub(last.CreatedAt).Truncate(time.Second) > s.window {
		return stream.Empty(), nil
	}
	data, err := json.Marshal(last)
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", last.ID, err)
	}
	return stream.Of(stream.AppendMessage(data), stream.Finish()), nil
}
