package service

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"ai-chat-go/pkg/es"
	"ai-chat-go/pkg/log"
	"context"
	"fmt"
	"strings"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	defaultSearchSize   = 20
)

// ChatDetail 是会话及其全部消息。
type ChatDetail struct {
	Chat     *model.Chat     `json:"chat"`
	Messages []model.Message `json:"messages"`
}

// HistoryPage 是分页的会话列表。
type HistoryPage struct {
	Chats   []model.Chat `json:"chats"`
	Total   int64        `json:"total"`
	HasMore bool         `json:"hasMore"`
}

// ConversationService 定义了会话读取、删除、可见性与历史检索的操作。
type ConversationService interface {
	GetChat(ctx context.Context, sess *Session, chatID string) (*ChatDetail, error)
	// DeleteChat 级联删除会话，返回被删除的会话记录。
	DeleteChat(ctx context.Context, sess *Session, chatID string) (*model.Chat, error)
	UpdateVisibility(ctx context.Context, sess *Session, chatID string, visibility model.Visibility) error
	ListHistory(ctx context.Context, sess *Session, offset, limit int) (*HistoryPage, error)
	SearchHistory(ctx context.Context, sess *Session, query string) ([]es.MessageDocument, error)
}

type conversationService struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	indexer  MessageIndexer
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(chats repository.ChatRepository, messages repository.MessageRepository, indexer MessageIndexer) ConversationService {
	if indexer == nil {
		indexer = NopIndexer{}
	}
	return &conversationService{chats: chats, messages: messages, indexer: indexer}
}

func (s *conversationService) GetChat(ctx context.Context, sess *Session, chatID string) (*ChatDetail, error) {
	if chatID == "" {
		return nil, apperr.New(apperr.KindBadRequest, apperr.DomainAPI, "Parameter id is required.")
	}
	chat, err := loadChat(ctx, s.chats, chatID, apperr.New(apperr.KindNotFound, apperr.DomainChat))
	if err != nil {
		return nil, err
	}
	if chat.Visibility == model.VisibilityPrivate {
		if sess == nil {
			return nil, apperr.New(apperr.KindUnauthorized, apperr.DomainChat)
		}
		if !chat.OwnedBy(sess.UserID) {
			return nil, apperr.New(apperr.KindForbidden, apperr.DomainChat)
		}
	}
	messages, err := s.messages.FindByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return &ChatDetail{Chat: chat, Messages: messages}, nil
}

func (s *conversationService) DeleteChat(ctx context.Context, sess *Session, chatID string) (*model.Chat, error) {
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
	if !chat.OwnedBy(sess.UserID) {
		return nil, apperr.New(apperr.KindForbidden, apperr.DomainChat)
	}
	deleted, err := s.chats.DeleteByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("delete chat %s: %w", chatID, err)
	}
	if err := s.indexer.DeleteChat(ctx, chatID); err != nil {
		log.Warnw("删除会话索引失败", "chatId", chatID, "error", err)
	}
	log.Infow("会话已删除", "chatId", chatID, "userId", sess.UserID)
	return deleted, nil
}

func (s *conversationService) UpdateVisibility(ctx context.Context, sess *Session, chatID string, visibility model.Visibility) error {
	if chatID == "" || !visibility.Valid() {
		return apperr.New(apperr.KindBadRequest, apperr.DomainAPI, "Parameters id and visibility are required.")
	}
	if sess == nil {
		return apperr.New(apperr.KindUnauthorized, apperr.DomainChat)
	}
	chat, err := loadChat(ctx, s.chats, chatID, apperr.New(apperr.KindNotFound, apperr.DomainChat))
	if err != nil {
		return err
	}
	if !chat.OwnedBy(sess.UserID) {
		return apperr.New(apperr.KindForbidden, apperr.DomainChat)
	}
	return s.chats.UpdateVisibility(ctx, chatID, visibility)
}

func (s *conversationService) ListHistory(ctx context.Context, sess *Session, offset, limit int) (*HistoryPage, error) {
	if sess == nil {
		return nil, apperr.New(apperr.KindUnauthorized, apperr.DomainChat)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	chats, total, err := s.chats.FindByUser(ctx, sess.UserID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return &HistoryPage{
		Chats:   chats,
		Total:   total,
		HasMore: int64(offset+len(chats)) < total,
	}, nil
}

func (s *conversationService) SearchHistory(ctx context.Context, sess *Session, query string) ([]es.MessageDocument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.KindBadRequest, apperr.DomainAPI, "Parameter q is required.")
	}
	if sess == nil {
		return nil, apperr.New(apperr.KindUnauthorized, apperr.DomainChat)
	}
	docs, err := s.indexer.Search(ctx, sess.UserID, query, defaultSearchSize)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return docs, nil
}
