package service

import (
	"ai-chat-go/internal/model"
	"ai-chat-go/pkg/es"
	"context"
)

// MessageIndexer 维护消息的全文索引。
type MessageIndexer interface {
	Index(ctx context.Context, userID uint, messages ...model.Message) error
	DeleteChat(ctx context.Context, chatID string) error
	Search(ctx context.Context, userID uint, query string, size int) ([]es.MessageDocument, error)
}

type esIndexer struct {
	client *es.Client
}

// NewESIndexer 创建基于 Elasticsearch 的消息索引。
func NewESIndexer(client *es.Client) MessageIndexer {
	return &esIndexer{client: client}
}

func (i *esIndexer) Index(ctx context.Context, userID uint, messages ...model.Message) error {
	for _, m := range messages {
		text := m.Text()
		if text == "" {
			continue
		}
		doc := es.MessageDocument{
			MessageID: m.ID,
			ChatID:    m.ChatID,
			UserID:    userID,
			Role:      string(m.Role),
			Content:   text,
			CreatedAt: m.CreatedAt,
		}
		if err := i.client.IndexMessage(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (i *esIndexer) DeleteChat(ctx context.Context, chatID string) error {
	return i.client.DeleteByChat(ctx, chatID)
}

func (i *esIndexer) Search(ctx context.Context, userID uint, query string, size int) ([]es.MessageDocument, error) {
	return i.client.SearchMessages(ctx, userID, query, size)
}

// NopIndexer 在未配置 Elasticsearch 时使用，检索总是返回空结果。
type NopIndexer struct{}

func (NopIndexer) Index(context.Context, uint, ...model.Message) error { return nil }

func (NopIndexer) DeleteChat(context.Context, string) error { return nil }

func (NopIndexer) Search(context.Context, uint, string, int) ([]es.MessageDocument, error) {
	return []es.MessageDocument{}, nil
}
