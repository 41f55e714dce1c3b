// Package es 提供了与 Elasticsearch 交互的客户端功能，用于历史消息检索。
package es

import (
	"ai-chat-go/internal/config"
	"ai-chat-go/pkg/log"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// MessageDocument 是索引中的一条消息。
type MessageDocument struct {
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	UserID    uint      `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

const messageMapping = `{
	"mappings": {
		"properties": {
			"message_id": { "type": "keyword" },
			"chat_id": { "type": "keyword" },
			"user_id": { "type": "long" },
			"role": { "type": "keyword" },
			"content": { "type": "text" },
			"created_at": { "type": "date" }
		}
	}
}`

// Client 封装 Elasticsearch 客户端与消息索引名。
type Client struct {
	es    *elasticsearch.Client
	index string
}

// NewClient 初始化 Elasticsearch 客户端
func NewClient(esCfg config.ElasticsearchConfig) (*Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
	})
	if err != nil {
		return nil, err
	}
	return &Client{es: client, index: esCfg.IndexName}, nil
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(messageMapping)),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.index, res.String())
	}
	log.Infof("索引 '%s' 创建成功", c.index)
	return nil
}

// IndexMessage 索引一条消息，以消息 ID 作为文档 ID。
func (c *Client) IndexMessage(ctx context.Context, doc MessageDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.MessageID,
		Body:       bytes.NewReader(docBytes),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to index message: %s", res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source MessageDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchMessages 在指定用户的消息中全文检索。
func (c *Client) SearchMessages(ctx context.Context, userID uint, query string, size int) ([]MessageDocument, error) {
	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   []interface{}{map[string]interface{}{"match": map[string]interface{}{"content": query}}},
				"filter": []interface{}{map[string]interface{}{"term": map[string]interface{}{"user_id": userID}}},
			},
		},
		"sort": []interface{}{"_score", map[string]interface{}{"created_at": "desc"}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	docs := make([]MessageDocument, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		docs = append(docs, h.Source)
	}
	return docs, nil
}

// DeleteByChat 删除一个会话的全部消息文档。
func (c *Client) DeleteByChat(ctx context.Context, chatID string) error {
	body := fmt.Sprintf(`{"query":{"term":{"chat_id":%q}}}`, chatID)
	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		strings.NewReader(body),
		c.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return errors.New("delete by query failed: " + res.String())
	}
	return nil
}
