package model

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Role 是消息的角色。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartType 是消息内容片段的类型标签。
type PartType string

const (
	PartText       PartType = "text"
	PartReasoning  PartType = "reasoning"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// Part 是消息内容的一个片段，按 Type 区分含义，未知类型原样保留。
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

// Attachment 是用户上传的附件引用。
type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// Message 对应 messages 表。持久化后不可修改。
type Message struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatID      string         `gorm:"type:varchar(36);index:idx_messages_chat_created;not null" json:"chatId"`
	Role        Role           `gorm:"type:varchar(16);not null" json:"role"`
	Parts       datatypes.JSON `json:"parts"`
	Attachments datatypes.JSON `json:"attachments"`
	CreatedAt   time.Time      `gorm:"index:idx_messages_chat_created" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// NewMessage 构造一条消息，parts 与 attachments 序列化为 JSON 列。
func NewMessage(id, chatID string, role Role, parts []Part, attachments []Attachment, createdAt time.Time) Message {
	if parts == nil {
		parts = []Part{}
	}
	if attachments == nil {
		attachments = []Attachment{}
	}
	p, _ := json.Marshal(parts)
	a, _ := json.Marshal(attachments)
	return Message{
		ID:          id,
		ChatID:      chatID,
		Role:        role,
		Parts:       datatypes.JSON(p),
		Attachments: datatypes.JSON(a),
		CreatedAt:   createdAt,
	}
}

// DecodeParts 解析消息的内容片段。
func (m Message) DecodeParts() ([]Part, error) {
	if len(m.Parts) == 0 {
		return nil, nil
	}
	var parts []Part
	if err := json.Unmarshal(m.Parts, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// DecodeAttachments 解析消息的附件列表。
func (m Message) DecodeAttachments() ([]Attachment, error) {
	if len(m.Attachments) == 0 {
		return nil, nil
	}
	var atts []Attachment
	if err := json.Unmarshal(m.Attachments, &atts); err != nil {
		return nil, err
	}
	return atts, nil
}

// Text 拼接消息中所有 text 片段。
func (m Message) Text() string {
	parts, err := m.DecodeParts()
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
