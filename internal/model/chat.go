// Package model 包含了应用的数据模型定义。
package model

import "time"

// Visibility 表示对话的可见性。
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid 判断可见性取值是否合法。
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Chat 对应 chats 表，即一次会话。UserID 在创建后不可修改。
type Chat struct {
	ID         string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     uint       `gorm:"index;not null" json:"userId"`
	Title      string     `gorm:"type:varchar(255);not null" json:"title"`
	Visibility Visibility `gorm:"type:varchar(16);not null;default:private" json:"visibility"`
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
}

func (Chat) TableName() string {
	return "chats"
}

// OwnedBy 判断会话是否属于指定用户。
func (c *Chat) OwnedBy(userID uint) bool {
	return c != nil && c.UserID == userID
}
