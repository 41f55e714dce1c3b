package model

import "time"

// StreamID 对应 stream_ids 表，每次生成尝试铸造一条，只追加不修改。
type StreamID struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatID    string    `gorm:"type:varchar(36);index:idx_stream_ids_chat_created;not null" json:"chatId"`
	CreatedAt time.Time `gorm:"index:idx_stream_ids_chat_created" json:"createdAt"`
}

func (StreamID) TableName() string {
	return "stream_ids"
}
