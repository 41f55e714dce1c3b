package model

// Vote 对应 votes 表，每条消息至多一条记录，重复投票覆盖原值。
type Vote struct {
	ChatID    string `gorm:"type:varchar(36);primaryKey" json:"chatId"`
	MessageID string `gorm:"type:varchar(36);primaryKey" json:"messageId"`
	IsUpvoted bool   `gorm:"not null" json:"isUpvoted"`
}

func (Vote) TableName() string {
	return "votes"
}

// VoteType 是投票方向。
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)
