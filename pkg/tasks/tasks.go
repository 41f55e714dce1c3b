// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// TitleTask 请求为一个新会话生成标题。
type TitleTask struct {
	ChatID  string `json:"chat_id"`
	UserID  uint   `json:"user_id"`
	Message string `json:"message"`
}

// Key 返回任务的幂等键。
func (t TitleTask) Key() string {
	return "title:" + t.ChatID
}
