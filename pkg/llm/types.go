package llm

import "encoding/json"

// EventType 是引擎事件的类型标签。
type EventType string

const (
	EventTextDelta      EventType = "text-delta"
	EventReasoningDelta EventType = "reasoning-delta"
	EventToolCall       EventType = "tool-call"
	EventToolResult     EventType = "tool-result"
	EventError          EventType = "error"
	EventFinish         EventType = "finish"
)

// Event 是模型调用过程中产生的一个有序事件。
type Event struct {
	Type       EventType
	Text       string
	ToolCallID string
	ToolName   string
	Input      json.RawMessage
	Output     json.RawMessage
	// ToolError 非空表示工具调用失败，此时 Output 为空。
	ToolError    string
	FinishReason string
	Err          error
}

// Message 表示一条角色消息，字段与 OpenAI 兼容接口一致。
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall 是模型发起的一次函数调用。
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Request 描述一次流式生成。
type Request struct {
	Model      string
	Messages   []Message
	Tools      []string
	Generation *GenerationParams
	// MaxSteps 限制工具调用的往返轮数。
	MaxSteps int
}
