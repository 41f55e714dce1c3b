// Package stream 实现可恢复的生成输出流：chunk 编码、通道后端以及发布/附着管理。
package stream

import "encoding/json"

// ChunkType 是 chunk 的类型标签。
type ChunkType string

const (
	ChunkStart          ChunkType = "start"
	ChunkTextDelta      ChunkType = "text-delta"
	ChunkReasoningDelta ChunkType = "reasoning-delta"
	ChunkToolInput      ChunkType = "tool-input-available"
	ChunkToolOutput     ChunkType = "tool-output-available"
	ChunkToolError      ChunkType = "tool-output-error"
	ChunkAppendMessage  ChunkType = "data-appendMessage"
	ChunkError          ChunkType = "error"
	ChunkFinish         ChunkType = "finish"
)

// Chunk 是流中的一个有序输出单元。字段按 Type 取用，未用到的字段不会序列化。
type Chunk struct {
	Type       ChunkType       `json:"type"`
	ID         string          `json:"id,omitempty"`
	MessageID  string          `json:"messageId,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Transient  bool            `json:"transient,omitempty"`
}

// IsTerminator 判断 chunk 是否为流的结束标记。
func (c Chunk) IsTerminator() bool {
	return c.Type == ChunkFinish
}

func Start(messageID string) Chunk {
	return Chunk{Type: ChunkStart, MessageID: messageID}
}

func TextDelta(id, delta string) Chunk {
	return Chunk{Type: ChunkTextDelta, ID: id, Delta: delta}
}

func ReasoningDelta(id, delta string) Chunk {
	return Chunk{Type: ChunkReasoningDelta, ID: id, Delta: delta}
}

func ToolInput(callID, toolName string, input json.RawMessage) Chunk {
	return Chunk{Type: ChunkToolInput, ToolCallID: callID, ToolName: toolName, Input: input}
}

func ToolOutput(callID string, output json.RawMessage) Chunk {
	return Chunk{Type: ChunkToolOutput, ToolCallID: callID, Output: output}
}

func ToolError(callID, errorText string) Chunk {
	return Chunk{Type: ChunkToolError, ToolCallID: callID, ErrorText: errorText}
}

// AppendMessage 携带一条完整序列化的消息，用于断线重连时回放最后一条回复。
func AppendMessage(data json.RawMessage) Chunk {
	return Chunk{Type: ChunkAppendMessage, Data: data, Transient: true}
}

func Error(errorText string) Chunk {
	return Chunk{Type: ChunkError, ErrorText: errorText}
}

func Finish() Chunk {
	return Chunk{Type: ChunkFinish}
}

// Of 返回一个已关闭、依次包含给定 chunk 的通道。
func Of(chunks ...Chunk) <-chan Chunk {
	ch := make(chan Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// Empty 返回只含结束标记的流。
func Empty() <-chan Chunk {
	return Of(Finish())
}
