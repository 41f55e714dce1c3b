package generation

import (
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/stream"
)

// Assembler 把 chunk 序列还原成消息片段：同一片段 ID 的增量合并为一个片段。
type Assembler struct {
	parts     []model.Part
	lastID    string
	lastType  stream.ChunkType
	toolNames map[string]string
}

func NewAssembler() *Assembler {
	return &Assembler{toolNames: make(map[string]string)}
}

// Apply 吸收一个 chunk，非内容类 chunk 被忽略。
func (a *Assembler) Apply(c stream.Chunk) {
	switch c.Type {
	case stream.ChunkTextDelta, stream.ChunkReasoningDelta:
		if n := len(a.parts); n > 0 && a.lastType == c.Type && a.lastID == c.ID {
			a.parts[n-1].Text += c.Delta
			return
		}
		partType := model.PartText
		if c.Type == stream.ChunkReasoningDelta {
			partType = model.PartReasoning
		}
		a.parts = append(a.parts, model.Part{Type: partType, Text: c.Delta})
		a.lastID, a.lastType = c.ID, c.Type
		return
	case stream.ChunkToolInput:
		a.toolNames[c.ToolCallID] = c.ToolName
		a.parts = append(a.parts, model.Part{
			Type:       model.PartToolCall,
			ToolCallID: c.ToolCallID,
			ToolName:   c.ToolName,
			Input:      c.Input,
		})
	case stream.ChunkToolOutput:
		a.parts = append(a.parts, model.Part{
			Type:       model.PartToolResult,
			ToolCallID: c.ToolCallID,
			ToolName:   a.toolNames[c.ToolCallID],
			Output:     c.Output,
		})
	case stream.ChunkToolError:
		a.parts = append(a.parts, model.Part{
			Type:       model.PartToolResult,
			ToolCallID: c.ToolCallID,
			ToolName:   a.toolNames[c.ToolCallID],
			ErrorText:  c.ErrorText,
		})
	default:
		return
	}
	a.lastID, a.lastType = "", ""
}

// Parts 返回目前还原出的片段。
func (a *Assembler) Parts() []model.Part {
	return a.parts
}

// Reassemble 从完整的 chunk 序列还原消息片段。
func Reassemble(chunks []stream.Chunk) []model.Part {
	a := NewAssembler()
	for _, c := range chunks {
		a.Apply(c)
	}
	return a.Parts()
}
