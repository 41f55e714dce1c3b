package generation

import (
	"ai-chat-go/internal/stream"
	"ai-chat-go/pkg/llm"
	"sync"
)

// Normalizer 把一种引擎事件转换成零个或多个 chunk。
type Normalizer func(s *segmenter, e llm.Event) []stream.Chunk

var (
	normalizersMu sync.RWMutex
	normalizers   = map[llm.EventType]Normalizer{
		llm.EventTextDelta:      normalizeTextDelta,
		llm.EventReasoningDelta: normalizeReasoningDelta,
		llm.EventToolCall:       normalizeToolCall,
		llm.EventToolResult:     normalizeToolResult,
		llm.EventError:          normalizeError,
		llm.EventFinish:         func(*segmenter, llm.Event) []stream.Chunk { return nil },
	}
)

// RegisterNormalizer 为事件类型注册转换函数，已有的会被覆盖。
func RegisterNormalizer(t llm.EventType, n Normalizer) {
	normalizersMu.Lock()
	defer normalizersMu.Unlock()
	normalizers[t] = n
}

func normalizerFor(t llm.EventType) (Normalizer, bool) {
	normalizersMu.RLock()
	defer normalizersMu.RUnlock()
	n, ok := normalizers[t]
	return n, ok
}

// segmenter 为连续的同类增量分配同一个片段 ID，类型切换时开启新片段。
type segmenter struct {
	newID   func() string
	kind    stream.ChunkType
	current string
}

func (s *segmenter) segment(kind stream.ChunkType) string {
	if s.kind != kind || s.current == "" {
		s.kind = kind
		s.current = s.newID()
	}
	return s.current
}

func (s *segmenter) reset() {
	s.kind = ""
	s.current = ""
}

func normalizeTextDelta(s *segmenter, e llm.Event) []stream.Chunk {
	if e.Text == "" {
		return nil
	}
	return []stream.Chunk{stream.TextDelta(s.segment(stream.ChunkTextDelta), e.Text)}
}

func normalizeReasoningDelta(s *segmenter, e llm.Event) []stream.Chunk {
	if e.Text == "" {
		return nil
	}
	return []stream.Chunk{stream.ReasoningDelta(s.segment(stream.ChunkReasoningDelta), e.Text)}
}

func normalizeToolCall(s *segmenter, e llm.Event) []stream.Chunk {
	s.reset()
	return []stream.Chunk{stream.ToolInput(e.ToolCallID, e.ToolName, e.Input)}
}

func normalizeToolResult(s *segmenter, e llm.Event) []stream.Chunk {
	s.reset()
	if e.ToolError != "" {
		return []stream.Chunk{stream.ToolError(e.ToolCallID, e.ToolError)}
	}
	return []stream.Chunk{stream.ToolOutput(e.ToolCallID, e.Output)}
}

func normalizeError(s *segmenter, _ llm.Event) []stream.Chunk {
	s.reset()
	return []stream.Chunk{stream.Error(genericErrorText)}
}
