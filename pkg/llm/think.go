package llm

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// thinkSplitter 把正文中 <think>…</think> 包裹的内容拆成推理增量。
// 标签可能跨越多个增量，未确定的尾部会被暂存到下一次输入。
type thinkSplitter struct {
	inThink bool
	pending string
}

// push 处理一个增量，返回按顺序排列的 (是否推理, 文本) 片段。
func (s *thinkSplitter) push(delta string) []thinkSegment {
	buf := s.pending + delta
	s.pending = ""
	var out []thinkSegment
	for buf != "" {
		tag := thinkOpen
		if s.inThink {
			tag = thinkClose
		}
		if i := strings.Index(buf, tag); i >= 0 {
			out = appendSegment(out, s.inThink, buf[:i])
			buf = buf[i+len(tag):]
			s.inThink = !s.inThink
			continue
		}
		keep := partialSuffix(buf, tag)
		out = appendSegment(out, s.inThink, buf[:len(buf)-keep])
		s.pending = buf[len(buf)-keep:]
		break
	}
	return out
}

// flush 返回暂存的尾部。
func (s *thinkSplitter) flush() []thinkSegment {
	rest := s.pending
	s.pending = ""
	return appendSegment(nil, s.inThink, rest)
}

type thinkSegment struct {
	reasoning bool
	text      string
}

func appendSegment(out []thinkSegment, reasoning bool, text string) []thinkSegment {
	if text == "" {
		return out
	}
	return append(out, thinkSegment{reasoning: reasoning, text: text})
}

// partialSuffix 返回 s 末尾可能是 tag 前缀的最长长度。
func partialSuffix(s, tag string) int {
	max := len(tag) - 1
	if len(s) < max {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
