package stream

import (
	"encoding/json"
	"io"

	"github.com/gin-contrib/sse"
)

const doneSentinel = "[DONE]"

// WriteSSE 以 `data:{json}` 帧写出一个 chunk。
func WriteSSE(w io.Writer, c Chunk) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return sse.Encode(w, sse.Event{Data: string(b)})
}

// WriteDone 写出流结束哨兵帧。
func WriteDone(w io.Writer) error {
	return sse.Encode(w, sse.Event{Data: doneSentinel})
}
