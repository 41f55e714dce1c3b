package stream

import (
	"context"
	"sync"
	"time"
)

type memoryStream struct {
	chunks []Chunk
	done   bool
	// notify 在每次追加或关闭时被关闭并替换，用于唤醒等待中的读者。
	notify chan struct{}
}

// MemoryBackend 是进程内的 Backend 实现，适用于单实例部署和测试。
type MemoryBackend struct {
	mu      sync.Mutex
	streams map[string]*memoryStream
	reclaim time.Duration
}

// NewMemoryBackend 创建内存后端，关闭的流在 reclaim 之后被回收。
func NewMemoryBackend(reclaim time.Duration) *MemoryBackend {
	return &MemoryBackend{
		streams: make(map[string]*memoryStream),
		reclaim: reclaim,
	}
}

func (b *MemoryBackend) Create(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.streams[id]; exists {
		return ErrStreamExists
	}
	b.streams[id] = &memoryStream{notify: make(chan struct{})}
	return nil
}

func (b *MemoryBackend) Append(_ context.Context, id string, c Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[id]
	if !ok || s.done {
		return ErrStreamClosed
	}
	s.chunks = append(s.chunks, c)
	s.wake()
	return nil
}

func (b *MemoryBackend) Close(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[id]
	if !ok || s.done {
		return nil
	}
	s.done = true
	s.wake()
	if b.reclaim > 0 {
		time.AfterFunc(b.reclaim, func() {
			b.mu.Lock()
			delete(b.streams, id)
			b.mu.Unlock()
		})
	}
	return nil
}

func (b *MemoryBackend) Subscribe(ctx context.Context, id string) (<-chan Chunk, bool, error) {
	b.mu.Lock()
	s, ok := b.streams[id]
	if !ok || s.done {
		b.mu.Unlock()
		return nil, false, nil
	}
	b.mu.Unlock()

	out := make(chan Chunk)
	go b.follow(ctx, s, out)
	return out, true, nil
}

func (b *MemoryBackend) follow(ctx context.Context, s *memoryStream, out chan<- Chunk) {
	defer close(out)
	next := 0
	for {
		b.mu.Lock()
		pending := append([]Chunk(nil), s.chunks[next:]...)
		done := s.done
		notify := s.notify
		b.mu.Unlock()

		for _, c := range pending {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
			next++
			if c.IsTerminator() {
				return
			}
		}
		if len(pending) > 0 {
			continue
		}
		if done {
			return
		}
		select {
		case <-notify:
		case <-ctx.Done():
			return
		}
	}
}

func (s *memoryStream) wake() {
	close(s.notify)
	s.notify = make(chan struct{})
}
