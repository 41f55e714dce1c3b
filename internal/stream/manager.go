package stream

import (
	"ai-chat-go/pkg/log"
	"context"
	"errors"
	"sync"
	"time"
)

const (
	forwardBuffer = 64
	storeTimeout  = 5 * time.Second
)

// ProducerFactory 启动一次生成并返回其 chunk 流。ctx 在发布结束时取消。
type ProducerFactory func(ctx context.Context) (<-chan Chunk, error)

// Manager 把生成输出同时发布到通道后端和当前调用方，并为重连的读者提供附着。
type Manager struct {
	provider    *Provider
	maxDuration time.Duration
}

// NewManager 创建 Manager。maxDuration 限制单次发布的总时长。
func NewManager(provider *Provider, maxDuration time.Duration) *Manager {
	if maxDuration <= 0 {
		maxDuration = 60 * time.Second
	}
	return &Manager{provider: provider, maxDuration: maxDuration}
}

// Available 报告通道后端是否可用。
func (m *Manager) Available(ctx context.Context) bool {
	return m.provider.Backend(ctx) != nil
}

// Publish 调用 factory 恰好一次，并把产生的 chunk 写入 id 对应的通道，同时返回给调用方。
// 调用方 ctx 结束只会停止向调用方转发，生成和写入会继续直到结束标记或超时。
// 后端不可用时退化为直通。
func (m *Manager) Publish(ctx context.Context, id string, factory ProducerFactory) (<-chan Chunk, error) {
	backend := m.provider.Backend(ctx)
	if backend != nil {
		if err := backend.Create(ctx, id); err != nil {
			if errors.Is(err, ErrStreamExists) {
				return nil, err
			}
			log.Warnw("创建通道失败，本次生成不可恢复", "streamId", id, "error", err)
			backend = nil
		}
	}

	detached := context.WithoutCancel(ctx)
	pubCtx, cancel := context.WithTimeout(detached, m.maxDuration)
	src, err := factory(pubCtx)
	if err != nil {
		cancel()
		if backend != nil {
			m.closeBackend(detached, backend, id)
		}
		return nil, err
	}

	out := make(chan Chunk, forwardBuffer)
	fwd := newForwarder()
	go fwd.run(ctx, out)
	p := &publication{
		id:      id,
		backend: backend,
		store:   detached,
		fwd:     fwd,
	}
	go func() {
		defer cancel()
		p.run(pubCtx, src)
		if backend != nil {
			m.closeBackend(detached, backend, id)
		}
	}()
	return out, nil
}

// Attach 为 id 打开一个新读者，先回放已缓冲的 chunk 再接收实时 chunk。
// 后端不可用、流未知或已关闭时返回 false。
func (m *Manager) Attach(ctx context.Context, id string) (<-chan Chunk, bool) {
	backend := m.provider.Backend(ctx)
	if backend == nil {
		return nil, false
	}
	ch, ok, err := backend.Subscribe(ctx, id)
	if err != nil {
		log.Warnw("附着通道失败", "streamId", id, "error", err)
		return nil, false
	}
	return ch, ok
}

func (m *Manager) closeBackend(parent context.Context, backend Backend, id string) {
	ctx, cancel := context.WithTimeout(parent, storeTimeout)
	defer cancel()
	if err := backend.Close(ctx, id); err != nil {
		log.Errorw("关闭通道失败", "streamId", id, "error", err)
	}
}

// publication 是一次发布的泵送状态。
type publication struct {
	id      string
	backend Backend
	store   context.Context
	fwd     *forwarder

	finished bool
}

func (p *publication) run(pubCtx context.Context, src <-chan Chunk) {
	defer p.fwd.close()
loop:
	for {
		select {
		case c, ok := <-src:
			if !ok {
				break loop
			}
			if p.finished {
				continue
			}
			p.emit(c)
			if c.IsTerminator() {
				p.finished = true
			}
		case <-pubCtx.Done():
			go drain(src)
			break loop
		}
	}
	if !p.finished {
		if errors.Is(pubCtx.Err(), context.DeadlineExceeded) {
			log.Warnw("生成超出时长限制", "streamId", p.id)
			p.emit(Error("The response took too long and was stopped."))
		}
		p.emit(Finish())
		p.finished = true
	}
}

func (p *publication) emit(c Chunk) {
	if p.backend != nil {
		ctx, cancel := context.WithTimeout(p.store, storeTimeout)
		err := p.backend.Append(ctx, p.id, c)
		cancel()
		if err != nil {
			log.Errorw("写入通道失败，后续 chunk 只转发给当前读者", "streamId", p.id, "error", err)
			p.backend = nil
		}
	}
	p.fwd.push(c)
}

// forwarder 把 chunk 转发给发起生成的调用方。
// 队列不设上限，push 从不等待调用方读取；调用方 ctx 结束后丢弃剩余 chunk。
type forwarder struct {
	mu      sync.Mutex
	queue   []Chunk
	closed  bool
	stopped bool
	notify  chan struct{}
}

func newForwarder() *forwarder {
	return &forwarder{notify: make(chan struct{}, 1)}
}

func (f *forwarder) push(c Chunk) {
	f.mu.Lock()
	if !f.stopped {
		f.queue = append(f.queue, c)
	}
	f.mu.Unlock()
	f.signal()
}

func (f *forwarder) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.signal()
}

func (f *forwarder) signal() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

func (f *forwarder) stop() {
	f.mu.Lock()
	f.stopped = true
	f.queue = nil
	f.mu.Unlock()
}

func (f *forwarder) run(ctx context.Context, out chan<- Chunk) {
	defer close(out)
	for {
		f.mu.Lock()
		pending := f.queue
		f.queue = nil
		closed := f.closed
		f.mu.Unlock()

		for _, c := range pending {
			select {
			case out <- c:
			case <-ctx.Done():
				f.stop()
				return
			}
		}
		if len(pending) > 0 {
			continue
		}
		if closed {
			return
		}
		select {
		case <-f.notify:
		case <-ctx.Done():
			f.stop()
			return
		}
	}
}

func drain(src <-chan Chunk) {
	for range src {
	}
}
