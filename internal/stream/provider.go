package stream

import (
	"ai-chat-go/pkg/log"
	"context"
	"sync"
)

// BuildFunc 构造通道后端。返回 nil 后端表示未配置。
type BuildFunc func(ctx context.Context) (Backend, error)

// Provider 惰性地构造一次通道后端并记住结果：第一次访问时尝试构造，
// 无论成功还是失败，进程生命周期内都不再重试。
type Provider struct {
	once    sync.Once
	build   BuildFunc
	backend Backend
	err     error
}

// NewProvider 创建一个惰性初始化的 Provider。
func NewProvider(build BuildFunc) *Provider {
	return &Provider{build: build}
}

// Static 用一个现成的后端创建 Provider，b 为 nil 表示没有可用后端。
func Static(b Backend) *Provider {
	p := &Provider{backend: b}
	p.once.Do(func() {})
	return p
}

// Backend 返回后端，不可用时返回 nil。
func (p *Provider) Backend(ctx context.Context) Backend {
	if p == nil {
		return nil
	}
	p.once.Do(func() {
		if p.build == nil {
			return
		}
		p.backend, p.err = p.build(ctx)
		if p.err != nil {
			p.backend = nil
			log.Warnw("通道后端不可用，可恢复流将降级为直通模式", "error", p.err)
			return
		}
		if p.backend == nil {
			log.Info("未配置通道后端，可恢复流已禁用")
		}
	})
	return p.backend
}

// Err 返回构造失败时的错误。
func (p *Provider) Err() error {
	if p == nil {
		return nil
	}
	return p.err
}
