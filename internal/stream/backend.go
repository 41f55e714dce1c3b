package stream

import (
	"context"
	"errors"
)

var (
	// ErrStreamExists 表示同一个流 ID 被第二次创建。
	ErrStreamExists = errors.New("stream already exists")
	// ErrStreamClosed 表示向已关闭或不存在的流追加数据。
	ErrStreamClosed = errors.New("stream is closed")
)

// Backend 是按流 ID 组织的多读者发布/订阅通道。
// 每个流只追加，且只关闭一次；订阅者先收到已缓冲的 chunk，再收到实时 chunk。
type Backend interface {
	Create(ctx context.Context, id string) error
	Append(ctx context.Context, id string, c Chunk) error
	Close(ctx context.Context, id string) error
	// Subscribe 打开一个新读者。流未知或已关闭时返回 ok=false 且 err 为 nil。
	// 返回的通道在读到结束标记、流被关闭或 ctx 结束后关闭。
	Subscribe(ctx context.Context, id string) (ch <-chan Chunk, ok bool, err error)
}
