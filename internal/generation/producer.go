// Package generation 把模型调用引擎的事件流转换为规范化的 chunk 流，并在结束前持久化助手消息。
package generation

import (
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/stream"
	"ai-chat-go/pkg/llm"
	"ai-chat-go/pkg/log"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	genericErrorText = "Oops, an error occurred!"
	persistTimeout   = 10 * time.Second
)

// Hints 是请求来源的地理信息，会写入系统提示词。
type Hints struct {
	Latitude  string
	Longitude string
	City      string
	Country   string
}

// ModelSpec 是一次生成所用的供应商模型。
type ModelSpec struct {
	Name      string
	Reasoning bool
}

// Input 描述一次生成。History 按时间正序，最后一条是新的用户消息。
type Input struct {
	ChatID    string
	MessageID string
	History   []model.Message
	Model     ModelSpec
	Hints     Hints
}

// CompletionHook 在所有 chunk 产生之后、结束标记之前被调用一次，用于持久化助手消息。
type CompletionHook func(ctx context.Context, msg model.Message) error

// Options 配置 Producer。
type Options struct {
	SystemPrompt string
	Tools        []string
	MaxSteps     int
	OnComplete   CompletionHook
	Now          func() time.Time
	NewID        func() string
}

// Producer 包装模型调用引擎。
type Producer struct {
	engine llm.Engine
	opts   Options
}

// NewProducer 创建 Producer。
func NewProducer(engine llm.Engine, opts Options) *Producer {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 5
	}
	return &Producer{engine: engine, opts: opts}
}

// Factory 返回供 stream.Manager 调用的生产者工厂。
func (p *Producer) Factory(in Input) stream.ProducerFactory {
	return func(ctx context.Context) (<-chan stream.Chunk, error) {
		return p.Produce(ctx, in)
	}
}

// Produce 启动生成，返回以 start 开头、以唯一的 finish 结尾的 chunk 流。
func (p *Producer) Produce(ctx context.Context, in Input) (<-chan stream.Chunk, error) {
	if in.MessageID == "" {
		in.MessageID = p.opts.NewID()
	}
	req := llm.Request{
		Model:    in.Model.Name,
		Messages: p.buildMessages(in),
		MaxSteps: p.opts.MaxSteps,
	}
	if !in.Model.Reasoning {
		req.Tools = p.opts.Tools
	}
	events, err := p.engine.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start generation: %w", err)
	}

	out := make(chan stream.Chunk)
	go p.pump(ctx, in, events, out)
	return out, nil
}

func (p *Producer) pump(ctx context.Context, in Input, events <-chan llm.Event, out chan<- stream.Chunk) {
	defer close(out)
	seg := &segmenter{newID: p.opts.NewID}
	asm := NewAssembler()

	out <- stream.Start(in.MessageID)
	for e := range events {
		normalize, ok := normalizerFor(e.Type)
		if !ok {
			log.Warnw("忽略未知的引擎事件", "chatId", in.ChatID, "type", e.Type)
			continue
		}
		if e.Type == llm.EventError {
			log.Errorw("模型调用失败", "chatId", in.ChatID, "error", e.Err)
		}
		for _, c := range normalize(seg, e) {
			asm.Apply(c)
			out <- c
		}
	}

	if parts := asm.Parts(); len(parts) > 0 && p.opts.OnComplete != nil {
		msg := model.NewMessage(in.MessageID, in.ChatID, model.RoleAssistant, parts, nil, p.opts.Now())
		hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		if err := p.opts.OnComplete(hookCtx, msg); err != nil {
			log.Errorw("保存助手消息失败", "chatId", in.ChatID, "messageId", in.MessageID, "error", err)
		}
		cancel()
	}
	out <- stream.Finish()
}

func (p *Producer) buildMessages(in Input) []llm.Message {
	messages := make([]llm.Message, 0, len(in.History)+1)
	if system := p.systemPrompt(in); system != "" {
		messages = append(messages, llm.Message{Role: "system", Content: system})
	}
	for _, m := range in.History {
		content := m.Text()
		if atts, err := m.DecodeAttachments(); err == nil && len(atts) > 0 {
			var sb strings.Builder
			sb.WriteString(content)
			for _, a := range atts {
				fmt.Fprintf(&sb, "\n[attachment: %s (%s)]", a.URL, a.ContentType)
			}
			content = sb.String()
		}
		if content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: string(m.Role), Content: content})
	}
	return messages
}

func (p *Producer) systemPrompt(in Input) string {
	h := in.Hints
	if h == (Hints{}) {
		return p.opts.SystemPrompt
	}
	return fmt.Sprintf("%s\n\nAbout the origin of user's request:\n- lat: %s\n- lon: %s\n- city: %s\n- country: %s\n",
		p.opts.SystemPrompt, h.Latitude, h.Longitude, h.City, h.Country)
}
