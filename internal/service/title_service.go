package service

import (
	"ai-chat-go/internal/repository"
	"ai-chat-go/pkg/llm"
	"ai-chat-go/pkg/log"
	"ai-chat-go/pkg/tasks"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const maxTitleLength = 80

// TitleDispatcher 投递标题生成任务。kafka.Producer 与 InlineTitleDispatcher 都实现了它。
type TitleDispatcher interface {
	Dispatch(ctx context.Context, task tasks.TitleTask) error
}

// TitleService 调用模型为会话生成标题，实现 kafka.TaskProcessor。
type TitleService struct {
	chats  repository.ChatRepository
	engine llm.Engine
	model  string
	prompt string
}

// NewTitleService 创建 TitleService，model 为供应商模型名。
func NewTitleService(chats repository.ChatRepository, engine llm.Engine, model, prompt string) *TitleService {
	return &TitleService{chats: chats, engine: engine, model: model, prompt: prompt}
}

// Process 生成标题并写回会话。
func (s *TitleService) Process(ctx context.Context, task tasks.TitleTask) error {
	messages := []llm.Message{{Role: "user", Content: task.Message}}
	if s.prompt != "" {
		messages = append([]llm.Message{{Role: "system", Content: s.prompt}}, messages...)
	}
	title, err := s.engine.Complete(ctx, s.model, messages)
	if err != nil {
		return fmt.Errorf("generate title for chat %s: %w", task.ChatID, err)
	}
	title = truncateTitle(strings.Trim(title, "\"' \n"))
	if title == "" {
		return nil
	}
	return s.chats.UpdateTitle(ctx, task.ChatID, title)
}

// truncateTitle 按字符截断到标题长度上限。
func truncateTitle(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if utf8.RuneCountInString(s) <= maxTitleLength {
		return s
	}
	return string([]rune(s)[:maxTitleLength])
}

// InlineTitleDispatcher 在进程内异步执行标题任务，失败时按退避重试，最多 tasks.MaxAttempts 次。
type InlineTitleDispatcher struct {
	processor *TitleService
	attempts  *tasks.Attempts
	backoff   time.Duration
	timeout   time.Duration
}

// NewInlineTitleDispatcher 创建进程内的标题任务执行器。
func NewInlineTitleDispatcher(processor *TitleService, attempts *tasks.Attempts) *InlineTitleDispatcher {
	return &InlineTitleDispatcher{
		processor: processor,
		attempts:  attempts,
		backoff:   time.Second,
		timeout:   30 * time.Second,
	}
}

func (d *InlineTitleDispatcher) Dispatch(ctx context.Context, task tasks.TitleTask) error {
	go d.run(context.WithoutCancel(ctx), task)
	return nil
}

func (d *InlineTitleDispatcher) run(ctx context.Context, task tasks.TitleTask) {
	for {
		runCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := d.processor.Process(runCtx, task)
		cancel()
		if err == nil {
			d.attempts.Reset(ctx, task.Key())
			return
		}
		n, incErr := d.attempts.Fail(ctx, task.Key())
		if incErr != nil || n >= tasks.MaxAttempts {
			log.Errorw("标题任务失败，放弃重试", "chatId", task.ChatID, "attempts", n, "error", err)
			return
		}
		log.Warnw("标题任务失败，稍后重试", "chatId", task.ChatID, "attempts", n, "error", err)
		time.Sleep(d.backoff * time.Duration(n))
	}
}
