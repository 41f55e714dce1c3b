package service

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/config"
	"ai-chat-go/internal/generation"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"ai-chat-go/internal/stream"
	"ai-chat-go/pkg/llm"
	"ai-chat-go/pkg/log"
	"ai-chat-go/pkg/tasks"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxTextPartLength = 2000
	indexTimeout      = 5 * time.Second
)

// PostMessage 是客户端提交的新用户消息。
type PostMessage struct {
	ID          string             `json:"id"`
	Role        string             `json:"role"`
	Parts       []model.Part       `json:"parts"`
	Attachments []model.Attachment `json:"attachments"`
}

// StartRequest 是一次生成请求。
type StartRequest struct {
	ChatID            string
	Message           PostMessage
	SelectedChatModel string
	Visibility        model.Visibility
	Hints             generation.Hints
}

// ChatService 定义了发起生成的操作。
type ChatService interface {
	// StartGeneration 校验请求、保存用户消息、铸造流 ID，并返回可恢复的 chunk 流。
	StartGeneration(ctx context.Context, sess *Session, req StartRequest) (streamID string, chunks <-chan stream.Chunk, err error)
}

// ChatDeps 汇总 ChatService 的依赖。
type ChatDeps struct {
	Chats      repository.ChatRepository
	Messages   repository.MessageRepository
	Streams    *StreamRegistry
	Manager    *stream.Manager
	Engine     llm.Engine
	Generation generation.Options
	Models     map[string]config.LLMModel
	Policy     config.ChatConfig
	Titles     TitleDispatcher
	Indexer    MessageIndexer
	Now        Clock
}

type chatService struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	streams  *StreamRegistry
	manager  *stream.Manager
	producer *generation.Producer
	models   map[string]config.LLMModel
	policy   config.ChatConfig
	titles   TitleDispatcher
	indexer  MessageIndexer
	now      Clock
}

// NewChatService 创建 ChatService，生成完成时的持久化钩子由服务自身提供。
func NewChatService(d ChatDeps) ChatService {
	if d.Now == nil {
		d.Now = utcNow
	}
	if d.Indexer == nil {
		d.Indexer = NopIndexer{}
	}
	s := &chatService{
		chats:    d.Chats,
		messages: d.Messages,
		streams:  d.Streams,
		manager:  d.Manager,
		models:   d.Models,
		policy:   d.Policy,
		titles:   d.Titles,
		indexer:  d.Indexer,
		now:      d.Now,
	}
	opts := d.Generation
	opts.OnComplete = s.persistAssistant
	if opts.Now == nil {
		opts.Now = d.Now
	}
	if opts.MaxSteps == 0 {
		opts.MaxSteps = d.Policy.MaxSteps
	}
	s.producer = generation.NewProducer(d.Engine, opts)
	return s
}

func (s *chatService) StartGeneration(ctx context.Context, sess *Session, req StartRequest) (string, <-chan stream.Chunk, error) {
	chatModel, err := s.validate(req)
	if err != nil {
		return "", nil, err
	}
	if sess == nil {
		return "", nil, apperr.New(apperr.KindUnauthorized, apperr.DomainChat)
	}

	since := s.now().Add(-time.Duration(s.policy.RateLimitHours) * time.Hour)
	count, err := s.messages.CountUserMessagesSince(ctx, sess.UserID, since)
	if err != nil {
		return "", nil, fmt.Errorf("count user messages: %w", err)
	}
	if count > int64(s.policy.Entitlement(string(sess.UserType))) {
		return "", nil, apperr.New(apperr.KindRateLimit, apperr.DomainChat)
	}

	userText := textOf(req.Message.Parts)
	created, err := s.ensureChat(ctx, sess, req, userText)
	if err != nil {
		return "", nil, err
	}

	history, err := s.messages.FindByChat(ctx, req.ChatID)
	if err != nil {
		return "", nil, fmt.Errorf("load messages: %w", err)
	}
	userMsg := model.NewMessage(req.Message.ID, req.ChatID, model.RoleUser, req.Message.Parts, req.Message.Attachments, s.now())
	if err := s.messages.SaveMessages(ctx, []model.Message{userMsg}); err != nil {
		return "", nil, fmt.Errorf("save user message: %w", err)
	}
	s.index(ctx, sess.UserID, userMsg)
	if created {
		s.dispatchTitle(ctx, tasks.TitleTask{ChatID: req.ChatID, UserID: sess.UserID, Message: userText})
	}

	streamID, err := s.streams.Mint(ctx, req.ChatID)
	if err != nil {
		return "", nil, err
	}

	in := generation.Input{
		ChatID:    req.ChatID,
		MessageID: uuid.NewString(),
		History:   append(history, userMsg),
		Model:     chatModel,
		Hints:     req.Hints,
	}
	chunks, err := s.manager.Publish(ctx, streamID, s.producer.Factory(in))
	if err != nil {
		return "", nil, fmt.Errorf("publish stream %s: %w", streamID, err)
	}
	log.Infow("开始生成", "chatId", req.ChatID, "streamId", streamID, "model", chatModel.Name)
	return streamID, chunks, nil
}

func (s *chatService) validate(req StartRequest) (generation.ModelSpec, error) {
	bad := func(detail string) error {
		return apperr.New(apperr.KindBadRequest, apperr.DomainAPI, detail)
	}
	if _, err := uuid.Parse(req.ChatID); err != nil {
		return generation.ModelSpec{}, bad("id must be a uuid")
	}
	if _, err := uuid.Parse(req.Message.ID); err != nil {
		return generation.ModelSpec{}, bad("message.id must be a uuid")
	}
	if req.Message.Role != string(model.RoleUser) {
		return generation.ModelSpec{}, bad("message.role must be user")
	}
	if len(req.Message.Parts) == 0 {
		return generation.ModelSpec{}, bad("message.parts must not be empty")
	}
	for _, p := range req.Message.Parts {
		if p.Type != model.PartText {
			return generation.ModelSpec{}, bad("message.parts only accepts text parts")
		}
		if n := utf8.RuneCountInString(p.Text); n < 1 || n > maxTextPartLength {
			return generation.ModelSpec{}, bad("text parts must be between 1 and 2000 characters")
		}
	}
	for _, a := range req.Message.Attachments {
		if a.URL == "" || !allowedContentTypes[a.ContentType] {
			return generation.ModelSpec{}, bad("attachments must be jpeg or png images")
		}
	}
	if !req.Visibility.Valid() {
		return generation.ModelSpec{}, bad("selectedVisibilityType must be private or public")
	}
	m, ok := s.models[req.SelectedChatModel]
	if !ok {
		return generation.ModelSpec{}, bad("unknown selectedChatModel")
	}
	return generation.ModelSpec{Name: m.Name, Reasoning: m.Reasoning}, nil
}

// ensureChat 在会话不存在时创建它，存在时校验归属。返回是否新建。
func (s *chatService) ensureChat(ctx context.Context, sess *Session, req StartRequest, userText string) (bool, error) {
	chat, err := s.chats.FindByID(ctx, req.ChatID)
	if err == nil {
		if !chat.OwnedBy(sess.UserID) {
			return false, apperr.New(apperr.KindForbidden, apperr.DomainChat)
		}
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("load chat: %w", err)
	}
	chat = &model.Chat{
		ID:         req.ChatID,
		UserID:     sess.UserID,
		Title:      truncateTitle(userText),
		Visibility: req.Visibility,
		CreatedAt:  s.now(),
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return false, fmt.Errorf("create chat: %w", err)
	}
	return true, nil
}

// persistAssistant 是生成完成钩子：保存助手消息并写入检索索引。
func (s *chatService) persistAssistant(ctx context.Context, msg model.Message) error {
	if err := s.messages.SaveMessages(ctx, []model.Message{msg}); err != nil {
		return err
	}
	chat, err := s.chats.FindByID(ctx, msg.ChatID)
	if err == nil {
		s.index(ctx, chat.UserID, msg)
	}
	return nil
}

func (s *chatService) index(ctx context.Context, userID uint, msg model.Message) {
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), indexTimeout)
	defer cancel()
	if err := s.indexer.Index(ictx, userID, msg); err != nil {
		log.Warnw("索引消息失败", "chatId", msg.ChatID, "messageId", msg.ID, "error", err)
	}
}

func (s *chatService) dispatchTitle(ctx context.Context, task tasks.TitleTask) {
	if s.titles == nil {
		return
	}
	if err := s.titles.Dispatch(ctx, task); err != nil {
		log.Warnw("投递标题任务失败", "chatId", task.ChatID, "error", err)
	}
}

func textOf(parts []model.Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == model.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
