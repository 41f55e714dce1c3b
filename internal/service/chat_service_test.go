package service

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/stream"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRequest(chatID, text string) StartRequest {
	return StartRequest{
		ChatID: chatID,
		Message: PostMessage{
			ID:    uuid.NewString(),
			Role:  "user",
			Parts: []model.Part{{Type: model.PartText, Text: text}},
		},
		SelectedChatModel: "chat-model",
		Visibility:        model.VisibilityPrivate,
	}
}

func TestStartGeneration_StreamsAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := uuid.NewString()

	streamID, ch, err := f.chat.StartGeneration(ctx, session(1), startRequest(chatID, "Say hello"))
	require.NoError(t, err)
	require.NotEmpty(t, streamID)

	got := drain(t, ch)
	require.NotEmpty(t, got)
	assert.Equal(t, stream.ChunkStart, got[0].Type)
	assert.True(t, got[len(got)-1].IsTerminator())
	assert.Equal(t, "Hello", contentOf(t, got))

	chat, err := f.chats.FindByID(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), chat.UserID)
	assert.Equal(t, "Say hello", chat.Title)

	msgs, err := f.messages.FindByChat(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, got[0].MessageID, msgs[1].ID)
	assert.Equal(t, "Hello", msgs[1].Text())

	ids, err := f.streams.List(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, []string{streamID}, ids)

	f.titles.mu.Lock()
	defer f.titles.mu.Unlock()
	require.Len(t, f.titles.tasks, 1)
	assert.Equal(t, chatID, f.titles.tasks[0].ChatID)
	assert.Equal(t, "Say hello", f.titles.tasks[0].Message)
}

func TestStartGeneration_ResumeAfterCompletionYieldsSameContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := uuid.NewString()

	_, ch, err := f.chat.StartGeneration(ctx, session(1), startRequest(chatID, "Say hello"))
	require.NoError(t, err)
	live := contentOf(t, drain(t, ch))

	res, err := f.resume.Resume(ctx, session(1), chatID, time.Now().UTC())
	require.NoError(t, err)
	resumed := drain(t, res.Stream)
	require.NotEmpty(t, resumed)
	assert.True(t, resumed[len(resumed)-1].IsTerminator())
	assert.Equal(t, live, contentOf(t, resumed))
}

func TestStartGeneration_ExistingChatSkipsTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := uuid.NewString()
	f.seedChat(t, chatID, 1, model.VisibilityPrivate)

	_, ch, err := f.chat.StartGeneration(ctx, session(1), startRequest(chatID, "again"))
	require.NoError(t, err)
	drain(t, ch)

	f.titles.mu.Lock()
	defer f.titles.mu.Unlock()
	assert.Empty(t, f.titles.tasks)
}

func TestStartGeneration_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]func(r *StartRequest){
		"chat id":     func(r *StartRequest) { r.ChatID = "not-a-uuid" },
		"message id":  func(r *StartRequest) { r.Message.ID = "" },
		"role":        func(r *StartRequest) { r.Message.Role = "assistant" },
		"empty parts": func(r *StartRequest) { r.Message.Parts = nil },
		"empty text":  func(r *StartRequest) { r.Message.Parts[0].Text = "" },
		"long text":   func(r *StartRequest) { r.Message.Parts[0].Text = strings.Repeat("a", 2001) },
		"model":       func(r *StartRequest) { r.SelectedChatModel = "gpt-unknown" },
		"visibility":  func(r *StartRequest) { r.Visibility = "friends" },
		"attachment":  func(r *StartRequest) { r.Message.Attachments = []model.Attachment{{URL: "u", ContentType: "image/gif"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := startRequest(uuid.NewString(), "hi")
			mutate(&req)
			_, _, err := f.chat.StartGeneration(ctx, session(1), req)
			assert.True(t, apperr.Is(err, apperr.KindBadRequest, apperr.DomainAPI), "got %v", err)
		})
	}
}

func TestStartGeneration_RequiresSession(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.NewString()

	_, _, err := f.chat.StartGeneration(context.Background(), nil, startRequest(chatID, "hi"))
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized, apperr.DomainChat))

	_, err = f.chats.FindByID(context.Background(), chatID)
	assert.Error(t, err)
}

func TestStartGeneration_ForbiddenOnForeignChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := uuid.NewString()
	f.seedChat(t, chatID, 1, model.VisibilityPublic)

	_, _, err := f.chat.StartGeneration(ctx, session(2), startRequest(chatID, "hi"))
	assert.True(t, apperr.Is(err, apperr.KindForbidden, apperr.DomainChat))

	msgs, err := f.messages.FindByChat(ctx, chatID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	ids, err := f.streams.List(ctx, chatID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStartGeneration_RateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := uuid.NewString()
	f.seedChat(t, chatID, 1, model.VisibilityPrivate)
	now := time.Now().UTC()
	for i := 0; i < 21; i++ {
		f.seedMessage(t, chatID, model.RoleUser, "spam", now.Add(-time.Duration(i+1)*time.Minute))
	}

	guest := &Session{UserID: 1, Username: "guest-1", UserType: model.UserTypeGuest}
	_, _, err := f.chat.StartGeneration(ctx, guest, startRequest(chatID, "one more"))
	assert.True(t, apperr.Is(err, apperr.KindRateLimit, apperr.DomainChat))

	_, ch, err := f.chat.StartGeneration(ctx, session(1), startRequest(chatID, "regular user"))
	require.NoError(t, err)
	drain(t, ch)
}

func TestStartGeneration_EngineErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.engine.err = assert.AnError

	_, _, err := f.chat.StartGeneration(context.Background(), session(1), startRequest(uuid.NewString(), "hi"))
	require.Error(t, err)
	_, ok := apperr.As(err)
	assert.False(t, ok)
}
