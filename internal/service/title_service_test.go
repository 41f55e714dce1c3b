package service

import (
	"ai-chat-go/internal/model"
	"ai-chat-go/pkg/tasks"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitleService_UpdatesChatTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)
	f.engine.title = "\"Weather in Berlin\"\n"

	svc := NewTitleService(f.chats, f.engine, "deepseek-chat", "Generate a short title.")
	require.NoError(t, svc.Process(ctx, tasks.TitleTask{ChatID: "c1", UserID: 1, Message: "what's the weather in berlin"}))

	chat, err := f.chats.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Weather in Berlin", chat.Title)
}

func TestTitleService_EngineFailure(t *testing.T) {
	f := newFixture(t)
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)
	f.engine.err = assert.AnError

	svc := NewTitleService(f.chats, f.engine, "deepseek-chat", "")
	err := svc.Process(context.Background(), tasks.TitleTask{ChatID: "c1", Message: "hi"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestInlineTitleDispatcher_RunsInBackground(t *testing.T) {
	f := newFixture(t)
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)
	f.engine.title = "Greeting"

	d := NewInlineTitleDispatcher(NewTitleService(f.chats, f.engine, "deepseek-chat", ""), tasks.NewAttempts(nil))
	require.NoError(t, d.Dispatch(context.Background(), tasks.TitleTask{ChatID: "c1", Message: "hello"}))

	assert.Eventually(t, func() bool {
		chat, err := f.chats.FindByID(context.Background(), "c1")
		return err == nil && chat.Title == "Greeting"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestTruncateTitle(t *testing.T) {
	assert.Equal(t, "a b", truncateTitle(" a\nb "))
	long := strings.Repeat("界", 100)
	assert.Equal(t, 80, len([]rune(truncateTitle(long))))
}
