package service

import (
	"ai-chat-go/internal/config"
	"ai-chat-go/internal/generation"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"ai-chat-go/internal/stream"
	"ai-chat-go/pkg/llm"
	"ai-chat-go/pkg/tasks"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

type fakeEngine struct {
	events []llm.Event
	title  string
	err    error
}

func (f *fakeEngine) Stream(ctx context.Context, req llm.Request) (<-chan llm.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan llm.Event, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func (f *fakeEngine) Complete(ctx context.Context, model string, messages []llm.Message) (string, error) {
	return f.title, f.err
}

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []tasks.TitleTask
}

func (d *recordingDispatcher) Dispatch(_ context.Context, task tasks.TitleTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	return nil
}

// fixture 把所有服务连到同一个 sqlite 库和内存通道后端上。
type fixture struct {
	db       *gorm.DB
	chats    repository.ChatRepository
	messages repository.MessageRepository
	votes    repository.VoteRepository
	streams  *StreamRegistry
	manager  *stream.Manager
	engine   *fakeEngine
	titles   *recordingDispatcher
	chat     ChatService
	resume   ResumeService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		db:       db,
		chats:    repository.NewChatRepository(db),
		messages: repository.NewMessageRepository(db),
		votes:    repository.NewVoteRepository(db),
		streams:  NewStreamRegistry(repository.NewStreamRepository(db), nil),
		manager:  stream.NewManager(stream.Static(stream.NewMemoryBackend(time.Minute)), 5*time.Second),
		engine: &fakeEngine{events: []llm.Event{
			{Type: llm.EventTextDelta, Text: "Hel"},
			{Type: llm.EventTextDelta, Text: "lo"},
			{Type: llm.EventFinish, FinishReason: "stop"},
		}},
		titles: &recordingDispatcher{},
	}
	f.chat = NewChatService(ChatDeps{
		Chats:      f.chats,
		Messages:   f.messages,
		Streams:    f.streams,
		Manager:    f.manager,
		Engine:     f.engine,
		Generation: generation.Options{SystemPrompt: "You are a friendly assistant!"},
		Models:     map[string]config.LLMModel{"chat-model": {Name: "deepseek-chat"}},
		Policy: config.ChatConfig{
			RateLimitHours: 24,
			MaxSteps:       5,
			Entitlements:   map[string]int{"guest": 20, "regular": 100},
		},
		Titles: f.titles,
	})
	f.resume = NewResumeService(f.chats, f.messages, f.streams, f.manager, 15*time.Second)
	return f
}

func (f *fixture) seedChat(t *testing.T, id string, owner uint, visibility model.Visibility) {
	t.Helper()
	require.NoError(t, f.chats.Create(context.Background(), &model.Chat{
		ID: id, UserID: owner, Title: "seed", Visibility: visibility, CreatedAt: time.Now().UTC(),
	}))
}

func (f *fixture) seedMessage(t *testing.T, chatID string, role model.Role, text string, at time.Time) model.Message {
	t.Helper()
	msg := model.NewMessage(fmt.Sprintf("%s-%d", role, at.UnixNano()), chatID, role,
		[]model.Part{{Type: model.PartText, Text: text}}, nil, at)
	require.NoError(t, f.messages.SaveMessages(context.Background(), []model.Message{msg}))
	return msg
}

func session(id uint) *Session {
	return &Session{UserID: id, Username: fmt.Sprintf("user-%d", id), UserType: model.UserTypeRegular}
}

func drain(t *testing.T, ch <-chan stream.Chunk) []stream.Chunk {
	t.Helper()
	var got []stream.Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, c)
		case <-timeout:
			t.Fatal("stream did not terminate")
			return got
		}
	}
}

// contentOf 还原读者看到的最终文本，无论来自实时 chunk 还是回放的消息。
func contentOf(t *testing.T, chunks []stream.Chunk) string {
	t.Helper()
	var text string
	for _, c := range chunks {
		switch c.Type {
		case stream.ChunkTextDelta:
			text += c.Delta
		case stream.ChunkAppendMessage:
			var msg model.Message
			require.NoError(t, json.Unmarshal(c.Data, &msg))
			return msg.Text()
		}
	}
	return text
}
