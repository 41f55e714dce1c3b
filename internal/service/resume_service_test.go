package service

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"ai-chat-go/internal/stream"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResume_UnavailableWithoutBackend(t *testing.T) {
	db := newTestDB(t)
	manager := stream.NewManager(stream.NewProvider(func(ctx context.Context) (stream.Backend, error) {
		return nil, errors.New("dial tcp: connection refused")
	}), time.Second)
	svc := NewResumeService(repository.NewChatRepository(db), repository.NewMessageRepository(db),
		NewStreamRegistry(repository.NewStreamRepository(db), nil), manager, 15*time.Second)

	res, err := svc.Resume(context.Background(), session(1), "c1", time.Now())
	require.NoError(t, err)
	assert.True(t, res.Unavailable)
	assert.Nil(t, res.Stream)
}

func TestResume_AuthorizationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedChat(t, "private", 1, model.VisibilityPrivate)

	_, err := f.resume.Resume(ctx, nil, "private", time.Now())
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized, apperr.DomainChat))

	_, err = f.resume.Resume(ctx, session(1), "missing", time.Now())
	assert.True(t, apperr.Is(err, apperr.KindNotFound, apperr.DomainChat))

	_, err = f.resume.Resume(ctx, session(2), "private", time.Now())
	assert.True(t, apperr.Is(err, apperr.KindForbidden, apperr.DomainChat))
}

func TestResume_NoStreamMinted(t *testing.T) {
	f := newFixture(t)
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)

	_, err := f.resume.Resume(context.Background(), session(1), "c1", time.Now())
	assert.True(t, apperr.Is(err, apperr.KindNotFound, apperr.DomainStream))
}

func TestResume_PublicChatReadableByOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedChat(t, "c1", 1, model.VisibilityPublic)
	_, err := f.streams.Mint(ctx, "c1")
	require.NoError(t, err)

	res, err := f.resume.Resume(ctx, session(2), "c1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, []stream.Chunk{stream.Finish()}, drain(t, res.Stream))
}

func TestResume_FallbackIgnoresUserMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)
	f.seedMessage(t, "c1", model.RoleUser, "hi", now.Add(-time.Second))
	_, err := f.streams.Mint(ctx, "c1")
	require.NoError(t, err)

	res, err := f.resume.Resume(ctx, session(1), "c1", now)
	require.NoError(t, err)
	assert.Equal(t, []stream.Chunk{stream.Finish()}, drain(t, res.Stream))
}

func TestResume_FallbackIgnoresStaleAssistantMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)
	f.seedMessage(t, "c1", model.RoleUser, "hi", now.Add(-30*time.Second))
	f.seedMessage(t, "c1", model.RoleAssistant, "old answer", now.Add(-20*time.Second))
	_, err := f.streams.Mint(ctx, "c1")
	require.NoError(t, err)

	res, err := f.resume.Resume(ctx, session(1), "c1", now)
	require.NoError(t, err)
	assert.Equal(t, []stream.Chunk{stream.Finish()}, drain(t, res.Stream))
}

func TestResume_FallbackReplaysRecentAssistantMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)
	f.seedMessage(t, "c1", model.RoleUser, "hi", now.Add(-10*time.Second))
	want := f.seedMessage(t, "c1", model.RoleAssistant, "Hello", now.Add(-5*time.Second))
	_, err := f.streams.Mint(ctx, "c1")
	require.NoError(t, err)

	res, err := f.resume.Resume(ctx, session(1), "c1", now)
	require.NoError(t, err)
	got := drain(t, res.Stream)
	require.Len(t, got, 2)
	assert.Equal(t, stream.ChunkAppendMessage, got[0].Type)
	assert.True(t, got[0].Transient)
	assert.True(t, got[1].IsTerminator())

	var msg model.Message
	require.NoError(t, json.Unmarshal(got[0].Data, &msg))
	assert.Equal(t, want.ID, msg.ID)
	assert.Equal(t, "Hello", msg.Text())
}

func TestResume_FallbackWindowCountsWholeSeconds(t *testing.T) {
	cases := []struct {
		name   string
		age    time.Duration
		replay bool
	}{
		{"within fraction of a second", 15*time.Second + 400*time.Millisecond, true},
		{"past window", 16 * time.Second, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			at := time.Now().UTC().Truncate(time.Second)
			f.seedChat(t, "c1", 1, model.VisibilityPrivate)
			f.seedMessage(t, "c1", model.RoleAssistant, "Hello", at)
			_, err := f.streams.Mint(ctx, "c1")
			require.NoError(t, err)

			res, err := f.resume.Resume(ctx, session(1), "c1", at.Add(tc.age))
			require.NoError(t, err)
			got := drain(t, res.Stream)
			if tc.replay {
				require.Len(t, got, 2)
				assert.Equal(t, stream.ChunkAppendMessage, got[0].Type)
			} else {
				assert.Equal(t, []stream.Chunk{stream.Finish()}, got)
			}
		})
	}
}

func TestResume_AttachesToLiveStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)
	streamID, err := f.streams.Mint(ctx, "c1")
	require.NoError(t, err)

	gate := make(chan struct{})
	_, err = f.manager.Publish(ctx, streamID, func(ctx context.Context) (<-chan stream.Chunk, error) {
		ch := make(chan stream.Chunk)
		go func() {
			defer close(ch)
			ch <- stream.Start("m1")
			ch <- stream.TextDelta("t1", "Hel")
			ch <- stream.TextDelta("t1", "lo")
			<-gate
			ch <- stream.Finish()
		}()
		return ch, nil
	})
	require.NoError(t, err)

	res, err := f.resume.Resume(ctx, session(1), "c1", time.Now())
	require.NoError(t, err)
	require.False(t, res.Unavailable)
	close(gate)

	got := drain(t, res.Stream)
	require.NotEmpty(t, got)
	assert.Equal(t, stream.ChunkStart, got[0].Type)
	assert.True(t, got[len(got)-1].IsTerminator())
	assert.Equal(t, "Hello", contentOf(t, got))
}
