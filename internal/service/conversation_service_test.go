package service

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/model"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteChat_ForbiddenLeavesRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewConversationService(f.chats, f.messages, nil)
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)
	msg := f.seedMessage(t, "c1", model.RoleUser, "hi", time.Now().UTC())
	require.NoError(t, f.votes.Upsert(ctx, &model.Vote{ChatID: "c1", MessageID: msg.ID, IsUpvoted: true}))
	_, err := f.streams.Mint(ctx, "c1")
	require.NoError(t, err)

	_, err = svc.DeleteChat(ctx, session(2), "c1")
	assert.True(t, apperr.Is(err, apperr.KindForbidden, apperr.DomainChat))

	_, err = f.chats.FindByID(ctx, "c1")
	assert.NoError(t, err)
	msgs, _ := f.messages.FindByChat(ctx, "c1")
	assert.Len(t, msgs, 1)
	votes, _ := f.votes.FindByChat(ctx, "c1")
	assert.Len(t, votes, 1)
	ids, _ := f.streams.List(ctx, "c1")
	assert.Len(t, ids, 1)
}

func TestDeleteChat_OwnerCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewConversationService(f.chats, f.messages, nil)
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)
	f.seedMessage(t, "c1", model.RoleUser, "hi", time.Now().UTC())
	_, err := f.streams.Mint(ctx, "c1")
	require.NoError(t, err)

	deleted, err := svc.DeleteChat(ctx, session(1), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", deleted.ID)

	_, err = svc.DeleteChat(ctx, session(1), "c1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound, apperr.DomainChat))
	ids, _ := f.streams.List(ctx, "c1")
	assert.Empty(t, ids)

	_, err = svc.DeleteChat(ctx, nil, "c1")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized, apperr.DomainChat))
}

func TestGetChat_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewConversationService(f.chats, f.messages, nil)
	f.seedChat(t, "private", 1, model.VisibilityPrivate)
	f.seedChat(t, "public", 1, model.VisibilityPublic)

	_, err := svc.GetChat(ctx, session(2), "private")
	assert.True(t, apperr.Is(err, apperr.KindForbidden, apperr.DomainChat))
	_, err = svc.GetChat(ctx, nil, "private")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized, apperr.DomainChat))

	detail, err := svc.GetChat(ctx, nil, "public")
	require.NoError(t, err)
	assert.Equal(t, "public", detail.Chat.ID)

	require.NoError(t, svc.UpdateVisibility(ctx, session(1), "private", model.VisibilityPublic))
	_, err = svc.GetChat(ctx, session(2), "private")
	assert.NoError(t, err)

	err = svc.UpdateVisibility(ctx, session(2), "public", model.VisibilityPrivate)
	assert.True(t, apperr.Is(err, apperr.KindForbidden, apperr.DomainChat))
}

func TestListHistory_Paginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewConversationService(f.chats, f.messages, nil)
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.chats.Create(ctx, &model.Chat{
			ID: fmt.Sprintf("c%d", i), UserID: 1, Title: "t", Visibility: model.VisibilityPrivate,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := svc.ListHistory(ctx, session(1), 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Chats, 2)
	assert.Equal(t, "c2", page.Chats[0].ID)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(3), page.Total)

	page, err = svc.ListHistory(ctx, session(1), 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Chats, 1)
	assert.False(t, page.HasMore)
}

func TestSearchHistory_RequiresQuery(t *testing.T) {
	f := newFixture(t)
	svc := NewConversationService(f.chats, f.messages, nil)

	_, err := svc.SearchHistory(context.Background(), session(1), "  ")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest, apperr.DomainAPI))

	docs, err := svc.SearchHistory(context.Background(), session(1), "weather")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestVote_UpsertKeepsLatestDirection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewVoteService(f.chats, f.votes)
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)

	require.NoError(t, svc.Cast(ctx, session(1), "c1", "m1", model.VoteUp))
	require.NoError(t, svc.Cast(ctx, session(1), "c1", "m1", model.VoteDown))

	votes, err := svc.List(ctx, session(1), "c1")
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.False(t, votes[0].IsUpvoted)
}

func TestVote_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewVoteService(f.chats, f.votes)
	f.seedChat(t, "c1", 1, model.VisibilityPrivate)

	err := svc.Cast(ctx, session(1), "c1", "m1", "sideways")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest, apperr.DomainAPI))
	err = svc.Cast(ctx, nil, "c1", "m1", model.VoteUp)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized, apperr.DomainVote))
	err = svc.Cast(ctx, session(1), "missing", "m1", model.VoteUp)
	assert.True(t, apperr.Is(err, apperr.KindNotFound, apperr.DomainVote))
	err = svc.Cast(ctx, session(2), "c1", "m1", model.VoteUp)
	assert.True(t, apperr.Is(err, apperr.KindForbidden, apperr.DomainVote))

	_, err = svc.List(ctx, session(1), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound, apperr.DomainChat))
	_, err = svc.List(ctx, session(2), "c1")
	assert.True(t, apperr.Is(err, apperr.KindForbidden, apperr.DomainVote))
}
