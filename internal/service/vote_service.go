package service

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"context"
)

// VoteService 处理消息投票。
type VoteService interface {
	List(ctx context.Context, sess *Session, chatID string) ([]model.Vote, error)
	// Cast 写入投票，同一消息重复投票时覆盖方向。
	Cast(ctx context.Context, sess *Session, chatID, messageID string, voteType model.VoteType) error
}

type voteService struct {
	chats repository.ChatRepository
	votes repository.VoteRepository
}

// NewVoteService 创建 VoteService。
func NewVoteService(chats repository.ChatRepository, votes repository.VoteRepository) VoteService {
	return &voteService{chats: chats, votes: votes}
}

func (s *voteService) List(ctx context.Context, sess *Session, chatID string) ([]model.Vote, error) {
	if chatID == "" {
		return nil, apperr.New(apperr.KindBadRequest, apperr.DomainAPI, "Parameter chatId is required.")
	}
	if sess == nil {
		return nil, apperr.New(apperr.KindUnauthorized, apperr.DomainVote)
	}
	chat, err := loadChat(ctx, s.chats, chatID, apperr.New(apperr.KindNotFound, apperr.DomainChat))
	if err != nil {
		return nil, err
	}
	if !chat.OwnedBy(sess.UserID) {
		return nil, apperr.New(apperr.KindForbidden, apperr.DomainVote)
	}
	return s.votes.FindByChat(ctx, chatID)
}

func (s *voteService) Cast(ctx context.Context, sess *Session, chatID, messageID string, voteType model.VoteType) error {
	if chatID == "" || messageID == "" || (voteType != model.VoteUp && voteType != model.VoteDown) {
		return apperr.New(apperr.KindBadRequest, apperr.DomainAPI, "Parameters chatId, messageId, and type are required.")
	}
	if sess == nil {
		return apperr.New(apperr.KindUnauthorized, apperr.DomainVote)
	}
	chat, err := loadChat(ctx, s.chats, chatID, apperr.New(apperr.KindNotFound, apperr.DomainVote))
	if err != nil {
		return err
	}
	if !chat.OwnedBy(sess.UserID) {
		return apperr.New(apperr.KindForbidden, apperr.DomainVote)
	}
	return s.votes.Upsert(ctx, &model.Vote{
		ChatID:    chatID,
		MessageID: messageID,
		IsUpvoted: voteType == model.VoteUp,
	})
}
