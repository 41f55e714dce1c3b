package handler

import (
	"ai-chat-go/internal/middleware"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/service"

	"github.com/gin-gonic/gin"
)

// VoteHandler 处理消息投票。
type VoteHandler struct {
	service service.VoteService
}

// NewVoteHandler 创建一个新的 VoteHandler。
func NewVoteHandler(service service.VoteService) *VoteHandler {
	return &VoteHandler{service: service}
}

// List 返回 ?chatId= 会话的全部投票。
func (h *VoteHandler) List(c *gin.Context) {
	votes, err := h.service.List(c.Request.Context(), middleware.CurrentSession(c), c.Query("chatId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, votes)
}

// CastVoteRequest 定义了投票 API 的请求体结构。
type CastVoteRequest struct {
	ChatID    string         `json:"chatId"`
	MessageID string         `json:"messageId"`
	Type      model.VoteType `json:"type"`
}

// Cast 写入或覆盖一条投票。
func (h *VoteHandler) Cast(c *gin.Context) {
	var req CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("invalid request body"))
		return
	}
	if err := h.service.Cast(c.Request.Context(), middleware.CurrentSession(c), req.ChatID, req.MessageID, req.Type); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
