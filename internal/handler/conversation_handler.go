package handler

import (
	"ai-chat-go/internal/middleware"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理会话读取、删除、可见性与历史列表。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetChat 返回会话及其消息。私有会话仅所有者可读。
func (h *ConversationHandler) GetChat(c *gin.Context) {
	detail, err := h.service.GetChat(c.Request.Context(), middleware.CurrentSession(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, detail)
}

// DeleteChat 删除 ?id= 指定的会话并返回被删除的记录。
func (h *ConversationHandler) DeleteChat(c *gin.Context) {
	deleted, err := h.service.DeleteChat(c.Request.Context(), middleware.CurrentSession(c), c.Query("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, deleted)
}

// UpdateVisibilityRequest 定义了修改可见性 API 的请求体结构。
type UpdateVisibilityRequest struct {
	Visibility model.Visibility `json:"visibility"`
}

// UpdateVisibility 修改会话的可见性。
func (h *ConversationHandler) UpdateVisibility(c *gin.Context) {
	var req UpdateVisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest("invalid request body"))
		return
	}
	if err := h.service.UpdateVisibility(c.Request.Context(), middleware.CurrentSession(c), c.Param("id"), req.Visibility); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"id": c.Param("id"), "visibility": req.Visibility})
}

// History 分页返回当前用户的会话，最新的在前。
func (h *ConversationHandler) History(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil {
		respondError(c, badRequest("limit must be a number"))
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		respondError(c, badRequest("offset must be a number"))
		return
	}
	page, err := h.service.ListHistory(c.Request.Context(), middleware.CurrentSession(c), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, page)
}
