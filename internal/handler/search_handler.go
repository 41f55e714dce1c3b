package handler

import (
	"ai-chat-go/internal/middleware"
	"ai-chat-go/internal/service"
	"ai-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了历史消息搜索的处理器。
type SearchHandler struct {
	service service.ConversationService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(service service.ConversationService) *SearchHandler {
	return &SearchHandler{service: service}
}

// SearchHistory 在当前用户的消息中做全文检索。
func (h *SearchHandler) SearchHistory(c *gin.Context) {
	query := c.Query("q")
	results, err := h.service.SearchHistory(c.Request.Context(), middleware.CurrentSession(c), query)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infof("[SearchHandler] 搜索成功, query: '%s', 返回 %d 条结果", query, len(results))
	respondOK(c, results)
}
