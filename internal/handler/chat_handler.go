package handler

import (
	"ai-chat-go/internal/generation"
	"ai-chat-go/internal/middleware"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/service"
	"ai-chat-go/internal/stream"
	"ai-chat-go/pkg/log"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责发起生成与断线续传。
type ChatHandler struct {
	chatService   service.ChatService
	resumeService service.ResumeService
	now           func() time.Time
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, resumeService service.ResumeService) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		resumeService: resumeService,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// PostChatRequest 定义了发起生成 API 的请求体结构。
type PostChatRequest struct {
	ID                     string              `json:"id"`
	Message                service.PostMessage `json:"message"`
	SelectedChatModel      string              `json:"selectedChatModel"`
	SelectedVisibilityType model.Visibility    `json:"selectedVisibilityType"`
}

// Post 校验请求并以 SSE 推送生成的 chunk。
func (h *ChatHandler) Post(c *gin.Context) {
	var req PostChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Post: Invalid request payload, error: %v", err)
		respondError(c, badRequest("invalid request body"))
		return
	}

	streamID, chunks, err := h.chatService.StartGeneration(c.Request.Context(), middleware.CurrentSession(c), service.StartRequest{
		ChatID:            req.ID,
		Message:           req.Message,
		SelectedChatModel: req.SelectedChatModel,
		Visibility:        req.SelectedVisibilityType,
		Hints:             requestHints(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("X-Stream-Id", streamID)
	writeSSE(c, chunks)
}

// Resume 为会话最近的流重新建立 SSE 连接。没有通道后端时返回 204。
func (h *ChatHandler) Resume(c *gin.Context) {
	res, err := h.resumeService.Resume(c.Request.Context(), middleware.CurrentSession(c), c.Param("id"), h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	if res.Unavailable {
		c.Status(http.StatusNoContent)
		return
	}
	writeSSE(c, res.Stream)
}

// ResumeWebsocket 与 Resume 相同，但通过 WebSocket 逐条推送 chunk，最后一条为 finish。
func (h *ChatHandler) ResumeWebsocket(c *gin.Context) {
	res, err := h.resumeService.Resume(c.Request.Context(), middleware.CurrentSession(c), c.Param("id"), h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	if res.Unavailable {
		c.Status(http.StatusNoContent)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	// 客户端断开时读循环返回，取消读者但不影响生成
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-res.Stream:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(chunk); err != nil {
				log.Warnf("WebSocket 写入失败: %v", err)
				return
			}
		}
	}
}

// writeSSE 以 text/event-stream 推送 chunk，每帧立即 flush，流结束后发送 [DONE]。
// 客户端断开时停止读取，生成在后台继续。
func writeSSE(c *gin.Context, chunks <-chan stream.Chunk) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				_ = stream.WriteDone(c.Writer)
				c.Writer.Flush()
				return
			}
			if err := stream.WriteSSE(c.Writer, chunk); err != nil {
				log.Warnf("SSE 写入失败: %v", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

func requestHints(c *gin.Context) generation.Hints {
	return generation.Hints{
		Latitude:  c.GetHeader("X-Geo-Latitude"),
		Longitude: c.GetHeader("X-Geo-Longitude"),
		City:      c.GetHeader("X-Geo-City"),
		Country:   c.GetHeader("X-Geo-Country"),
	}
}
