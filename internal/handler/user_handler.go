package handler

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/middleware"
	"ai-chat-go/internal/service"
	"ai-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理注册、登录与个人信息请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// CredentialsRequest 定义了注册与登录 API 的请求体结构。
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func bindCredentials(c *gin.Context) (*CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Invalid credentials payload, error: %v", err)
		respondError(c, apperr.New(apperr.KindBadRequest, apperr.DomainAuth, "username and password are required"))
		return nil, false
	}
	return &req, true
}

// Register 处理用户注册请求。
func (h *UserHandler) Register(c *gin.Context) {
	req, ok := bindCredentials(c)
	if !ok {
		return
	}
	user, err := h.userService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, user)
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	req, ok := bindCredentials(c)
	if !ok {
		return
	}
	res, err := h.userService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infof("User '%s' logged in successfully", req.Username)
	respondOK(c, res)
}

// Guest 创建访客账号并返回其 token。
func (h *UserHandler) Guest(c *gin.Context) {
	res, err := h.userService.Guest(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}

// GetProfile 获取当前登录用户的个人信息。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.userService.GetProfile(c.Request.Context(), middleware.CurrentSession(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, user)
}
