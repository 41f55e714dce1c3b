package handler

import (
	"ai-chat-go/internal/middleware"
	"ai-chat-go/internal/service"
	"ai-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Services 汇总路由需要的业务服务。
type Services struct {
	Users         service.UserService
	Chats         service.ChatService
	Resume        service.ResumeService
	Conversations service.ConversationService
	Votes         service.VoteService
	Uploads       service.UploadService
}

// RegisterRoutes 在 r 上注册 /api/v1 下的全部路由。
func RegisterRoutes(r *gin.Engine, s Services, jwtManager *token.JWTManager) {
	userHandler := NewUserHandler(s.Users)
	chatHandler := NewChatHandler(s.Chats, s.Resume)
	conversationHandler := NewConversationHandler(s.Conversations)
	searchHandler := NewSearchHandler(s.Conversations)
	voteHandler := NewVoteHandler(s.Votes)
	uploadHandler := NewUploadHandler(s.Uploads)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.Authenticate(jwtManager))
	{
		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)
			users.POST("/guest", userHandler.Guest)
			users.GET("/me", middleware.RequireAuth(), userHandler.GetProfile)
		}

		// 登录态由业务层按错误域检查
		chat := apiV1.Group("/chat")
		{
			chat.POST("", chatHandler.Post)
			chat.DELETE("", conversationHandler.DeleteChat)
			chat.GET("/:id", conversationHandler.GetChat)
			chat.PATCH("/:id/visibility", conversationHandler.UpdateVisibility)
			chat.GET("/:id/stream", chatHandler.Resume)
			chat.GET("/:id/stream/ws", chatHandler.ResumeWebsocket)
		}

		apiV1.GET("/history", conversationHandler.History)
		apiV1.GET("/history/search", searchHandler.SearchHistory)

		apiV1.GET("/vote", voteHandler.List)
		apiV1.PATCH("/vote", voteHandler.Cast)

		apiV1.POST("/files/upload", uploadHandler.Upload)
	}
}
