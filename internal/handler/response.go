// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondError 把错误转换为 {"code","message","cause"} 响应。非业务错误统一返回
// internal_server_error:api，完整错误只写日志。
func respondError(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		log.Errorw("请求处理失败", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		e = apperr.New(apperr.KindInternal, apperr.DomainAPI)
	}
	body := gin.H{"code": e.Code(), "message": e.Message()}
	if e.Detail != "" {
		body["cause"] = e.Detail
	}
	c.AbortWithStatusJSON(e.Status(), body)
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

func badRequest(detail string) error {
	return apperr.New(apperr.KindBadRequest, apperr.DomainAPI, detail)
}
