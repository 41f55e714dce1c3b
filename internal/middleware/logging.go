// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"ai-chat-go/pkg/log"
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// 超过此长度的请求/响应体不记录。
const maxLoggedBody = 4096

// bodyLogWriter 用于捕获响应体。流式响应不捕获。
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter，并在非流式响应时写入内部 buffer。
func (w *bodyLogWriter) Write(b []byte) (int, error) {
	if !isStreaming(w.Header().Get("Content-Type")) && w.body.Len()+len(b) <= maxLoggedBody {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// 只缓存 JSON 请求体，附件上传等二进制内容不读入内存
		var requestBody []byte
		if c.Request.Body != nil && strings.HasPrefix(c.ContentType(), "application/json") && c.Request.ContentLength <= maxLoggedBody {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		fields := []interface{}{
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		}
		if len(requestBody) > 0 {
			fields = append(fields, "requestBody", string(requestBody))
		}
		if blw.body.Len() > 0 {
			fields = append(fields, "responseBody", blw.body.String())
		}
		log.Infow("HTTP Request Log", fields...)
	}
}

func isStreaming(contentType string) bool {
	return strings.HasPrefix(contentType, "text/event-stream")
}
