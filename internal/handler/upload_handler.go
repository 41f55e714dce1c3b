package handler

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/middleware"
	"ai-chat-go/internal/service"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理附件上传。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Upload 处理 multipart 表单中的 file 字段。
func (h *UploadHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, apperr.New(apperr.KindBadRequest, apperr.DomainFile, "No file uploaded"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		head := make([]byte, 512)
		n, _ := f.Read(head)
		contentType = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			respondError(c, err)
			return
		}
	}

	att, err := h.uploadService.Upload(c.Request.Context(), middleware.CurrentSession(c), fh.Filename, contentType, fh.Size, f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, att)
}
