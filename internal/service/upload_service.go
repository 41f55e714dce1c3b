package service

import (
	"ai-chat-go/internal/apperr"
	"ai-chat-go/internal/model"
	"ai-chat-go/pkg/log"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxAttachmentSize 是单个附件的大小上限 (5MB)。
	MaxAttachmentSize = 5 * 1024 * 1024
	presignExpiry     = 7 * 24 * time.Hour
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// ObjectStore 是附件的对象存储，storage.Client 实现了它。
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// UploadService 接口定义了附件上传操作。
type UploadService interface {
	Upload(ctx context.Context, sess *Session, fileName, contentType string, size int64, r io.Reader) (*model.Attachment, error)
}

type uploadService struct {
	store ObjectStore
}

// NewUploadService 创建一个新的 UploadService 实例。store 为 nil 时上传不可用。
func NewUploadService(store ObjectStore) UploadService {
	return &uploadService{store: store}
}

// Upload 校验并保存一个图片附件，返回可直接放入消息的附件引用。
func (s *uploadService) Upload(ctx context.Context, sess *Session, fileName, contentType string, size int64, r io.Reader) (*model.Attachment, error) {
	if sess == nil {
		return nil, apperr.New(apperr.KindUnauthorized, apperr.DomainAuth)
	}
	if size <= 0 || size > MaxAttachmentSize {
		return nil, apperr.New(apperr.KindBadRequest, apperr.DomainFile, "File size should be less than 5MB")
	}
	if !allowedContentTypes[contentType] {
		return nil, apperr.New(apperr.KindBadRequest, apperr.DomainFile, "File type should be JPEG or PNG")
	}
	if s.store == nil {
		return nil, apperr.New(apperr.KindOffline, apperr.DomainFile, "object storage is not configured")
	}

	objectName := fmt.Sprintf("%d/%s%s", sess.UserID, uuid.NewString(), extByContentType[contentType])
	if err := s.store.Upload(ctx, objectName, r, size, contentType); err != nil {
		return nil, fmt.Errorf("upload object %s: %w", objectName, err)
	}
	url, err := s.store.PresignedURL(ctx, objectName, presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign object %s: %w", objectName, err)
	}
	log.Infow("附件上传成功", "userId", sess.UserID, "object", objectName, "size", size)
	return &model.Attachment{
		URL:         url,
		Name:        path.Base(fileName),
		ContentType: contentType,
	}, nil
}
