package storage

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/taskboard/domain"
	"github.com/fastygo/taskboard/repository"
	"github.com/fastygo/taskboard/usecase"
)

// PublicPrefix is the route under which stored objects are served.
const PublicPrefix = "/storage/v1/object/public/"

type Config struct {
	// BaseURL is the externally reachable origin, e.g. http://localhost:8080.
	BaseURL        string
	MaxUploadBytes int64
}

// Service implements usecase.BlobStorage over a blob repository.
type Service struct {
	objects repository.BlobRepository
	baseURL string
	maxSize int64
	logger  *zap.Logger
}

func NewService(objects repository.BlobRepository, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	return &Service{
		objects: objects,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		maxSize: cfg.MaxUploadBytes,
		logger:  logger,
	}
}

func (s *Service) Upload(ctx context.Context, bucket, key string, upload domain.PendingUpload) error {
	if upload.Size() == 0 {
		return domain.NewError(domain.ErrCodeInvalid, "upload is empty")
	}
	if int64(upload.Size()) > s.maxSize {
		return domain.ErrObjectTooLarge
	}
	if upload.ContentType == "" {
		upload.ContentType = "application/octet-stream"
	}

	if err := s.objects.Put(ctx, bucket, key, upload); err != nil {
		return err
	}
	s.logger.Debug("object stored",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("size", upload.Size()))
	return nil
}

// PublicURL returns the address the object is served from. It does not
// check that the object exists.
func (s *Service) PublicURL(bucket, key string) string {
	return s.baseURL + PublicPrefix + url.PathEscape(bucket) + "/" + url.PathEscape(key)
}

// Open returns a stored object for serving.
func (s *Service) Open(ctx context.Context, bucket, key string) (*repository.Object, error) {
	return s.objects.Get(ctx, bucket, key)
}

var _ usecase.BlobStorage = (*Service)(nil)
