package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	cfg "github.com/feichai0017/document-chunker/config"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/storage/minio"
	"github.com/feichai0017/document-chunker/pkg/storage/s3"
)

// StorageType selects the object store backend.
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage keeps uploaded documents and chunking results.
type Storage interface {
	// Store writes reader under key and returns the key.
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// CleanupBefore deletes objects last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage builds the backend named by c.Type.
func NewStorage(ctx context.Context, c cfg.StorageConfig, log logger.Logger) (Storage, error) {
	switch StorageType(c.Type) {
	case StorageTypeS3, "":
		return s3.NewS3Storage(ctx, &c.S3, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, &c.Minio, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Type)
	}
}
