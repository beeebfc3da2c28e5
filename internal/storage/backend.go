package storage

import (
	"context"
	"fmt"

	"github.com/sahana-project/ewaste-api/config"
)

// NewBackend builds the object storage backend selected by cfg.Backend.
func NewBackend(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinioClient(cfg.Minio)
	case "gcs":
		return NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
