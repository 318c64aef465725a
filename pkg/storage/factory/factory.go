// Package factory selects the configured blob backend.
package factory

import (
	"context"
	"fmt"

	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/storage"
	"github.com/angelmondragon/pawpass-backend/pkg/storage/cloudinary"
	"github.com/angelmondragon/pawpass-backend/pkg/storage/gcs"
	"github.com/angelmondragon/pawpass-backend/pkg/storage/local"
)

// New builds the BlobStore named by PAWPASS_BLOB_BACKEND.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (storage.BlobStore, error) {
	switch cfg.Blob.Kind() {
	case config.BlobBackendLocal:
		return local.New(cfg.Blob)
	case config.BlobBackendGCS:
		return gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	case config.BlobBackendCloudinary:
		return cloudinary.New(ctx, cfg.Cloudinary, logg)
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", cfg.Blob.Backend)
	}
}
