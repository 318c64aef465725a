package vouchers

import (
	"context"
	"fmt"

	"github.com/skip2/go-qrcode"

	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/storage"
)

const qrSize = 256

// ArtifactBuilder renders and stores redemption QR images.
type ArtifactBuilder struct {
	store   storage.BlobStore
	baseURL string
	logg    *logger.Logger
	encode  func(content string, size int) ([]byte, error)
}

func NewArtifactBuilder(store storage.BlobStore, baseURL string, logg *logger.Logger) (*ArtifactBuilder, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("base url required")
	}
	return &ArtifactBuilder{
		store:   store,
		baseURL: baseURL,
		logg:    logg,
		encode: func(content string, size int) ([]byte, error) {
			return qrcode.Encode(content, qrcode.Medium, size)
		},
	}, nil
}

// Build stores the QR image for code unless it already exists and returns its key.
func (b *ArtifactBuilder) Build(ctx context.Context, code string) (string, error) {
	key := QRKey(code)
	exists, err := b.store.Exists(ctx, key)
	if err != nil {
		return key, fmt.Errorf("check qr artifact: %w", err)
	}
	if exists {
		return key, nil
	}
	png, err := b.encode(RedemptionURL(b.baseURL, code), qrSize)
	if err != nil {
		return key, fmt.Errorf("encode qr: %w", err)
	}
	if err := b.store.Save(ctx, key, "image/png", png); err != nil {
		return key, fmt.Errorf("store qr artifact: %w", err)
	}
	return key, nil
}

// BuildAll builds artifacts for codes and only logs failures; a missing image
// is regenerated when the QR endpoint is hit.
func (b *ArtifactBuilder) BuildAll(ctx context.Context, codes []string) int {
	built := 0
	for _, code := range codes {
		if _, err := b.Build(ctx, code); err != nil {
			if b.logg != nil {
				b.logg.Warn(b.logg.WithFields(ctx, map[string]any{
					"voucher_code": code,
					"error":        err.Error(),
				}), "vouchers.qr_build_failed")
			}
			continue
		}
		built++
	}
	return built
}

// URL ensures the artifact exists and returns where it can be fetched.
func (b *ArtifactBuilder) URL(ctx context.Context, code string) (string, error) {
	key, err := b.Build(ctx, code)
	if err != nil {
		return "", err
	}
	return b.store.URL(ctx, key)
}
