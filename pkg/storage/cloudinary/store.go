package cloudinary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/storage"
)

type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

type adminAPI interface {
	Asset(ctx context.Context, params admin.AssetParams) (*admin.AssetResult, error)
}

// Store keeps blobs as Cloudinary image assets; keys map to public ids under
// the configured folder with the file extension dropped.
type Store struct {
	upload uploadAPI
	admin  adminAPI
	cloud  string
	folder string
}

func New(ctx context.Context, cfg config.CloudinaryConfig, logg *logger.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("cloudinary url is required")
	}
	cld, err := cloudinary.NewFromURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "cloudinary client initialized")
	}
	return &Store{
		upload: &cld.Upload,
		admin:  &cld.Admin,
		cloud:  cld.Config.Cloud.CloudName,
		folder: strings.Trim(cfg.Folder, "/"),
	}, nil
}

func (s *Store) publicID(key string) (string, error) {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return "", err
	}
	clean = strings.TrimSuffix(clean, path.Ext(clean))
	if s.folder == "" {
		return clean, nil
	}
	return s.folder + "/" + clean, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	id, err := s.publicID(key)
	if err != nil {
		return false, err
	}
	res, err := s.admin.Asset(ctx, admin.AssetParams{PublicID: id})
	if err != nil {
		return false, err
	}
	if res == nil || res.Error.Message != "" {
		return false, nil
	}
	return res.PublicID != "", nil
}

func (s *Store) Save(ctx context.Context, key, _ string, data []byte) error {
	id, err := s.publicID(key)
	if err != nil {
		return err
	}
	res, err := s.upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     id,
		Overwrite:    api.Bool(true),
		ResourceType: "image",
	})
	if err != nil {
		return err
	}
	if res != nil && res.Error.Message != "" {
		return errors.New("cloudinary upload: " + res.Error.Message)
	}
	return nil
}

// URL builds the delivery URL without a round trip.
func (s *Store) URL(_ context.Context, key string) (string, error) {
	id, err := s.publicID(key)
	if err != nil {
		return "", err
	}
	ext := strings.TrimPrefix(path.Ext(key), ".")
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/%s.%s", s.cloud, id, ext), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	id, err := s.publicID(key)
	if err != nil {
		return err
	}
	res, err := s.upload.Destroy(ctx, uploader.DestroyParams{PublicID: id})
	if err != nil {
		return err
	}
	if res != nil && res.Error.Message != "" {
		return errors.New("cloudinary destroy: " + res.Error.Message)
	}
	return nil
}
