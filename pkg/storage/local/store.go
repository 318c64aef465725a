package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/storage"
)

// Store keeps blobs on the local filesystem. Used in dev and tests.
type Store struct {
	root      string
	publicURL string
}

func New(cfg config.BlobConfig) (*Store, error) {
	root := strings.TrimSpace(cfg.LocalRoot)
	if root == "" {
		return nil, errors.New("local blob root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root, publicURL: strings.TrimRight(cfg.LocalPublicURL, "/")}, nil
}

func (s *Store) path(key string) (string, string, error) {
	clean, err := storage.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return clean, filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	_, p, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Save writes through a temp file so readers never observe a partial artifact.
func (s *Store) Save(_ context.Context, key, _ string, data []byte) error {
	_, p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".blob-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (s *Store) URL(_ context.Context, key string) (string, error) {
	clean, _, err := s.path(key)
	if err != nil {
		return "", err
	}
	return s.publicURL + "/" + clean, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	_, p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
