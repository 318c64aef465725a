// Package gcs stores voucher artifacts in a Google Cloud Storage bucket via
// the generated JSON API client.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gstorage "google.golang.org/api/storage/v1"

	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/storage"
)

const (
	publicBase         = "https://storage.googleapis.com"
	defaultContentType = "application/octet-stream"
	pingTimeout        = 5 * time.Second
)

var errNotInitialized = errors.New("gcs client not initialized")

// Client implements storage.BlobStore against a single bucket.
type Client struct {
	objects *gstorage.ObjectsService
	bucket  string
}

// NewClient authenticates with inline credentials, a credentials file or the
// ambient default credentials, in that order, and checks the bucket is reachable.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	opts := append(credentialOptions(gcp), option.WithScopes(gstorage.DevstorageReadWriteScope))
	client, err := newClient(ctx, cfg.BucketName, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", client.bucket), "gcs.connected")
	}
	return client, nil
}

func newClient(ctx context.Context, bucket string, opts ...option.ClientOption) (*Client, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	svc, err := gstorage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs service: %w", err)
	}
	return &Client{objects: svc.Objects, bucket: bucket}, nil
}

func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	default:
		return nil
	}
}

// Close is a no-op; the HTTP transport is shared.
func (c *Client) Close() error {
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.objects == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	_, err := c.objects.List(c.bucket).MaxResults(1).Fields("items/name").Context(ctx).Do()
	return err
}

// Exists reports whether the object is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	name, err := c.objectName(key)
	if err != nil {
		return false, err
	}
	_, err = c.objects.Get(c.bucket, name).Fields("name").Context(ctx).Do()
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("gcs object lookup failed: %w", err)
	}
}

// Save uploads data, replacing any existing object.
func (c *Client) Save(ctx context.Context, key, contentType string, data []byte) error {
	name, err := c.objectName(key)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	obj := &gstorage.Object{Name: name, ContentType: contentType}
	_, err = c.objects.Insert(c.bucket, obj).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("gcs upload failed: %w", err)
	}
	return nil
}

// URL returns the public object URL; the bucket is expected to allow public reads.
func (c *Client) URL(_ context.Context, key string) (string, error) {
	name, err := storage.CleanKey(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", publicBase, c.bucket, (&url.URL{Path: name}).EscapedPath()), nil
}

// Delete removes the object; a missing object is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	name, err := c.objectName(key)
	if err != nil {
		return err
	}
	if err := c.objects.Delete(c.bucket, name).Context(ctx).Do(); err != nil && !isNotFound(err) {
		return fmt.Errorf("gcs delete failed: %w", err)
	}
	return nil
}

func (c *Client) objectName(key string) (string, error) {
	if c == nil || c.objects == nil {
		return "", errNotInitialized
	}
	return storage.CleanKey(key)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
