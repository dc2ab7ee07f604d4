// Package gcs stores artifacts in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// Store writes artifacts to a configured GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	owned  bool
}

// New creates a GCS-backed store around an existing client.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// NewFromEnv builds a client from Application Default Credentials and fails
// fast when the bucket is missing or not accessible.
func NewFromEnv(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close GCS client after bucket check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket '%s' attributes: %w", cfg.Bucket, err)
	}
	store, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// EnsureDir is a no-op: buckets have no directories.
func (s *Store) EnsureDir(context.Context, string) error {
	return nil
}

// WriteFile uploads data as the object named after path, replacing any
// existing object.
func (s *Store) WriteFile(ctx context.Context, p string, data []byte) error {
	name := s.ObjectName(p)
	if name == "" {
		return fmt.Errorf("path is required")
	}
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType := mime.TypeByExtension(path.Ext(name)); contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("write object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer for object %s: %w", name, err)
	}
	return nil
}

// ObjectName maps a local-style artifact path onto an object name. An empty
// path yields an empty name.
func (s *Store) ObjectName(p string) string {
	name := strings.TrimLeft(path.Clean(filepath.ToSlash(p)), "/")
	if name == "." || name == "" {
		return ""
	}
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// URI returns the gs:// address of the object for p.
func (s *Store) URI(p string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.ObjectName(p))
}

// Close releases the client when the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	return nil
}
