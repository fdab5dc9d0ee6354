// Package objectstore is the multipart object storage capability used for
// uploads and downloads. Payload bytes never pass through the service except
// for derived variants such as thumbnails.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"teamdrive/config"
)

var (
	// ErrSessionExpired means the multipart session no longer exists.
	ErrSessionExpired = errors.New("multipart session expired")
	// ErrInvalidPart means a completion token did not match an uploaded part.
	ErrInvalidPart = errors.New("invalid multipart part")
	ErrNotFound    = errors.New("object not found")
)

// CompletedPart identifies an uploaded part by its 1-based number and the
// ETag returned when it was uploaded.
type CompletedPart struct {
	Number int
	ETag   string
}

type Store interface {
	// Bucket is where new objects are written.
	Bucket() string
	// CreateMultipart opens a multipart upload whose object will be served
	// with contentType.
	CreateMultipart(ctx context.Context, bucket, key, contentType string) (string, error)
	PresignPart(ctx context.Context, bucket, key, uploadID string, partNumber int, ttl time.Duration) (string, error)
	CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error
	AbortMultipart(ctx context.Context, bucket, key, uploadID string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
}

// New builds the backend selected by cfg.Driver.
func New(ctx context.Context, cfg *config.ObjectStoreConfig, metrics Metrics) (Store, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg, metrics)
	case "minio":
		return NewMinioStore(cfg, metrics)
	}
	return nil, fmt.Errorf("unsupported object store driver %q", cfg.Driver)
}
