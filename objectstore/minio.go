package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"teamdrive/config"
)

type minioStore struct {
	core    *minio.Core
	bucket  string
	metrics Metrics
}

// NewMinioStore builds a store on the minio client. Core is used because
// multipart sessions are driven by the uploading client, not by this process.
func NewMinioStore(cfg *config.ObjectStoreConfig, metrics Metrics) (Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is not configured")
	}

	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	return &minioStore{core: core, bucket: cfg.Bucket, metrics: metrics}, nil
}

func (m *minioStore) Bucket() string {
	return m.bucket
}

func (m *minioStore) CreateMultipart(ctx context.Context, bucket, key, contentType string) (uploadID string, err error) {
	start := time.Now()
	defer func() { observe(m.metrics, "CreateMultipartUpload", start, err) }()

	uploadID, err = m.core.NewMultipartUpload(ctx, bucket, key, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload: %w", classifyMinio(err))
	}
	return uploadID, nil
}

func (m *minioStore) PresignPart(ctx context.Context, bucket, key, uploadID string, partNumber int, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("partNumber", strconv.Itoa(partNumber))
	params.Set("uploadId", uploadID)

	u, err := m.core.Presign(ctx, http.MethodPut, bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("failed to presign part %d: %w", partNumber, err)
	}
	return u.String(), nil
}

func (m *minioStore) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (err error) {
	start := time.Now()
	defer func() { observe(m.metrics, "CompleteMultipartUpload", start, err) }()

	completed := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completed[i] = minio.CompletePart{PartNumber: p.Number, ETag: p.ETag}
	}

	_, err = m.core.CompleteMultipartUpload(ctx, bucket, key, uploadID, completed, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", classifyMinio(err))
	}
	return nil
}

func (m *minioStore) AbortMultipart(ctx context.Context, bucket, key, uploadID string) (err error) {
	start := time.Now()
	defer func() { observe(m.metrics, "AbortMultipartUpload", start, err) }()

	if err = m.core.AbortMultipartUpload(ctx, bucket, key, uploadID); err != nil {
		if errors.Is(classifyMinio(err), ErrSessionExpired) {
			return nil
		}
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	return nil
}

func (m *minioStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := m.core.PresignedGetObject(ctx, bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return u.String(), nil
}

func (m *minioStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (err error) {
	start := time.Now()
	defer func() { observe(m.metrics, "PutObject", start, err) }()

	_, err = m.core.Client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (m *minioStore) Get(ctx context.Context, bucket, key string) (body io.ReadCloser, err error) {
	start := time.Now()
	defer func() { observe(m.metrics, "GetObject", start, err) }()

	body, _, _, err = m.core.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", classifyMinio(err))
	}
	return body, nil
}

func (m *minioStore) Delete(ctx context.Context, bucket, key string) (err error) {
	start := time.Now()
	defer func() { observe(m.metrics, "DeleteObject", start, err) }()

	if err = m.core.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func classifyMinio(err error) error {
	return classifyCode(minio.ToErrorResponse(err).Code, err)
}
