package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"teamdrive/config"
)

type s3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	metrics Metrics
}

// NewS3Store builds an S3 backed store. Endpoint and path style are only
// needed for S3 compatible services.
func NewS3Store(ctx context.Context, cfg *config.ObjectStoreConfig, metrics Metrics) (Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &s3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		metrics: metrics,
	}, nil
}

func (s *s3Store) Bucket() string {
	return s.bucket
}

func (s *s3Store) CreateMultipart(ctx context.Context, bucket, key, contentType string) (uploadID string, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "CreateMultipartUpload", start, err) }()

	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload: %w", classifyS3(err))
	}
	return aws.ToString(out.UploadId), nil
}

func (s *s3Store) PresignPart(ctx context.Context, bucket, key, uploadID string, partNumber int, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(int32(partNumber)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign part %d: %w", partNumber, err)
	}
	return req.URL, nil
}

func (s *s3Store) CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) (err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "CompleteMultipartUpload", start, err) }()

	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(int32(p.Number)),
			ETag:       aws.String(p.ETag),
		}
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", classifyS3(err))
	}
	return nil
}

func (s *s3Store) AbortMultipart(ctx context.Context, bucket, key, uploadID string) (err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "AbortMultipartUpload", start, err) }()

	_, err = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		// already gone
		if errors.Is(classifyS3(err), ErrSessionExpired) {
			return nil
		}
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	return nil
}

func (s *s3Store) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return req.URL, nil
}

func (s *s3Store) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "PutObject", start, err) }()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (s *s3Store) Get(ctx context.Context, bucket, key string) (body io.ReadCloser, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "GetObject", start, err) }()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", classifyS3(err))
	}
	return out.Body, nil
}

func (s *s3Store) Delete(ctx context.Context, bucket, key string) (err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "DeleteObject", start, err) }()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// classifyS3 maps S3 error codes onto the package sentinels, keeping the
// original error otherwise.
func classifyS3(err error) error {
	var noSuchUpload *types.NoSuchUpload
	if errors.As(err, &noSuchUpload) {
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return classifyCode(apiErr.ErrorCode(), err)
	}
	return err
}

func classifyCode(code string, err error) error {
	switch code {
	case "NoSuchUpload":
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	case "InvalidPart", "InvalidPartOrder":
		return fmt.Errorf("%w: %v", ErrInvalidPart, err)
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
