// Package objectstore persists raw message payloads, attachments, and
// extraction snapshots in S3-compatible storage.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// Config holds the object store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore implements the ObjectStore interface on any S3-compatible
// endpoint. Puts are idempotent: writing the same key overwrites.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinioStore connects to the endpoint and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg Config, logger *slog.Logger) (*MinioStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	store := &MinioStore{client: client, bucket: cfg.Bucket, logger: logger}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeTransient, "check bucket %s", s.bucket)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeTransient, "create bucket %s", s.bucket)
	}
	s.logger.InfoContext(ctx, "created bucket", "bucket", s.bucket)
	return nil
}

// Put stores data under key and returns the object address.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", apperrors.ValidationField("key", "object key is required")
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeTransient, "put object %s", key)
	}
	return s.bucket + "/" + key, nil
}

// Get retrieves an object by key.
func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeTransient, "get object %s", key)
	}
	defer func() {
		_ = obj.Close()
	}()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, apperrors.NotFoundf("object %s not found", key)
		}
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeTransient, "read object %s", key)
	}
	return data, nil
}
