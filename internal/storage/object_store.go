// Package storage publishes finished export archives to MinIO/S3 compatible
// object storage so they can be shared as presigned links.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kimhsiao/purchaselog/backend/internal/config"
	"github.com/kimhsiao/purchaselog/backend/internal/logging"
)

// ArchivePrefix is the key prefix for uploaded archives.
const ArchivePrefix = "exports/"

// DefaultPresignExpiry applies when no expiry is configured.
const DefaultPresignExpiry = 24 * time.Hour

// ObjectStore provides access to object storage.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(cfg config.ObjectStore) (*MinioStore, error) {
	endpoint, secure := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	expiry := cfg.PresignExpiry()
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, expiry: expiry}, nil
}

// normalizeEndpoint strips any scheme and trailing slash from endpoint.
// An explicit https:// scheme turns TLS on.
func normalizeEndpoint(endpoint string, useSSL bool) (string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, useSSL = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = strings.TrimPrefix(endpoint, "http://")
	}
	return strings.TrimSuffix(endpoint, "/"), useSSL
}

// Put uploads an object.
func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// PresignGet generates a pre-signed GET URL.
func (m *MinioStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return url.String(), nil
}

// Delete removes an object.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Publish uploads the archive at localPath and returns a presigned link to it.
func (m *MinioStore) Publish(ctx context.Context, localPath string) (string, error) {
	return Publish(ctx, m, localPath, m.expiry)
}

// ObjectKey returns the key an archive file is stored under.
func ObjectKey(localPath string) string {
	return path.Join(ArchivePrefix, filepath.Base(localPath))
}

// Publish uploads the file at localPath to store and returns a presigned GET
// URL valid for expiry. The upload is removed again if presigning fails.
func Publish(ctx context.Context, store ObjectStore, localPath string, expiry time.Duration) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat archive: %w", err)
	}

	key := ObjectKey(localPath)
	if err := store.Put(ctx, key, f, info.Size(), "application/zip"); err != nil {
		return "", err
	}

	url, err := store.PresignGet(ctx, key, expiry)
	if err != nil {
		if delErr := store.Delete(ctx, key); delErr != nil {
			logging.Warn("Failed to remove unshared archive upload", map[string]interface{}{
				"key":   key,
				"error": delErr.Error(),
			})
		}
		return "", err
	}

	logging.Info("Archive published", map[string]interface{}{
		"key":    key,
		"bytes":  info.Size(),
		"expiry": expiry.String(),
	})
	return url, nil
}
