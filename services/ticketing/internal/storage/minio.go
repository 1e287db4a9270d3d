// Package storage is the content-addressed blob sink for uploaded
// ticket images, grounded on core/internal/storage/s3.go.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config configures the MinIO/S3-compatible client.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// DefaultConfig returns sane local defaults.
func DefaultConfig() Config {
	return Config{Endpoint: "localhost:9000", Bucket: "tickets", Region: "us-east-1"}
}

// Blobs stores ticket image bytes under a content-addressed key.
type Blobs struct {
	client *minio.Client
	bucket string
}

// New builds a Blobs client over cfg.
func New(cfg Config) (*Blobs, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Blobs{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the ticket-image bucket if it doesn't exist.
func (b *Blobs) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Put uploads data under a content-addressed object path and returns
// the object key as the ticket's file_ref.
func (b *Blobs) Put(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	objectPath := path.Join(digest[:2], digest, path.Base(filename))

	_, err := b.client.PutObject(ctx, b.bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload ticket image: %w", err)
	}
	return objectPath, nil
}

// Get retrieves the bytes stored under ref.
func (b *Blobs) Get(ctx context.Context, ref string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get ticket image: %w", err)
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// PresignedURL returns a short-lived download URL, used by admin
// tooling that wants to view an uploaded image without proxying bytes.
func (b *Blobs) PresignedURL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.bucket, ref, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
