// Package blob keeps exported grid images in S3-compatible object storage
// and hands out time-limited download links.
package blob

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/crypto/blake2b"
)

const (
	DefaultRegion = "us-east-1"
	// DefaultLinkExpiry matches the lifetime of a share record.
	DefaultLinkExpiry = 7 * 24 * time.Hour
)

var ErrNotConfigured = errors.New("object storage not configured")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

func (c Config) IsConfigured() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type Store struct {
	client *minio.Client
	bucket string
}

// Object is an uploaded blob and a presigned link to it.
type Object struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// New builds a client without contacting the server.
func New(cfg Config) (*Store, error) {
	if !cfg.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// ObjectKey names data by its BLAKE2b-256 digest so identical exports share one object.
func ObjectKey(prefix string, data []byte, ext string) string {
	sum := blake2b.Sum256(data)
	return prefix + "/" + hex.EncodeToString(sum[:16]) + ext
}

// Upload stores data under its content key, skipping the write when the
// object already exists, and returns a presigned GET link.
func (s *Store) Upload(ctx context.Context, prefix string, data []byte, contentType, ext string, expiry time.Duration) (Object, error) {
	key := ObjectKey(prefix, data, ext)

	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			return Object{}, fmt.Errorf("stat object %s: %w", key, err)
		}
		if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: contentType,
		}); err != nil {
			return Object{}, fmt.Errorf("put object %s: %w", key, err)
		}
	}

	link, expiresAt, err := s.PresignedURL(ctx, key, expiry)
	if err != nil {
		return Object{}, err
	}
	return Object{Key: key, URL: link, Size: int64(len(data)), ExpiresAt: expiresAt}, nil
}

// PresignedURL returns a GET link for key valid for expiry.
func (s *Store) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, time.Time, error) {
	if expiry <= 0 {
		expiry = DefaultLinkExpiry
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), time.Now().Add(expiry), nil
}
