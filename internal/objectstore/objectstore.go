package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// KeyPrefix groups every stored note file under one folder.
const KeyPrefix = "notes/"

// StoredObject identifies a stored file.
type StoredObject struct {
	Key string
	URL string
}

// ObjectStore provides access to the file bucket backing note uploads.
type ObjectStore interface {
	Put(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (StoredObject, error)
	Delete(ctx context.Context, key string) error
}

// Options configures a MinioStore.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the base used for object URLs, e.g. a CDN host.
	PublicURL string
	Timeout   time.Duration
	Logger    *zap.Logger
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// NewMinioStore connects to the object store and ensures the bucket exists.
func NewMinioStore(ctx context.Context, opts Options) (*MinioStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	s := &MinioStore{
		client:  client,
		bucket:  opts.Bucket,
		baseURL: PublicBaseURL(opts.Endpoint, opts.Bucket, opts.UseSSL, opts.PublicURL),
		timeout: opts.Timeout,
		logger:  logger.Named("objectstore"),
	}

	checkCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(checkCtx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		s.logger.Info("created bucket", zap.String("bucket", opts.Bucket))
	}
	return s, nil
}

// Put uploads a file under a fresh key and returns its key and public URL.
func (s *MinioStore) Put(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (StoredObject, error) {
	key := NewKey(filename)
	putCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.PutObject(putCtx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return StoredObject{}, fmt.Errorf("put object: %w", err)
	}
	s.logger.Debug("stored object", zap.String("key", key), zap.Int64("size", size))
	return StoredObject{Key: key, URL: ObjectURL(s.baseURL, key)}, nil
}

// Delete removes an object. Removing a missing key is not an error.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	delCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.RemoveObject(delCtx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	s.logger.Debug("deleted object", zap.String("key", key))
	return nil
}

func (s *MinioStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename reduces a client supplied filename to a safe object key segment.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > 120 {
		name = name[len(name)-120:]
	}
	return name
}

// NewKey builds a unique object key for filename.
func NewKey(filename string) string {
	return KeyPrefix + uuid.NewString() + "-" + SanitizeFilename(filename)
}

// PublicBaseURL returns the URL prefix under which bucket objects are served.
func PublicBaseURL(endpoint, bucket string, useSSL bool, override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, strings.TrimRight(endpoint, "/"), bucket)
}

// ObjectURL joins the public base URL and an object key.
func ObjectURL(baseURL, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.Join(segments, "/")
}
