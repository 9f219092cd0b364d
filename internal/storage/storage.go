// Package storage fetches index and metadata artifacts from S3-compatible
// object storage into a local cache directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Scheme is the URL scheme that marks a path as remote.
const Scheme = "s3"

var (
	// ErrNotFound is returned when the bucket or object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrNotConfigured is returned when a remote path is used without an endpoint.
	ErrNotConfigured = errors.New("object storage is not configured")
	// ErrInvalidURL is returned for malformed s3:// paths.
	ErrInvalidURL = errors.New("invalid object URL")
)

// Options configure the object storage connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	CacheDir  string
}

// Object identifies a single object in a bucket.
type Object struct {
	Bucket string
	Key    string
}

func (o Object) String() string {
	return Scheme + "://" + o.Bucket + "/" + o.Key
}

// IsRemote reports whether path refers to object storage.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, Scheme+"://")
}

// ParseURL splits an s3://bucket/key path.
func ParseURL(raw string) (Object, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Object{}, fmt.Errorf("%w: %q: %w", ErrInvalidURL, raw, err)
	}
	if u.Scheme != Scheme {
		return Object{}, fmt.Errorf("%w: %q: scheme must be %s", ErrInvalidURL, raw, Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" || strings.HasSuffix(key, "/") {
		return Object{}, fmt.Errorf("%w: %q: expected %s://bucket/key", ErrInvalidURL, raw, Scheme)
	}
	return Object{Bucket: u.Host, Key: key}, nil
}

// Fetcher resolves artifact paths to local files, downloading remote ones.
type Fetcher struct {
	client   *minio.Client
	cacheDir string
	logger   *zap.Logger
}

// NewFetcher creates a fetcher. An empty endpoint yields a fetcher that only
// accepts local paths.
func NewFetcher(opts Options, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{cacheDir: opts.CacheDir, logger: logger}
	if opts.Endpoint == "" {
		return f, nil
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client: %w", err)
	}
	f.client = client
	return f, nil
}

// Resolve returns a local path for p. Local paths are returned unchanged;
// s3:// paths are downloaded into the cache directory first.
func (f *Fetcher) Resolve(ctx context.Context, p string) (string, error) {
	if !IsRemote(p) {
		return p, nil
	}
	obj, err := ParseURL(p)
	if err != nil {
		return "", err
	}
	if f.client == nil {
		return "", fmt.Errorf("%w: cannot fetch %s", ErrNotConfigured, obj)
	}
	return f.fetch(ctx, obj)
}

// CachePath returns where obj is stored locally.
func (f *Fetcher) CachePath(obj Object) string {
	return filepath.Join(f.cacheDir, obj.Bucket, filepath.FromSlash(obj.Key))
}

func (f *Fetcher) fetch(ctx context.Context, obj Object) (string, error) {
	info, err := f.client.StatObject(ctx, obj.Bucket, obj.Key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, obj)
		}
		return "", fmt.Errorf("stat %s: %w", obj, err)
	}

	dst := f.CachePath(obj)
	if st, err := os.Stat(dst); err == nil && st.Size() == info.Size && !st.ModTime().Before(info.LastModified) {
		f.logger.Debug("using cached object", zap.Stringer("object", obj), zap.String("path", dst))
		return dst, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}
	// FGetObject writes to a temporary part file and renames on success.
	if err := f.client.FGetObject(ctx, obj.Bucket, obj.Key, dst, minio.GetObjectOptions{}); err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, obj)
		}
		return "", fmt.Errorf("downloading %s: %w", obj, err)
	}

	f.logger.Info("fetched object",
		zap.Stringer("object", obj),
		zap.String("path", dst),
		zap.Int64("bytes", info.Size),
	)
	return dst, nil
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}
