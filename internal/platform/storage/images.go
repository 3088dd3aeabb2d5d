// Package storage writes uploaded product images to Cloud Storage or, without a bucket, to a
// local directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Object describes a stored image.
type Object struct {
	Name        string
	Path        string
	URL         string
	ContentType string
	Size        int64
}

// ImageStore persists image bytes under an object name.
type ImageStore interface {
	Put(ctx context.Context, object, contentType string, r io.Reader) (Object, error)
}

// objectWriter is the part of the Cloud Storage client used by BucketStore.
type objectWriter interface {
	NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser
}

type gcsWriter struct {
	client *gcs.Client
}

func (g gcsWriter) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"
	return w
}

// BucketStore writes images to a Cloud Storage bucket.
type BucketStore struct {
	writer  objectWriter
	bucket  string
	baseURL string
}

// NewBucketStore constructs a BucketStore. baseURL defaults to https://storage.googleapis.com/<bucket>.
func NewBucketStore(client *gcs.Client, bucket, baseURL string) (*BucketStore, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return newBucketStore(gcsWriter{client: client}, bucket, baseURL)
}

func newBucketStore(writer objectWriter, bucket, baseURL string) (*BucketStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + bucket
	}
	return &BucketStore{writer: writer, bucket: bucket, baseURL: baseURL}, nil
}

// Put streams r to bucket/object.
func (s *BucketStore) Put(ctx context.Context, object, contentType string, r io.Reader) (Object, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.writer.NewWriter(ctx, s.bucket, object, contentType)
	n, err := io.Copy(w, r)
	if err != nil {
		// cancelling the context aborts the partial upload
		cancel()
		_ = w.Close()
		return Object{}, fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("storage: finalize %s: %w", object, err)
	}
	return Object{
		Name:        object,
		Path:        PublicPath(object),
		URL:         s.baseURL + PublicPath(object),
		ContentType: contentType,
		Size:        n,
	}, nil
}

// DirStore writes images below a local directory. Object names map to relative file paths.
type DirStore struct {
	root    string
	baseURL string
}

// NewDirStore constructs a DirStore rooted at dir, creating it if needed.
func NewDirStore(dir, baseURL string) (*DirStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &DirStore{root: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes r to root/<base name of object>.
func (s *DirStore) Put(_ context.Context, object, contentType string, r io.Reader) (Object, error) {
	target := filepath.Join(s.root, filepath.Base(object))
	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Object{}, fmt.Errorf("storage: create %s: %w", target, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(target)
		return Object{}, fmt.Errorf("storage: write %s: %w", target, err)
	}
	return Object{
		Name:        object,
		Path:        PublicPath(object),
		URL:         s.baseURL + PublicPath(object),
		ContentType: contentType,
		Size:        n,
	}, nil
}
