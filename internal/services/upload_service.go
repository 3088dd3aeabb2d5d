package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/brightcart/api/internal/platform/storage"
)

const defaultMaxUploadBytes = 5 << 20

var (
	// ErrUploadInvalid indicates a missing file or a type outside the allowed image formats.
	ErrUploadInvalid = errors.New("upload: invalid image")
	// ErrUploadTooLarge indicates the file exceeds the configured size limit.
	ErrUploadTooLarge = errors.New("upload: image too large")
)

var allowedImageTypes = map[string]string{
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// UploadServiceDeps wires the upload service.
type UploadServiceDeps struct {
	Store    storage.ImageStore
	MaxBytes int64
	Clock    func() time.Time
	Logger   Logger
}

type uploadService struct {
	store    storage.ImageStore
	maxBytes int64
	now      func() time.Time
	logger   Logger
}

// NewUploadService constructs an UploadService.
func NewUploadService(deps UploadServiceDeps) (UploadService, error) {
	if deps.Store == nil {
		return nil, errors.New("upload service: image store is required")
	}
	maxBytes := deps.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &uploadService{
		store:    deps.Store,
		maxBytes: maxBytes,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// UploadImage accepts a JPEG, PNG, GIF or WebP image. The extension, the declared type and the
// sniffed content must all agree.
func (s *uploadService) UploadImage(ctx context.Context, cmd UploadImageCommand) (UploadedImage, error) {
	if cmd.Body == nil || strings.TrimSpace(cmd.FileName) == "" {
		return UploadedImage{}, fmt.Errorf("%w: no file uploaded", ErrUploadInvalid)
	}
	if cmd.Size > s.maxBytes {
		return UploadedImage{}, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, s.maxBytes)
	}
	expected, ok := allowedImageTypes[strings.ToLower(path.Ext(cmd.FileName))]
	if !ok {
		return UploadedImage{}, fmt.Errorf("%w: only jpeg, jpg, png, gif and webp files are accepted", ErrUploadInvalid)
	}
	declared, _, err := mime.ParseMediaType(cmd.ContentType)
	if err != nil || !sameImageType(declared, expected) {
		return UploadedImage{}, fmt.Errorf("%w: content type %q does not match the file extension", ErrUploadInvalid, cmd.ContentType)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(cmd.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return UploadedImage{}, fmt.Errorf("upload: read image: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return UploadedImage{}, fmt.Errorf("%w: file is empty", ErrUploadInvalid)
	}
	if sniffed := http.DetectContentType(head); !sameImageType(sniffed, expected) {
		return UploadedImage{}, fmt.Errorf("%w: file content is not %s", ErrUploadInvalid, expected)
	}

	object, err := storage.ImagePath(s.now(), cmd.FileName)
	if err != nil {
		return UploadedImage{}, fmt.Errorf("%w: %v", ErrUploadInvalid, err)
	}
	body := &limitedReader{r: io.MultiReader(bytes.NewReader(head), cmd.Body), remaining: s.maxBytes}
	stored, err := s.store.Put(ctx, object, expected, body)
	if body.exceeded {
		return UploadedImage{}, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, s.maxBytes)
	}
	if err != nil {
		return UploadedImage{}, err
	}

	s.logger(ctx, "upload.image.stored", map[string]any{"object": stored.Name, "size": stored.Size})
	return UploadedImage{FilePath: stored.Path, URL: stored.URL, Size: stored.Size}, nil
}

func sameImageType(got, expected string) bool {
	got = strings.ToLower(strings.TrimSpace(got))
	return got == expected || (expected == "image/jpeg" && got == "image/jpg")
}

var errUploadLimit = errors.New("upload: size limit exceeded")

// limitedReader fails once more than remaining bytes are read, so stores abort the write.
type limitedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		l.exceeded = true
		return 0, errUploadLimit
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		l.exceeded = true
		return 0, errUploadLimit
	}
	return n, err
}
