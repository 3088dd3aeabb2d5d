package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

const (
	defaultMaxUploadBytes = 5 << 20
	multipartOverhead     = 64 << 10
	multipartMemory       = 1 << 20
)

// UploadHandlers accepts product images from admins.
type UploadHandlers struct {
	authn    *auth.Authenticator
	uploads  services.UploadService
	maxBytes int64
}

// NewUploadHandlers constructs upload handlers. maxBytes caps the image size; zero means 5MB.
func NewUploadHandlers(authn *auth.Authenticator, uploads services.UploadService, maxBytes int64) *UploadHandlers {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &UploadHandlers{authn: authn, uploads: uploads, maxBytes: maxBytes}
}

// Routes registers POST /upload.
func (h *UploadHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	admin := r
	if h.authn != nil {
		admin = r.With(h.authn.RequireAuth(auth.RoleAdmin))
	}
	admin.Post("/", h.uploadImage)
}

type uploadResponse struct {
	Message  string `json:"message"`
	FilePath string `json:"filePath"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

func (h *UploadHandlers) uploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		serviceUnavailable(ctx, w, "upload")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "image exceeds the upload limit", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "request must be multipart/form-data"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "no file uploaded"))
		return
	}
	defer file.Close()

	image, err := h.uploads.UploadImage(ctx, services.UploadImageCommand{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeUploadError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, uploadResponse{
		Message:  "File uploaded successfully",
		FilePath: image.FilePath,
		URL:      image.URL,
		Size:     image.Size,
	})
}

func writeUploadError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUploadTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
	case errors.Is(err, services.ErrUploadInvalid):
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_image", err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("upload_failed", "failed to store image", http.StatusInternalServerError))
	}
}
