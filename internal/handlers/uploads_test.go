package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightcart/api/internal/services"
)

func multipartImage(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newUploadRouter(svc services.UploadService, maxBytes int64) chi.Router {
	router := chi.NewRouter()
	router.Route("/upload", NewUploadHandlers(nil, svc, maxBytes).Routes)
	return router
}

func TestUploadHandlersStoresImage(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	var captured services.UploadImageCommand
	var received []byte
	router := newUploadRouter(&stubUploadService{
		uploadFunc: func(_ context.Context, cmd services.UploadImageCommand) (services.UploadedImage, error) {
			captured = cmd
			received, _ = io.ReadAll(cmd.Body)
			return services.UploadedImage{FilePath: "/images/1700000000000-mug.png", URL: "https://cdn.example/images/1700000000000-mug.png", Size: int64(len(received))}, nil
		},
	}, 0)

	body, contentType := multipartImage(t, "image", "mug.png", "image/png", png)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asAdmin(req, "usr_admin"))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "mug.png", captured.FileName)
	assert.Equal(t, "image/png", captured.ContentType)
	assert.Equal(t, png, received)

	var resp uploadResponse
	decodeResponse(t, rr, &resp)
	assert.Equal(t, "/images/1700000000000-mug.png", resp.FilePath)
}

func TestUploadHandlersMissingFile(t *testing.T) {
	router := newUploadRouter(&stubUploadService{}, 0)
	body, contentType := multipartImage(t, "other", "mug.png", "image/png", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asAdmin(req, "usr_admin"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadHandlersRejectsOversizedBody(t *testing.T) {
	router := newUploadRouter(&stubUploadService{}, 1024)
	body, contentType := multipartImage(t, "image", "big.png", "image/png", make([]byte, 200<<10))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asAdmin(req, "usr_admin"))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestUploadHandlersMapsServiceErrors(t *testing.T) {
	router := newUploadRouter(&stubUploadService{
		uploadFunc: func(context.Context, services.UploadImageCommand) (services.UploadedImage, error) {
			return services.UploadedImage{}, fmt.Errorf("%w: only jpeg, jpg, png, gif and webp files are accepted", services.ErrUploadInvalid)
		},
	}, 0)
	body, contentType := multipartImage(t, "image", "notes.txt", "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asAdmin(req, "usr_admin"))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid_image")
}
