package pagination

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFromRequestDefaults(t *testing.T) {
	params, err := FromRequest(httptest.NewRequest("GET", "/admin/orders", nil))
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if params.PageSize != DefaultPageSize || params.PageToken != "" {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestFromRequestClampsAndValidates(t *testing.T) {
	params, err := FromRequest(httptest.NewRequest("GET", "/admin/orders?page_size=500", nil))
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if params.PageSize != DefaultMaxPageSize {
		t.Fatalf("expected clamp to %d, got %d", DefaultMaxPageSize, params.PageSize)
	}

	if _, err := FromRequest(httptest.NewRequest("GET", "/x?page_size=abc", nil)); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected invalid page size, got %v", err)
	}
	if _, err := FromRequest(httptest.NewRequest("GET", "/x?page_size=0", nil)); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected invalid page size for zero, got %v", err)
	}
	if _, err := FromRequest(httptest.NewRequest("GET", "/x?page_token=%25%25", nil)); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), ID: "01HZX"}
	token := EncodeToken(cursor)
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if !decoded.CreatedAt.Equal(cursor.CreatedAt) || decoded.ID != cursor.ID {
		t.Fatalf("unexpected cursor %+v", decoded)
	}
	if EncodeToken(Cursor{}) != "" {
		t.Fatal("zero cursor must encode to empty token")
	}
}
