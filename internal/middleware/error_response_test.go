package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/collegetrack/internal/model"
)

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// TestWriteErrorResponse_DomainErrors はドメインエラーがカテゴリ付きの統一フォーマットで返ることを検証する。
func TestWriteErrorResponse_DomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        *model.APIError
	}{
		{"検証", http.StatusBadRequest, model.NewValidationError("deadline belongs to another school")},
		{"リストなし", http.StatusNotFound, model.NewListNotFoundError(3)},
		{"上流認証", http.StatusBadGateway, model.NewUpstreamAuthError("refresh_token", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.statusCode, tt.err)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}
			body := decodeErrorBody(t, w)
			want := ErrorResponseBody{Code: tt.err.Code, Message: tt.err.Message, Category: tt.err.Category, Action: tt.err.Action}
			if body != want {
				t.Errorf("body = %+v, want %+v", body, want)
			}
		})
	}
}

// TestWriteErrorResponse_RequestID はRequestIDミドルウェア配下でのみrequest_idが載ることを検証する。
func TestWriteErrorResponse_RequestID(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("x"))
	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if _, ok := raw["request_id"]; ok {
		t.Error("request_id should be omitted without the middleware")
	}

	h := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteErrorResponse(w, http.StatusNotFound, model.NewListNotFoundError(42))
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/lists/42", nil)
	req.Header.Set(RequestIDHeader, "req-404")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if body := decodeErrorBody(t, w); body.RequestID != "req-404" {
		t.Errorf("request_id = %q, want req-404", body.RequestID)
	}
}

func TestWriteFixedErrors(t *testing.T) {
	tests := []struct {
		name         string
		write        func(http.ResponseWriter)
		wantStatus   int
		wantCode     string
		wantCategory string
	}{
		{"internal", WriteInternalServerError, http.StatusInternalServerError, "INTERNAL_ERROR", model.CategorySystem},
		{"unauthorized", WriteUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", model.CategoryAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeErrorBody(t, w)
			if body.Code != tt.wantCode || body.Category != tt.wantCategory {
				t.Errorf("body = %+v", body)
			}
			if body.Message == "" || body.Action == "" {
				t.Error("message and action must be set")
			}
		})
	}
}
