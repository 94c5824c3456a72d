package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/newsdigest/internal/model"
)

func TestWriteErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    *model.APIError
	}{
		{"未認証", http.StatusUnauthorized, model.NewUnauthorizedError()},
		{"CSRF", http.StatusForbidden, model.NewCSRFInvalidError()},
		{"ダイジェストなし", http.StatusNotFound, model.NewDigestNotFoundError("d-1")},
		{"JSON不正", http.StatusBadRequest, model.NewInvalidJSONError("virgule manquante", 3, 14, `"title" "x"`)},
		{"レート制限", http.StatusTooManyRequests, model.NewRateLimitedError()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.status, tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", cc)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body != NewErrorBody(tt.err) {
				t.Errorf("body = %+v, want %+v", body, NewErrorBody(tt.err))
			}
		})
	}
}

func TestWriteErrorBody_EmbeddedFieldsAreFlattened(t *testing.T) {
	type partialImport struct {
		ErrorResponseBody
		Created int `json:"created"`
	}

	w := httptest.NewRecorder()
	WriteErrorBody(w, http.StatusBadGateway, partialImport{
		ErrorResponseBody: NewErrorBody(model.NewImportFailedError()),
		Created:           3,
	})

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if raw["code"] != model.ErrCodeImportFailed {
		t.Errorf("code = %v", raw["code"])
	}
	if raw["created"] != float64(3) {
		t.Errorf("created = %v", raw["created"])
	}
	if _, nested := raw["ErrorResponseBody"]; nested {
		t.Error("embedded body must not be nested")
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeInternal || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
	if body.Message == "" || body.Action == "" {
		t.Error("expected a French message and action")
	}
}
