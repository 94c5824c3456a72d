package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// serveLogged はハンドラーをロギングミドルウェア越しに1回呼び、出力されたログ行を返す。
func serveLogged(t *testing.T, h http.Handler, req *http.Request) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewLoggingMiddleware(logger)(h).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_Fields(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"digest":null}`))
	})
	entry := serveLogged(t, h, httptest.NewRequest(http.MethodGet, "/api/digests/latest", nil))

	if entry["msg"] != "http_request" || entry["method"] != "GET" || entry["path"] != "/api/digests/latest" {
		t.Errorf("entry = %v", entry)
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if entry["bytes"] != float64(len(`{"digest":null}`)) {
		t.Errorf("bytes = %v", entry["bytes"])
	}
	if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
		t.Errorf("duration_ms = %v", entry["duration_ms"])
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("anonymous request should not log user_id")
	}
}

func TestLoggingMiddleware_Level(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		want   string
	}{
		{"成功", "/api/feed/latest", http.StatusOK, "INFO"},
		{"作成", "/api/admin/digests", http.StatusCreated, "INFO"},
		{"クライアントエラー", "/api/items/x", http.StatusNotFound, "WARN"},
		{"レート制限", "/auth/magic-link", http.StatusTooManyRequests, "WARN"},
		{"サーバーエラー", "/api/admin/digests/d/import", http.StatusBadGateway, "ERROR"},
		{"ヘルスチェック成功", "/health", http.StatusOK, "DEBUG"},
		{"メトリクス", "/metrics", http.StatusOK, "DEBUG"},
		{"ヘルスチェック失敗", "/health", http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			entry := serveLogged(t, h, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if entry["level"] != tt.want {
				t.Errorf("level = %v, want %s", entry["level"], tt.want)
			}
			if entry["status"] != float64(tt.status) {
				t.Errorf("status = %v, want %d", entry["status"], tt.status)
			}
		})
	}
}

// セッションミドルウェアはロギングより内側で動くが、判明したユーザーIDはログに載る。
func TestLoggingMiddleware_UserIDFromInnerMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(ContextWithUserID(r.Context(), "lecteur-42"))
		w.WriteHeader(http.StatusNoContent)
	})
	entry := serveLogged(t, inner, httptest.NewRequest(http.MethodPut, "/api/items/i-1/bookmark", nil))

	if entry["user_id"] != "lecteur-42" {
		t.Errorf("user_id = %v, want lecteur-42", entry["user_id"])
	}
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=climat", nil)
	req.Header.Set("X-Request-Id", "req-abc")

	chimw.RequestID(NewLoggingMiddleware(logger)(h)).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}
	if entry["request_id"] != "req-abc" {
		t.Errorf("request_id = %v, want req-abc", entry["request_id"])
	}
}

type recordedStatuses struct {
	codes []int
}

func (r *recordedStatuses) RecordHTTPStatus(statusCode int) {
	r.codes = append(r.codes, statusCode)
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	rec := &recordedStatuses{}
	mw := NewMetricsMiddleware(rec)

	for _, status := range []int{0, http.StatusForbidden} {
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if status != 0 {
				w.WriteHeader(status)
				return
			}
			w.Write([]byte("ok"))
		})
		mw(h).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	if len(rec.codes) != 2 || rec.codes[0] != http.StatusOK || rec.codes[1] != http.StatusForbidden {
		t.Errorf("recorded = %v, want [200 403]", rec.codes)
	}
}
