package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/security"
)

// allowAllGuard はテスト用のURLGuard。ローカルのテストサーバーへの接続を許可する。
type allowAllGuard struct {
	blocked bool
}

func (g *allowAllGuard) ValidateURL(rawURL string) error {
	if g.blocked {
		return errors.New("blocked")
	}
	return nil
}

func (g *allowAllGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func newTestClient(guard URLGuard) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(guard, security.NewTextSanitizer(), logger, 5*time.Second, 1<<20)
}

func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_OpenGraph(t *testing.T) {
	srv := serveHTML(t, `<html><head>
<title>Titre de repli</title>
<meta property="og:title" content="Le  nucléaire &amp; l'Europe">
<meta property="og:description" content="<b>Résumé</b> de l'article">
<meta property="og:image" content="/img/cover.jpg">
<meta property="og:site_name" content="Le Journal">
</head><body></body></html>`)

	p, err := newTestClient(&allowAllGuard{}).Fetch(context.Background(), srv.URL+"/article")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if p.Title != "Le nucléaire & l'Europe" {
		t.Errorf("Title = %q", p.Title)
	}
	if p.Description != "Résumé de l'article" {
		t.Errorf("Description = %q", p.Description)
	}
	if p.ImageURL != srv.URL+"/img/cover.jpg" {
		t.Errorf("ImageURL = %q, want 相対URLが解決されること", p.ImageURL)
	}
	if p.SiteName != "Le Journal" {
		t.Errorf("SiteName = %q", p.SiteName)
	}
}

func TestFetch_Fallbacks(t *testing.T) {
	srv := serveHTML(t, `<html><head>
<title> Titre simple </title>
<meta name="description" content="Description standard">
<meta name="twitter:image" content="javascript:alert(1)">
</head></html>`)

	p, err := newTestClient(&allowAllGuard{}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if p.Title != "Titre simple" {
		t.Errorf("Title = %q", p.Title)
	}
	if p.Description != "Description standard" {
		t.Errorf("Description = %q", p.Description)
	}
	if p.ImageURL != "" {
		t.Errorf("ImageURL = %q, http(s)以外は空になるべき", p.ImageURL)
	}
	if p.SiteName != "127.0.0.1" {
		t.Errorf("SiteName = %q, ホスト名で補われるべき", p.SiteName)
	}
}

func TestFetch_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	jsonSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	}))
	defer jsonSrv.Close()

	tests := []struct {
		name     string
		guard    *allowAllGuard
		url      string
		wantCode string
	}{
		{"http以外のスキーム", &allowAllGuard{}, "ftp://example.com/a", model.ErrCodeInvalidURL},
		{"ホストなし", &allowAllGuard{}, "https://", model.ErrCodeInvalidURL},
		{"SSRFブロック", &allowAllGuard{blocked: true}, "http://10.0.0.1/", model.ErrCodeSSRFBlocked},
		{"404", &allowAllGuard{}, notFound.URL, model.ErrCodeFetchFailed},
		{"HTML以外", &allowAllGuard{}, jsonSrv.URL, model.ErrCodeFetchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(tt.guard).Fetch(context.Background(), tt.url)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *model.APIError", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", apiErr.Code, tt.wantCode)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("court", 10); got != "court" {
		t.Errorf("truncateRunes() = %q", got)
	}
	got := truncateRunes("un deux trois quatre cinq", 12)
	if got != "un deux…" {
		t.Errorf("truncateRunes() = %q, want 単語境界で切り詰め", got)
	}
}
