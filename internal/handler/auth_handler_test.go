package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdigest/internal/middleware"
	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/pending"
)

// --- モック定義 ---

type mockAuthService struct {
	handleCallbackFn func(ctx context.Context, provider, code string) (*model.Session, error)
	verifyFn         func(ctx context.Context, token string) (*model.Session, string, error)
	adminLoginFn     func(ctx context.Context, email, password string) (*model.Session, error)
	requestLinkFn    func(ctx context.Context, email, redirectPath, clientIP string) error

	loggedOut string
}

func (m *mockAuthService) Providers() []string {
	return []string{model.ProviderGoogle}
}

func (m *mockAuthService) GetLoginURL(provider, state string) (string, error) {
	if provider != model.ProviderGoogle {
		return "", model.NewProviderDisabledError(provider)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + state, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, provider, code string) (*model.Session, error) {
	return m.handleCallbackFn(ctx, provider, code)
}

func (m *mockAuthService) RequestMagicLink(ctx context.Context, email, redirectPath, clientIP string) error {
	if m.requestLinkFn != nil {
		return m.requestLinkFn(ctx, email, redirectPath, clientIP)
	}
	return nil
}

func (m *mockAuthService) VerifyMagicLink(ctx context.Context, token string) (*model.Session, string, error) {
	return m.verifyFn(ctx, token)
}

func (m *mockAuthService) AdminLogin(ctx context.Context, email, password string) (*model.Session, error) {
	return m.adminLoginFn(ctx, email, password)
}

func (m *mockAuthService) Logout(_ context.Context, sessionID string) error {
	m.loggedOut = sessionID
	return nil
}

type mockPendingRunner struct {
	clientID, userID string
	err              error
}

func (m *mockPendingRunner) OnAuthenticated(_ context.Context, clientID, userID string) (bool, error) {
	m.clientID = clientID
	m.userID = userID
	return true, m.err
}

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		BaseURL:       "http://localhost:3000",
		SessionMaxAge: 86400,
	}
}

func newAuthTestRouter(h *AuthHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/auth/providers", h.Providers)
	r.Get("/auth/{provider}/login", h.Login)
	r.Get("/auth/{provider}/callback", h.Callback)
	r.Post("/auth/magic-link", h.RequestMagicLink)
	r.Get("/auth/magic-link/callback", h.MagicLinkCallback)
	r.Post("/auth/admin/login", h.AdminLogin)
	r.Post("/auth/logout", h.Logout)
	return r
}

func testSession() *model.Session {
	return &model.Session{
		ID:        "session-123",
		UserID:    "user-123",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

func TestAuthHandler_Login_RedirectsToOAuthURL(t *testing.T) {
	router := newAuthTestRouter(NewAuthHandler(&mockAuthService{}, nil, testAuthConfig()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	state := findCookie(resp, oauthStateCookie)
	if state == nil || state.Value == "" {
		t.Fatal("oauth_state cookie not set")
	}
	if !strings.Contains(resp.Header.Get("Location"), "state="+state.Value) {
		t.Errorf("Location = %q, want state %q", resp.Header.Get("Location"), state.Value)
	}
}

func TestAuthHandler_Login_DisabledProvider(t *testing.T) {
	router := newAuthTestRouter(NewAuthHandler(&mockAuthService{}, nil, testAuthConfig()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAuthHandler_Callback(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		stateCookie  string
		callbackErr  error
		wantLocation string
		wantSession  bool
	}{
		{
			name:         "成功",
			query:        "?code=abc&state=s1",
			stateCookie:  "s1",
			wantLocation: "http://localhost:3000/",
			wantSession:  true,
		},
		{
			name:         "state不一致",
			query:        "?code=abc&state=s1",
			stateCookie:  "other",
			wantLocation: "http://localhost:3000/login?error=AUTH_FAILED",
		},
		{
			name:         "codeなし",
			query:        "?state=s1",
			stateCookie:  "s1",
			wantLocation: "http://localhost:3000/login?error=AUTH_FAILED",
		},
		{
			name:         "コード交換失敗",
			query:        "?code=abc&state=s1",
			stateCookie:  "s1",
			callbackErr:  errors.New("token endpoint unavailable"),
			wantLocation: "http://localhost:3000/login?error=AUTH_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				handleCallbackFn: func(_ context.Context, provider, code string) (*model.Session, error) {
					if tt.callbackErr != nil {
						return nil, tt.callbackErr
					}
					return testSession(), nil
				},
			}
			router := newAuthTestRouter(NewAuthHandler(svc, nil, testAuthConfig()))

			req := httptest.NewRequest(http.MethodGet, "/auth/google/callback"+tt.query, nil)
			req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: tt.stateCookie})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusTemporaryRedirect {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
			}
			if got := resp.Header.Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
			session := findCookie(resp, middleware.SessionCookieName)
			if tt.wantSession {
				if session == nil || session.Value != "session-123" || !session.HttpOnly {
					t.Errorf("session cookie = %+v", session)
				}
			} else if session != nil {
				t.Errorf("session cookie should not be set: %+v", session)
			}
		})
	}
}

func TestAuthHandler_Callback_RunsPendingAction(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(context.Context, string, string) (*model.Session, error) {
			return testSession(), nil
		},
	}
	runner := &mockPendingRunner{err: model.NewItemNotFoundError("i1")}
	router := newAuthTestRouter(NewAuthHandler(svc, runner, testAuthConfig()))

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state=s1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s1"})
	req.AddCookie(&http.Cookie{Name: pending.CookieName, Value: "client-1"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	// 保留操作が失敗してもログインは成功する
	if resp.StatusCode != http.StatusTemporaryRedirect || resp.Header.Get("Location") != "http://localhost:3000/" {
		t.Fatalf("status = %d, location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if runner.clientID != "client-1" || runner.userID != "user-123" {
		t.Errorf("OnAuthenticated(%q, %q), want (client-1, user-123)", runner.clientID, runner.userID)
	}
	if c := findCookie(resp, pending.CookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("pending cookie should be cleared: %+v", c)
	}
}

func TestAuthHandler_RequestMagicLink(t *testing.T) {
	var gotEmail, gotRedirect, gotIP string
	svc := &mockAuthService{
		requestLinkFn: func(_ context.Context, email, redirectPath, clientIP string) error {
			gotEmail, gotRedirect, gotIP = email, redirectPath, clientIP
			return nil
		},
	}
	router := newAuthTestRouter(NewAuthHandler(svc, nil, testAuthConfig()))

	req := httptest.NewRequest(http.MethodPost, "/auth/magic-link",
		strings.NewReader(`{"email":"lea@example.fr","redirect":"/digest/2024-05-01"}`))
	req.RemoteAddr = "203.0.113.7:5555"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if gotEmail != "lea@example.fr" || gotRedirect != "/digest/2024-05-01" || gotIP != "203.0.113.7" {
		t.Errorf("got (%q, %q, %q)", gotEmail, gotRedirect, gotIP)
	}
}

func TestAuthHandler_RequestMagicLink_RateLimited(t *testing.T) {
	svc := &mockAuthService{
		requestLinkFn: func(context.Context, string, string, string) error {
			return model.NewRateLimitedError()
		},
	}
	router := newAuthTestRouter(NewAuthHandler(svc, nil, testAuthConfig()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/magic-link", strings.NewReader(`{"email":"a@b.fr"}`)))

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestAuthHandler_MagicLinkCallback(t *testing.T) {
	t.Run("成功時は保存された遷移先に戻る", func(t *testing.T) {
		svc := &mockAuthService{
			verifyFn: func(_ context.Context, token string) (*model.Session, string, error) {
				if token != "tok" {
					t.Errorf("token = %q, want tok", token)
				}
				return testSession(), "/digest/2024-05-01", nil
			},
		}
		router := newAuthTestRouter(NewAuthHandler(svc, nil, testAuthConfig()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/magic-link/callback?token=tok", nil))

		resp := w.Result()
		if got := resp.Header.Get("Location"); got != "http://localhost:3000/digest/2024-05-01" {
			t.Errorf("Location = %q", got)
		}
		if findCookie(resp, middleware.SessionCookieName) == nil {
			t.Error("session cookie not set")
		}
	})

	t.Run("期限切れはエラーコード付きでログイン画面へ", func(t *testing.T) {
		svc := &mockAuthService{
			verifyFn: func(context.Context, string) (*model.Session, string, error) {
				return nil, "", model.NewLinkExpiredError()
			},
		}
		router := newAuthTestRouter(NewAuthHandler(svc, nil, testAuthConfig()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/magic-link/callback?token=old", nil))

		loc, err := url.Parse(w.Result().Header.Get("Location"))
		if err != nil {
			t.Fatalf("invalid Location: %v", err)
		}
		if loc.Path != "/login" || loc.Query().Get("error") != model.ErrCodeLinkExpired {
			t.Errorf("Location = %q", loc)
		}
	})
}

func TestAuthHandler_AdminLogin(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		loginErr   error
		wantStatus int
	}{
		{"成功", `{"email":"admin@example.fr","password":"correct horse"}`, nil, http.StatusOK},
		{"パスワード不一致", `{"email":"admin@example.fr","password":"wrong"}`, model.NewInvalidCredentialsError(), http.StatusUnauthorized},
		{"管理者でない", `{"email":"reader@example.fr","password":"correct horse"}`, model.NewAccessDeniedError(), http.StatusForbidden},
		{"空の入力", `{"email":"","password":""}`, nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				adminLoginFn: func(context.Context, string, string) (*model.Session, error) {
					if tt.loginErr != nil {
						return nil, tt.loginErr
					}
					return testSession(), nil
				},
			}
			router := newAuthTestRouter(NewAuthHandler(svc, nil, testAuthConfig()))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/admin/login", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			hasSession := findCookie(w.Result(), middleware.SessionCookieName) != nil
			if hasSession != (tt.wantStatus == http.StatusOK) {
				t.Errorf("session cookie set = %v", hasSession)
			}
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	svc := &mockAuthService{}
	router := newAuthTestRouter(NewAuthHandler(svc, nil, testAuthConfig()))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-123"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if svc.loggedOut != "session-123" {
		t.Errorf("loggedOut = %q", svc.loggedOut)
	}
	if c := findCookie(w.Result(), middleware.SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie should be cleared: %+v", c)
	}
}

func TestAuthHandler_Providers(t *testing.T) {
	router := newAuthTestRouter(NewAuthHandler(&mockAuthService{}, nil, testAuthConfig()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/providers", nil))

	if strings.TrimSpace(w.Body.String()) != `{"email":true,"oauth":["google"]}` {
		t.Errorf("body = %s", w.Body.String())
	}
}
