package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestGoogleOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/auth/google/callback",
	})

	loginURL := provider.GetLoginURL("test-state-value")

	u, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("invalid URL %q: %v", loginURL, err)
	}
	q := u.Query()

	tests := []struct {
		param string
		want  string
	}{
		{"client_id", "test-client-id"},
		{"redirect_uri", "http://localhost:8080/auth/google/callback"},
		{"state", "test-state-value"},
		{"response_type", "code"},
		{"scope", "openid email profile"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			if got := q.Get(tt.param); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.param, got, tt.want)
			}
		})
	}
	if !strings.HasPrefix(loginURL, defaultGoogleAuthURL) {
		t.Errorf("URL should start with %s, got %s", defaultGoogleAuthURL, loginURL)
	}
}

// newGoogleServers はトークンとユーザー情報のエンドポイントを模したサーバーを返す。
func newGoogleServers(t *testing.T, userInfo map[string]any) (token, info *httptest.Server) {
	t.Helper()
	token = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-access-token",
			"token_type":   "Bearer",
		})
	}))
	info = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-access-token" {
			t.Errorf("unexpected Authorization header: %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userInfo)
	}))
	t.Cleanup(func() {
		token.Close()
		info.Close()
	})
	return token, info
}

func TestGoogleOAuthProvider_ExchangeCode_Success(t *testing.T) {
	tokenServer, userInfoServer := newGoogleServers(t, map[string]any{
		"sub":            "google-sub-12345",
		"email":          "User@Gmail.com",
		"email_verified": true,
		"name":           "Google User",
	})

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	userInfo, err := provider.ExchangeCode(context.Background(), "test-auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if userInfo.Provider != "google" {
		t.Errorf("provider = %q, want %q", userInfo.Provider, "google")
	}
	if userInfo.ProviderUserID != "google-sub-12345" {
		t.Errorf("providerUserID = %q", userInfo.ProviderUserID)
	}
	if userInfo.Email != "user@gmail.com" {
		t.Errorf("email = %q, want lower-cased address", userInfo.Email)
	}
	if userInfo.Name != "Google User" {
		t.Errorf("name = %q", userInfo.Name)
	}
}

// TestGoogleOAuthProvider_ExchangeCode_UnverifiedEmail は未検証メールを使わないことを検証する。
func TestGoogleOAuthProvider_ExchangeCode_UnverifiedEmail(t *testing.T) {
	tokenServer, userInfoServer := newGoogleServers(t, map[string]any{
		"sub":            "google-sub-1",
		"email":          "someone@example.com",
		"email_verified": false,
	})

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		TokenURL:    tokenServer.URL,
		UserInfoURL: userInfoServer.URL,
	})

	userInfo, err := provider.ExchangeCode(context.Background(), "code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if userInfo.Email != "" {
		t.Errorf("email = %q, want empty for unverified address", userInfo.Email)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "Code was already redeemed.",
		})
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		TokenURL:     tokenServer.URL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "invalid-code"); err == nil {
		t.Fatal("expected error from ExchangeCode with invalid code")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_UserInfoError(t *testing.T) {
	tokenServer, _ := newGoogleServers(t, nil)
	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer userInfoServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		TokenURL:    tokenServer.URL,
		UserInfoURL: userInfoServer.URL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "valid-code"); err == nil {
		t.Fatal("expected error from ExchangeCode when user info fetch fails")
	}
}
