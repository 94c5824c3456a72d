package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/hitoshi/newsdigest/internal/model"
)

const (
	// csrfCookieName は二重送信用トークンのCookie名。フロントエンドが読むためHttpOnlyにしない。
	csrfCookieName = "csrf_token"

	csrfHeaderName = "X-CSRF-Token"

	defaultCSRFMaxAge = 24 * 60 * 60
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
	// MaxAge はトークンCookieの有効秒数。0なら24時間。セッションと同じ長さにしておく。
	MaxAge int
	// AllowedOrigins が空でなければ、状態変更リクエストのOriginヘッダーもこの一覧と照合する。
	// Originを送らないクライアント（CLIやテスト）はトークン検証だけで通す。
	AllowedOrigins []string
}

func (c CSRFConfig) cookie(token string) *http.Cookie {
	maxAge := c.MaxAge
	if maxAge <= 0 {
		maxAge = defaultCSRFMaxAge
	}
	return &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: false,
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCSRFMiddleware は二重送信Cookie方式のCSRF対策ミドルウェアを返す。
// GET/HEAD/OPTIONS はトークンCookieを配るだけで通し、
// それ以外はCookieとX-CSRF-Tokenヘッダーの一致を要求する。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				ensureCSRFCookie(w, r, config)
				next.ServeHTTP(w, r)
				return
			}

			if reason := validateCSRF(r, config); reason != "" {
				slog.Warn("CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFInvalidError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validateCSRF は拒否理由を返す。問題なければ空文字。
func validateCSRF(r *http.Request, config CSRFConfig) string {
	if origin := r.Header.Get("Origin"); origin != "" && len(config.AllowedOrigins) > 0 {
		if !slices.Contains(config.AllowedOrigins, origin) {
			return "origin not allowed"
		}
	}

	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "missing header token"
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return "token mismatch"
	}
	return ""
}

// NewCSRFTokenHandler はトークンを返すハンドラー。Cookieがあれば同じ値を返す。
// GET /api/csrf-token
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(csrfCookieName); err == nil {
			token = c.Value
		}
		if token == "" {
			var err error
			if token, err = generateCSRFToken(); err != nil {
				slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
			http.SetCookie(w, config.cookie(token))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ensureCSRFCookie はトークンCookieがなければ発行する。
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, config CSRFConfig) {
	if _, err := r.Cookie(csrfCookieName); err == nil {
		return
	}
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
		return
	}
	http.SetCookie(w, config.cookie(token))
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
