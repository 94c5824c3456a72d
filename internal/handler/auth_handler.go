package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdigest/internal/middleware"
	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/pending"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Providers() []string
	GetLoginURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code string) (*model.Session, error)
	RequestMagicLink(ctx context.Context, email, redirectPath, clientIP string) error
	VerifyMagicLink(ctx context.Context, token string) (*model.Session, string, error)
	AdminLogin(ctx context.Context, email, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// PendingRunner はログイン完了時に保留中の操作を実行するインターフェース。
type PendingRunner interface {
	OnAuthenticated(ctx context.Context, clientID, userID string) (bool, error)
}

// CookieConfig はセッションcookieの属性。
type CookieConfig struct {
	Domain string
	Secure bool
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string // ログイン後のリダイレクト先（フロントエンド）
	Cookie        CookieConfig
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth、メールリンク、管理者ログインのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	pending PendingRunner
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, pendingActions PendingRunner, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		pending: pendingActions,
		config:  config,
	}
}

// Providers は有効なログイン方法を返す。
// GET /auth/providers
func (h *AuthHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"oauth": h.service.Providers(),
		"email": true,
	})
}

// Login はOAuthフローを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.GetLoginURL(chi.URLParam(r, "provider"), state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		h.redirectWithError(w, r, model.ErrCodeAuthFailed)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectWithError(w, r, model.ErrCodeAuthFailed)
		return
	}

	session, err := h.service.HandleCallback(r.Context(), chi.URLParam(r, "provider"), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.redirectWithError(w, r, errorCode(err, model.ErrCodeAuthFailed))
		return
	}

	h.completeLogin(w, r, session, "/")
}

// RequestMagicLink はメールでログインリンクを送る。
// 登録済みかどうかに関わらず同じ応答を返す。
// POST /auth/magic-link  body: {"email": "...", "redirect": "/..."}
func (h *AuthHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Redirect string `json:"redirect"`
	}
	if !decodeJSON(w, r, defaultBodyLimit, &req) {
		return
	}

	if err := h.service.RequestMagicLink(r.Context(), req.Email, req.Redirect, middleware.ClientIP(r)); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// MagicLinkCallback はメールのログインリンクを検証してログインする。
// GET /auth/magic-link/callback?token=xxx
func (h *AuthHandler) MagicLinkCallback(w http.ResponseWriter, r *http.Request) {
	session, redirectPath, err := h.service.VerifyMagicLink(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			slog.Error("magic link verification failed", slog.String("error", err.Error()))
		}
		h.redirectWithError(w, r, errorCode(err, model.ErrCodeAuthFailed))
		return
	}
	h.completeLogin(w, r, session, redirectPath)
}

// AdminLogin は管理者のメールアドレスとパスワードでログインする。
// POST /auth/admin/login  body: {"email": "...", "password": "..."}
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, defaultBodyLimit, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		handleServiceError(w, model.NewInvalidCredentialsError())
		return
	}

	session, err := h.service.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusOK, map[string]string{"user_id": session.UserID})
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	clearSessionCookie(w, h.config.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

// completeLogin はセッションcookieを発行し、保留中の操作を実行してからフロントエンドへ戻す。
func (h *AuthHandler) completeLogin(w http.ResponseWriter, r *http.Request, session *model.Session, redirectPath string) {
	h.setSessionCookie(w, session.ID)

	if c, err := r.Cookie(pending.CookieName); err == nil && c.Value != "" {
		if h.pending != nil {
			// 保留操作の失敗はログインの成否に影響させない
			if _, err := h.pending.OnAuthenticated(r.Context(), c.Value, session.UserID); err != nil {
				slog.Warn("pending action after login failed",
					slog.String("user_id", session.UserID),
					slog.String("error", err.Error()),
				)
			}
		}
		http.SetCookie(w, &http.Cookie{
			Name:     pending.CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.config.Cookie.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	http.Redirect(w, r, strings.TrimRight(h.config.BaseURL, "/")+redirectPath, http.StatusTemporaryRedirect)
}

// redirectWithError はログイン画面にエラーコード付きでリダイレクトする。
func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	target := strings.TrimRight(h.config.BaseURL, "/") + "/login?" + url.Values{"error": {code}}.Encode()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.Cookie.Domain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションcookieを削除する。
func clearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// errorCode はAPIErrorならそのコードを、それ以外はfallbackを返す。
func errorCode(err error, fallback string) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return fallback
}

// generateState はOAuth stateパラメータ用のランダム文字列を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
