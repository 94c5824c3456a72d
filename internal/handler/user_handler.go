package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/newsdigest/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Profile(ctx context.Context, userID string) (*user.Profile, error)
	// Withdraw はユーザーの退会処理を実行する。
	// identities、sessions、user_roles、reactions、bookmarksも削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookie  CookieConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, cookie CookieConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookie:  cookie,
	}
}

// Me はログイン中のユーザーのプロフィールを返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	profile, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Withdraw はユーザーの退会処理を実行し、セッションcookieを削除する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	clearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}
