// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsdigest/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// AdminChecker は管理者ロールの判定に必要なインターフェース。
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 UNAUTHORIZEDを返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := lookupSessionUser(r, sessionFinder)
			if userID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// NewOptionalSessionMiddleware は有効なセッションがあればユーザーIDを注入し、
// なければそのまま次のハンドラーに渡すミドルウェアを返す。
// 閲覧APIと、未ログイン時に保留アクションを登録する読者APIで使う。
func NewOptionalSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := lookupSessionUser(r, sessionFinder); userID != "" {
				r = r.WithContext(ContextWithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewAdminMiddleware は管理者ロールを持たないユーザーに403 ACCESS_DENIEDを返す。
// NewSessionMiddlewareの後に配置する。
func NewAdminMiddleware(checker AdminChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			isAdmin, err := checker.IsAdmin(r.Context(), userID)
			if err != nil {
				slog.Error("failed to check admin role",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if !isAdmin {
				slog.Warn("admin access denied", slog.String("user_id", userID))
				WriteErrorResponse(w, http.StatusForbidden, model.NewAccessDeniedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// lookupSessionUser はCookieのセッションを検証し、ユーザーIDを返す。無効な場合は空文字。
func lookupSessionUser(r *http.Request, sessionFinder SessionFinder) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}

	session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to find session",
			slog.String("error", err.Error()),
		)
		return ""
	}
	if session == nil {
		return ""
	}
	return session.UserID
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。アクセスログにも反映される。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	recordUserID(ctx, userID)
	return context.WithValue(ctx, userIDContextKey, userID)
}
