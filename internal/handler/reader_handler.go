package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdigest/internal/middleware"
	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/pending"
)

// pendingCookieMaxAge は保留操作cookieの有効期間（秒）。
const pendingCookieMaxAge = 30 * 60

// ReactionServiceInterface はリアクション操作のサービスインターフェース。
type ReactionServiceInterface interface {
	Counts(ctx context.Context, itemID, viewerID string) ([]model.ReactionCount, error)
	Toggle(ctx context.Context, itemID, userID, emoji string) ([]model.ReactionCount, error)
}

// BookmarkServiceInterface はブックマーク操作のサービスインターフェース。
type BookmarkServiceInterface interface {
	Toggle(ctx context.Context, userID, itemID string) (bool, error)
	List(ctx context.Context, userID string) ([]*model.Item, error)
}

// PendingDeferrer はログイン前の操作を保留するインターフェース。
type PendingDeferrer interface {
	Defer(clientID string, action pending.Action)
}

// ReaderHandler は読者のリアクションとブックマークのHTTPハンドラー。
// 未ログインの操作は保留し、ログイン完了後に実行する。
type ReaderHandler struct {
	reactions    ReactionServiceInterface
	bookmarks    BookmarkServiceInterface
	pending      PendingDeferrer
	cookieSecure bool
}

// NewReaderHandler はReaderHandlerを生成する。
func NewReaderHandler(
	reactions ReactionServiceInterface,
	bookmarks BookmarkServiceInterface,
	pendingActions PendingDeferrer,
	cookieSecure bool,
) *ReaderHandler {
	return &ReaderHandler{
		reactions:    reactions,
		bookmarks:    bookmarks,
		pending:      pendingActions,
		cookieSecure: cookieSecure,
	}
}

// authRequiredResponse は保留操作がある場合の401レスポンス。
type authRequiredResponse struct {
	middleware.ErrorResponseBody
	Pending pendingInfo `json:"pending"`
}

type pendingInfo struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

// Reactions は記事のリアクション集計を返す。ログイン中なら自分のリアクション有無も含む。
// GET /api/items/{id}/reactions
func (h *ReaderHandler) Reactions(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := middleware.UserIDFromContext(r.Context())
	counts, err := h.reactions.Counts(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reactions": counts})
}

// ToggleReaction はリアクションを付け外しする。
// POST /api/items/{id}/reactions  body: {"emoji": "🔥"}
func (h *ReaderHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if !decodeJSON(w, r, defaultBodyLimit, &req) {
		return
	}
	if !model.IsAllowedReaction(req.Emoji) {
		handleServiceError(w, model.NewInvalidReactionError(req.Emoji))
		return
	}

	itemID := chi.URLParam(r, "id")
	emoji := req.Emoji
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		h.deferAction(w, r, pending.Action{
			Kind:  "reaction",
			Label: "réagir " + emoji + " à cet article",
			Continuation: func(ctx context.Context, userID string) error {
				_, err := h.reactions.Toggle(ctx, itemID, userID, emoji)
				return err
			},
		})
		return
	}

	counts, err := h.reactions.Toggle(r.Context(), itemID, userID, emoji)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reactions": counts})
}

// ToggleBookmark はブックマークを付け外しする。
// PUT /api/items/{id}/bookmark
func (h *ReaderHandler) ToggleBookmark(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		h.deferAction(w, r, pending.Action{
			Kind:  "bookmark",
			Label: "enregistrer cet article",
			Continuation: func(ctx context.Context, userID string) error {
				_, err := h.bookmarks.Toggle(ctx, userID, itemID)
				return err
			},
		})
		return
	}

	bookmarked, err := h.bookmarks.Toggle(r.Context(), userID, itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"bookmarked": bookmarked})
}

// Bookmarks はログイン中のユーザーのブックマーク一覧を返す。
// GET /api/bookmarks
func (h *ReaderHandler) Bookmarks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	items, err := h.bookmarks.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toItemResponses(items)})
}

// deferAction は操作を保留し、401 AUTH_REQUIRED を返す。
// 匿名クライアントのcookieが無ければ発行する。
func (h *ReaderHandler) deferAction(w http.ResponseWriter, r *http.Request, action pending.Action) {
	clientID := ""
	if c, err := r.Cookie(pending.CookieName); err == nil && c.Value != "" {
		clientID = c.Value
	} else {
		clientID = pending.NewClientID()
		http.SetCookie(w, &http.Cookie{
			Name:     pending.CookieName,
			Value:    clientID,
			Path:     "/",
			MaxAge:   pendingCookieMaxAge,
			Expires:  time.Now().Add(pendingCookieMaxAge * time.Second),
			HttpOnly: true,
			Secure:   h.cookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	h.pending.Defer(clientID, action)

	middleware.WriteErrorBody(w, http.StatusUnauthorized, authRequiredResponse{
		ErrorResponseBody: middleware.NewErrorBody(model.NewAuthRequiredError(action.Label)),
		Pending: pendingInfo{Kind: action.Kind, Label: action.Label},
	})
}
