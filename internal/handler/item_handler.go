package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdigest/internal/item"
	"github.com/hitoshi/newsdigest/internal/model"
)

// ItemServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ItemServiceInterface interface {
	List(ctx context.Context, digestID string, filter model.ItemFilter) ([]*model.Item, error)
	Get(ctx context.Context, id string) (*model.Item, error)
	GetPublished(ctx context.Context, id string) (*model.Item, error)
	Create(ctx context.Context, digestID string, input model.ItemInput) (*model.Item, error)
	Update(ctx context.Context, id string, input model.ItemInput) (*model.Item, error)
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, digestID string, itemIDs []string) error
	TogglePublish(ctx context.Context, id string) (*model.Item, error)
	Feed(ctx context.Context, kind item.FeedKind) (*model.Digest, []*model.Item, error)
	Search(ctx context.Context, search model.ItemSearch) ([]*model.Item, error)
}

// ItemHandler は記事の閲覧・管理のHTTPハンドラー。
type ItemHandler struct {
	service ItemServiceInterface
}

// NewItemHandler はItemHandlerを生成する。
func NewItemHandler(service ItemServiceInterface) *ItemHandler {
	return &ItemHandler{service: service}
}

// itemResponse は記事のAPIレスポンス。
type itemResponse struct {
	ID              string     `json:"id"`
	DigestID        string     `json:"digest_id"`
	Title           string     `json:"title"`
	Snippet         string     `json:"snippet"`
	ContentMD       string     `json:"content_md"`
	Source          string     `json:"source"`
	URL             string     `json:"url"`
	ImageURL        string     `json:"image_url"`
	VideoURL        string     `json:"video_url"`
	EmbedURL        string     `json:"embed_url,omitempty"`
	Rank            int        `json:"rank"`
	Tags            []string   `json:"tags"`
	ReadTimeMinutes int        `json:"read_time_minutes"`
	IsPublished     bool       `json:"is_published"`
	IsBreaking      bool       `json:"is_breaking"`
	EnrichedAt      *time.Time `json:"enriched_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// itemRequest は記事の作成・更新リクエストのボディ。
type itemRequest struct {
	Title           *string  `json:"title,omitempty"`
	Snippet         *string  `json:"snippet,omitempty"`
	ContentMD       *string  `json:"content_md,omitempty"`
	Source          *string  `json:"source,omitempty"`
	URL             *string  `json:"url,omitempty"`
	ImageURL        *string  `json:"image_url,omitempty"`
	VideoURL        *string  `json:"video_url,omitempty"`
	Rank            *int     `json:"rank,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	ReadTimeMinutes *int     `json:"read_time_minutes,omitempty"`
	IsPublished     *bool    `json:"is_published,omitempty"`
	IsBreaking      *bool    `json:"is_breaking,omitempty"`
}

func (req itemRequest) toInput() model.ItemInput {
	return model.ItemInput{
		Title:           req.Title,
		Snippet:         req.Snippet,
		ContentMD:       req.ContentMD,
		Source:          req.Source,
		URL:             req.URL,
		ImageURL:        req.ImageURL,
		VideoURL:        req.VideoURL,
		Rank:            req.Rank,
		Tags:            req.Tags,
		ReadTimeMinutes: req.ReadTimeMinutes,
		IsPublished:     req.IsPublished,
		IsBreaking:      req.IsBreaking,
	}
}

func toItemResponse(it *model.Item) itemResponse {
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	return itemResponse{
		ID:              it.ID,
		DigestID:        it.DigestID,
		Title:           it.Title,
		Snippet:         it.Snippet,
		ContentMD:       it.ContentMD,
		Source:          it.Source,
		URL:             it.URL,
		ImageURL:        it.ImageURL,
		VideoURL:        it.VideoURL,
		EmbedURL:        item.YouTubeEmbedURL(it.VideoURL),
		Rank:            it.Rank,
		Tags:            tags,
		ReadTimeMinutes: it.ReadTimeMinutes,
		IsPublished:     it.IsPublished,
		IsBreaking:      it.IsBreaking,
		EnrichedAt:      it.EnrichedAt,
		CreatedAt:       it.CreatedAt,
		UpdatedAt:       it.UpdatedAt,
	}
}

func toItemResponses(items []*model.Item) []itemResponse {
	out := make([]itemResponse, len(items))
	for i, it := range items {
		out[i] = toItemResponse(it)
	}
	return out
}

// GetPublished は公開記事を返す。
// GET /api/items/{id}
func (h *ItemHandler) GetPublished(w http.ResponseWriter, r *http.Request) {
	it, err := h.service.GetPublished(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(it))
}

// Feed は最新ダイジェストの読者向け記事一覧を返す。
// GET /api/feed/{kind}  kind: latest, breaking, regular
func (h *ItemHandler) Feed(w http.ResponseWriter, r *http.Request) {
	kind, ok := item.ParseFeedKind(chi.URLParam(r, "kind"))
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("type de flux inconnu (latest, breaking, regular)"))
		return
	}

	d, items, err := h.service.Feed(r.Context(), kind)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var digest *digestResponse
	if d != nil {
		dr := toDigestResponse(d)
		digest = &dr
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"digest": digest,
		"items":  toItemResponses(items),
	})
}

// Search は公開記事を検索する。
// GET /api/search?q=...&tag=...&limit=...&offset=...
func (h *ItemHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := model.ItemSearch{
		Query: q.Get("q"),
		Tag:   q.Get("tag"),
	}
	var err error
	if search.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("limit doit être un entier"))
		return
	}
	if search.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("offset doit être un entier"))
		return
	}

	items, err := h.service.Search(r.Context(), search)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toItemResponses(items)})
}

// ListByDigest はダイジェストの全記事（下書き含む）を返す。
// GET /api/admin/digests/{id}/items?published=true|false&breaking=true|false
func (h *ItemHandler) ListByDigest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter model.ItemFilter
	var err error
	if filter.Published, err = queryBool(q.Get("published")); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("published doit valoir true ou false"))
		return
	}
	if filter.Breaking, err = queryBool(q.Get("breaking")); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("breaking doit valoir true ou false"))
		return
	}

	items, err := h.service.List(r.Context(), chi.URLParam(r, "id"), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toItemResponses(items)})
}

// Get は記事を返す（下書き含む）。
// GET /api/admin/items/{id}
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	it, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(it))
}

// Create はダイジェストに記事を追加する。
// POST /api/admin/digests/{id}/items
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decodeJSON(w, r, defaultBodyLimit, &req) {
		return
	}
	it, err := h.service.Create(r.Context(), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(it))
}

// Update は記事を更新する。
// PATCH /api/admin/items/{id}
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decodeJSON(w, r, defaultBodyLimit, &req) {
		return
	}
	it, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(it))
}

// Delete は記事を削除する。
// DELETE /api/admin/items/{id}
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reorder はダイジェスト内の記事の並び順を変更する。
// PUT /api/admin/digests/{id}/items/order  body: {"item_ids": [...]}
func (h *ItemHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemIDs []string `json:"item_ids"`
	}
	if !decodeJSON(w, r, defaultBodyLimit, &req) {
		return
	}
	if len(req.ItemIDs) == 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("item_ids est requis"))
		return
	}
	if err := h.service.Reorder(r.Context(), chi.URLParam(r, "id"), req.ItemIDs); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TogglePublish は記事の公開状態を切り替える。
// POST /api/admin/items/{id}/toggle-publish
func (h *ItemHandler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	it, err := h.service.TogglePublish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(it))
}

// queryInt は空文字を0として整数に変換する。
func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// queryBool は空文字をnilとして真偽値に変換する。
func queryBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
