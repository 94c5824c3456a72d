package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdigest/internal/model"
)

// DigestServiceInterface はダイジェストハンドラーが必要とするサービスインターフェース。
type DigestServiceInterface interface {
	List(ctx context.Context, publishedOnly bool) ([]*model.Digest, error)
	Get(ctx context.Context, id string) (*model.Digest, error)
	Latest(ctx context.Context) (*model.Digest, error)
	Create(ctx context.Context, input model.DigestInput) (*model.Digest, error)
	Update(ctx context.Context, id string, input model.DigestInput) (*model.Digest, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) (*model.Digest, error)
	Unpublish(ctx context.Context, id string) (*model.Digest, error)
}

// DigestHandler はダイジェストの閲覧・管理のHTTPハンドラー。
type DigestHandler struct {
	service DigestServiceInterface
}

// NewDigestHandler はDigestHandlerを生成する。
func NewDigestHandler(service DigestServiceInterface) *DigestHandler {
	return &DigestHandler{service: service}
}

// digestResponse はダイジェストのAPIレスポンス。
type digestResponse struct {
	ID          string     `json:"id"`
	Date        string     `json:"date"` // YYYY-MM-DD
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	IsPublished bool       `json:"is_published"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// digestRequest はダイジェストの作成・更新リクエストのボディ。
type digestRequest struct {
	Date    *string `json:"date,omitempty"`
	Title   *string `json:"title,omitempty"`
	Summary *string `json:"summary,omitempty"`
}

func toDigestResponse(d *model.Digest) digestResponse {
	return digestResponse{
		ID:          d.ID,
		Date:        d.Date.Format(time.DateOnly),
		Title:       d.Title,
		Summary:     d.Summary,
		IsPublished: d.IsPublished(),
		PublishedAt: d.PublishedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func toDigestResponses(digests []*model.Digest) []digestResponse {
	out := make([]digestResponse, len(digests))
	for i, d := range digests {
		out[i] = toDigestResponse(d)
	}
	return out
}

// toInput はリクエストをサービスの入力に変換する。日付の形式が不正な場合はエラーを返す。
func (req digestRequest) toInput() (model.DigestInput, error) {
	input := model.DigestInput{Title: req.Title, Summary: req.Summary}
	if req.Date != nil {
		date, err := time.Parse(time.DateOnly, strings.TrimSpace(*req.Date))
		if err != nil {
			return input, model.NewInvalidRequestError("date attendue au format AAAA-MM-JJ")
		}
		input.Date = &date
	}
	return input, nil
}

// ListPublished は公開済みダイジェストの一覧を返す。
// GET /api/digests
func (h *DigestHandler) ListPublished(w http.ResponseWriter, r *http.Request) {
	digests, err := h.service.List(r.Context(), true)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"digests": toDigestResponses(digests)})
}

// Latest は最新の公開済みダイジェストを返す。公開済みがない場合は digest: null。
// GET /api/digests/latest
func (h *DigestHandler) Latest(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Latest(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	var resp *digestResponse
	if d != nil {
		dr := toDigestResponse(d)
		resp = &dr
	}
	writeJSON(w, http.StatusOK, map[string]any{"digest": resp})
}

// ListAll は下書きを含む全ダイジェストを返す。
// GET /api/admin/digests
func (h *DigestHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	digests, err := h.service.List(r.Context(), false)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"digests": toDigestResponses(digests)})
}

// Get はダイジェストを返す。
// GET /api/admin/digests/{id}
func (h *DigestHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDigestResponse(d))
}

// Create はダイジェストを作成する。
// POST /api/admin/digests
func (h *DigestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req digestRequest
	if !decodeJSON(w, r, defaultBodyLimit, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	d, err := h.service.Create(r.Context(), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDigestResponse(d))
}

// Update はダイジェストを更新する。
// PATCH /api/admin/digests/{id}
func (h *DigestHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req digestRequest
	if !decodeJSON(w, r, defaultBodyLimit, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	d, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDigestResponse(d))
}

// Delete はダイジェストを記事ごと削除する。
// DELETE /api/admin/digests/{id}
func (h *DigestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Publish はダイジェストを公開する。
// POST /api/admin/digests/{id}/publish
func (h *DigestHandler) Publish(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Publish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDigestResponse(d))
}

// Unpublish はダイジェストを下書きに戻す。
// POST /api/admin/digests/{id}/unpublish
func (h *DigestHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Unpublish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDigestResponse(d))
}
