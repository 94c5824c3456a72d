package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/hitoshi/newsdigest/internal/enrich"
	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/storage"
)

// ImageStore は記事画像の保存先のインターフェース。
type ImageStore interface {
	Upload(ctx context.Context, r io.Reader) (*storage.Object, error)
	Delete(ctx context.Context, objPath string) error
}

// LinkPreviewer はリンク先ページのプレビュー情報を取得するインターフェース。
type LinkPreviewer interface {
	Fetch(ctx context.Context, rawURL string) (*enrich.Preview, error)
}

// MediaHandler は画像アップロードとリンクプレビューのHTTPハンドラー。
type MediaHandler struct {
	store    ImageStore
	previews LinkPreviewer
	maxSize  int64
}

// NewMediaHandler はMediaHandlerを生成する。maxSizeは画像の最大バイト数。
func NewMediaHandler(store ImageStore, previews LinkPreviewer, maxSize int64) *MediaHandler {
	if maxSize <= 0 {
		maxSize = storage.DefaultMaxSize
	}
	return &MediaHandler{store: store, previews: previews, maxSize: maxSize}
}

// UploadImage はmultipartのfileフィールドの画像を保存し、公開URLを返す。
// POST /api/admin/images
func (h *MediaHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	// multipartのヘッダー分の余裕を持たせる
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+(1<<20))
	file, _, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handleServiceError(w, model.NewImageTooLargeError(h.maxSize>>20))
			return
		}
		handleServiceError(w, model.NewInvalidRequestError("champ « file » manquant"))
		return
	}
	defer file.Close()

	obj, err := h.store.Upload(r.Context(), file)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

// DeleteImage は保存済みの画像を削除する。
// DELETE /api/admin/images?path=articles/...
func (h *MediaHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimSpace(r.URL.Query().Get("path"))
	if err := h.store.Delete(r.Context(), p); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LinkPreview はURLのタイトル・説明・画像を返す。記事編集時の入力補助に使う。
// GET /api/admin/link-preview?url=...
func (h *MediaHandler) LinkPreview(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		handleServiceError(w, model.NewInvalidURLError("paramètre url manquant"))
		return
	}
	preview, err := h.previews.Fetch(r.Context(), rawURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}
