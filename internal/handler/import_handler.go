package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdigest/internal/importer"
	"github.com/hitoshi/newsdigest/internal/metrics"
	"github.com/hitoshi/newsdigest/internal/middleware"
	"github.com/hitoshi/newsdigest/internal/model"
)

// importBodyLimit は貼り付け入力を含むリクエストボディの最大サイズ。
const importBodyLimit int64 = 5 << 20

// FeedAnalyzer はフィードURLから記事候補を生成するインターフェース。
type FeedAnalyzer interface {
	Analyze(ctx context.Context, feedURL string) (*importer.AnalyzeResult, error)
}

// ImportMetrics は取り込み処理のメトリクス記録インターフェース。
type ImportMetrics interface {
	RecordAnalyze(mode, outcome string)
	RecordImport(created int, failed bool)
}

// ImportHandler は管理画面からの記事一括取り込みのHTTPハンドラー。
// サーバーは画面の状態を持たず、クリーン・解析・登録をそれぞれ独立したリクエストで受ける。
type ImportHandler struct {
	feeds    FeedAnalyzer
	importer importer.ItemImporter
	metrics  ImportMetrics
}

// NewImportHandler はImportHandlerを生成する。metricsがnilの場合は記録しない。
func NewImportHandler(feeds FeedAnalyzer, itemImporter importer.ItemImporter, m ImportMetrics) *ImportHandler {
	if m == nil {
		m = noopImportMetrics{}
	}
	return &ImportHandler{feeds: feeds, importer: itemImporter, metrics: m}
}

type noopImportMetrics struct{}

func (noopImportMetrics) RecordAnalyze(string, string) {}
func (noopImportMetrics) RecordImport(int, bool) {}

// analyzeRequest は解析リクエストのボディ。
type analyzeRequest struct {
	Mode  string `json:"mode"`
	Text  string `json:"text"`
	URL   string `json:"url"`
	Clean bool   `json:"clean"`
}

// analyzeResponse は解析結果（プレビュー）のレスポンス。
type analyzeResponse struct {
	Mode     string             `json:"mode"`
	Items    []model.ParsedItem `json:"items"`
	Warnings []string           `json:"warnings"`
	Fixes    []string           `json:"fixes,omitempty"`
	Text     string             `json:"text,omitempty"`
}

// Clean は貼り付けられたJSONテキストを修復して返す。パースは行わない。
// POST /api/admin/import/clean  body: {"text": "..."}
func (h *ImportHandler) Clean(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, importBodyLimit, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		handleServiceError(w, model.NewEmptyInputError("Collez d'abord du JSON à nettoyer"))
		return
	}
	writeJSON(w, http.StatusOK, importer.Clean(req.Text))
}

// Analyze は入力をモードに応じて解析し、プレビュー用の記事一覧を返す。
// JSONモードは常にクリーナーを通してから解析し、適用した修正を fixes で返す。
// clean=true の場合は修復後のテキストも text で返し、画面の入力を置き換えられるようにする。
// POST /api/admin/import/analyze  body: {"mode": "json|text|feed", "text": "...", "url": "..."}
func (h *ImportHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeJSON(w, r, importBodyLimit, &req) {
		return
	}
	mode, err := importer.ParseMode(req.Mode)
	if err != nil {
		handleServiceError(w, model.NewInvalidRequestError("mode attendu : json, text ou feed"))
		return
	}

	resp := analyzeResponse{Mode: string(mode)}
	var res *importer.AnalyzeResult
	switch mode {
	case importer.ModeFeed:
		if h.feeds == nil {
			handleServiceError(w, model.NewInvalidRequestError("import par flux désactivé"))
			return
		}
		res, err = h.feeds.Analyze(r.Context(), req.URL)
	default:
		if mode == importer.ModeJSON && req.Clean {
			resp.Text = importer.Clean(req.Text).Text
		}
		res, err = importer.Analyze(mode, req.Text)
	}
	if err != nil {
		h.metrics.RecordAnalyze(string(mode), outcomeOf(err))
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordAnalyze(string(mode), metrics.OutcomeOK)
	resp.Items = res.Items
	resp.Fixes = res.Fixes
	resp.Warnings = res.Warnings
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Import はプレビューで確定した記事をダイジェストに末尾から順に登録する。
// 途中で失敗した場合、それまでに作成した記事は残り、件数をレスポンスに含める。
// POST /api/admin/digests/{id}/import  body: {"items": [...]}
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []model.ParsedItem `json:"items"`
	}
	if !decodeJSON(w, r, importBodyLimit, &req) {
		return
	}
	if len(req.Items) == 0 {
		handleServiceError(w, model.NewNoValidItemsError())
		return
	}

	digestID := chi.URLParam(r, "id")
	created, err := h.importer.Import(r.Context(), digestID, req.Items)
	if err != nil {
		h.metrics.RecordImport(created, true)

		var batchErr *importer.BatchError
		if errors.As(err, &batchErr) {
			// 記事の入力値不正などAPIErrorが原因の場合はそのまま返す
			var apiErr *model.APIError
			if errors.As(batchErr.Err, &apiErr) && batchErr.Created == 0 {
				handleServiceError(w, apiErr)
				return
			}
			slog.Warn("一括取り込みが途中で失敗しました",
				slog.String("digest_id", digestID),
				slog.Int("index", batchErr.Index),
				slog.Int("created", batchErr.Created),
				slog.String("error", batchErr.Err.Error()),
			)
			apiErr = model.NewImportFailedError()
			middleware.WriteErrorBody(w, mapAPIErrorToHTTPStatus(apiErr), importFailedResponse{
				ErrorResponseBody: middleware.NewErrorBody(apiErr),
				Created:     batchErr.Created,
				FailedIndex: batchErr.Index,
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordImport(created, false)
	slog.Info("記事を一括取り込みしました",
		slog.String("digest_id", digestID),
		slog.Int("created", created),
	)
	writeJSON(w, http.StatusCreated, map[string]int{"created": created})
}

// importFailedResponse は一括取り込みの途中失敗レスポンス。
type importFailedResponse struct {
	middleware.ErrorResponseBody
	Created     int `json:"created"`
	FailedIndex int `json:"failed_index"`
}

// outcomeOf はメトリクスのoutcomeラベルを返す。
func outcomeOf(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "error"
}
