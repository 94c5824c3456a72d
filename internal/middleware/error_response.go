package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsdigest/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// ハンドラー側で追加フィールドを持つレスポンスはこれを埋め込む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// NewErrorBody はAPIErrorから統一フォーマットのボディを組み立てる。
func NewErrorBody(apiErr *model.APIError) ErrorResponseBody {
	return ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

// WriteErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
// エラー応答はキャッシュさせない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteErrorBody(w, statusCode, NewErrorBody(apiErr))
}

// WriteErrorBody はErrorResponseBodyを埋め込んだ任意のボディをエラー応答として書き込む。
func WriteErrorBody(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は500の統一レスポンスを書き込む。詳細はログにのみ残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
