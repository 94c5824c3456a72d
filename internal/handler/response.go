// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/newsdigest/internal/middleware"
	"github.com/hitoshi/newsdigest/internal/model"
)

// defaultBodyLimit はJSONリクエストボディの最大サイズ。
const defaultBodyLimit int64 = 1 << 20

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// decodeJSON はリクエストボディをJSONとしてdstに読み込む。
// 失敗した場合は400を書き込み、falseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge,
				model.NewInvalidRequestError("corps de requête trop volumineux"))
			return false
		}
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("le corps doit être un JSON valide"))
		return false
	}
	return true
}

// requireUserID はコンテキストのユーザーIDを返す。未認証の場合は401を書き込む。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidItem, model.ErrCodeInvalidReaction,
		model.ErrCodeEmptyInput, model.ErrCodeInvalidJSON, model.ErrCodeInvalidURL,
		model.ErrCodeInvalidImage, model.ErrCodeLinkExpired, model.ErrCodeInvalidLink:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeAuthRequired, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeAccessDenied, model.ErrCodeSSRFBlocked, model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodeDigestNotFound, model.ErrCodeItemNotFound, model.ErrCodeUserNotFound,
		model.ErrCodeProviderDisabled:
		return http.StatusNotFound
	case model.ErrCodeDigestDateConflict, model.ErrCodeInvalidState:
		return http.StatusConflict
	case model.ErrCodeImageTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeUnsupportedFormat, model.ErrCodeNoValidItems, model.ErrCodeNoItemsDetected,
		model.ErrCodeParseFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeFetchFailed, model.ErrCodeImportFailed, model.ErrCodeAuthFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
