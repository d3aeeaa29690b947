// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/collegetrack/internal/middleware"
	"github.com/hitoshi/collegetrack/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 1 << 20

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= 500 {
			slog.Error("service error",
				slog.String("code", apiErr.Code),
				slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
				slog.String("error", err.Error()),
			)
		}
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorのカテゴリからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Category {
	case model.CategoryValidation:
		return http.StatusBadRequest
	case model.CategoryNotFound:
		return http.StatusNotFound
	case model.CategoryUpstream:
		return http.StatusBadGateway
	case model.CategoryAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディをdstに読み込む。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: model.CategoryValidation,
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// requireUser は認証済みユーザーを返す。未認証の場合は401を書き込みnilを返す。
func requireUser(w http.ResponseWriter, r *http.Request) *model.User {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return nil
	}
	return user
}

// idParam はURLパスの数値IDを読む。不正な場合は400を書き込みfalseを返す。
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(name+" は正の整数で指定してください"))
		return 0, false
	}
	return id, true
}
