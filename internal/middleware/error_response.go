package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/collegetrack/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法に加え、問い合わせ用にリクエストIDを含む。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// リクエストIDはRequestIDミドルウェアが設定したレスポンスヘッダーから引き継ぐ。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	body := ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		RequestID: w.Header().Get(RequestIDHeader),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

var (
	errInternal = &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: model.CategorySystem,
		Action:   "時間をおいて再度お試しください。解決しない場合はリクエストIDを添えてお問い合わせください。",
	}
	errUnauthorized = &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "ログインが必要です。",
		Category: model.CategoryAuth,
		Action:   "再度サインインしてください。",
	}
)

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, errInternal)
}

// WriteUnauthorized は未認証の統一レスポンスを書き込む。
func WriteUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, errUnauthorized)
}
