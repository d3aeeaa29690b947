// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, not_found, upstream, security, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因となったエラー（ログ用。レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeListNotFound          = "LIST_NOT_FOUND"
	ErrCodeSchoolNotFound        = "SCHOOL_NOT_FOUND"
	ErrCodeDeadlineNotFound      = "DEADLINE_NOT_FOUND"
	ErrCodeSupplementNotFound    = "SUPPLEMENT_NOT_FOUND"
	ErrCodeCalendarEventNotFound = "CALENDAR_EVENT_NOT_FOUND"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeUpstreamAuth          = "UPSTREAM_AUTH_ERROR"
	ErrCodeUpstreamAPI           = "UPSTREAM_API_ERROR"
	ErrCodeDecryption            = "DECRYPTION_ERROR"
)

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategoryUpstream   = "upstream"
	CategorySecurity   = "security"
	CategorySystem     = "system"
)

// NewValidationError は入力不正エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
	}
}

// NewNotFoundError は参照先が存在しない場合のエラーを生成する。
// code には ErrCode*NotFound のいずれかを指定する。
func NewNotFoundError(code, resource string, id int64) *APIError {
	return &APIError{
		Code:     code,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %d", resource, id),
		Category: CategoryNotFound,
		Action:   "画面を再読み込みしてから再度お試しください。",
	}
}

// NewListNotFoundError はリストが存在しない（または他ユーザー所有の）場合のエラーを生成する。
func NewListNotFoundError(listID int64) *APIError {
	return NewNotFoundError(ErrCodeListNotFound, "リスト", listID)
}

// NewSchoolNotFoundError は学校が存在しない場合のエラーを生成する。
func NewSchoolNotFoundError(schoolID int64) *APIError {
	return NewNotFoundError(ErrCodeSchoolNotFound, "学校", schoolID)
}

// NewDeadlineNotFoundError は締切が存在しない場合のエラーを生成する。
func NewDeadlineNotFoundError(deadlineID int64) *APIError {
	return NewNotFoundError(ErrCodeDeadlineNotFound, "締切", deadlineID)
}

// NewSupplementNotFoundError はサプリメントが存在しない場合のエラーを生成する。
func NewSupplementNotFoundError(supplementID int64) *APIError {
	return NewNotFoundError(ErrCodeSupplementNotFound, "サプリメント", supplementID)
}

// NewCalendarEventNotFoundError はカレンダーイベントが存在しない場合のエラーを生成する。
func NewCalendarEventNotFoundError(eventID int64) *APIError {
	return NewNotFoundError(ErrCodeCalendarEventNotFound, "カレンダーイベント", eventID)
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: CategoryNotFound,
		Action:   "ログインし直してください。",
	}
}

// NewUpstreamAuthError は外部カレンダーのトークン交換・更新が拒否された場合のエラーを生成する。
func NewUpstreamAuthError(op string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamAuth,
		Message:  fmt.Sprintf("外部カレンダーの認証に失敗しました（%s）", op),
		Category: CategoryUpstream,
		Action:   "Googleカレンダーを再接続してください。",
		Err:      err,
	}
}

// NewUpstreamAPIError は外部カレンダーAPI呼び出しが失敗した場合のエラーを生成する。
func NewUpstreamAPIError(op string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamAPI,
		Message:  fmt.Sprintf("外部カレンダーAPIの呼び出しに失敗しました（%s）", op),
		Category: CategoryUpstream,
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewDecryptionError は保存済みトークンを復号できない場合のエラーを生成する。
func NewDecryptionError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeDecryption,
		Message:  "保存済みの認証情報を復号できませんでした。",
		Category: CategorySecurity,
		Action:   "Googleカレンダーを再接続してください。",
		Err:      err,
	}
}

func hasCategory(err error, category string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Category == category
}

func hasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsValidation は err が入力不正エラーかを判定する。
func IsValidation(err error) bool { return hasCategory(err, CategoryValidation) }

// IsNotFound は err が参照先不在エラーかを判定する。
func IsNotFound(err error) bool { return hasCategory(err, CategoryNotFound) }

// IsUpstreamAuth は err が外部認証エラーかを判定する。
func IsUpstreamAuth(err error) bool { return hasCode(err, ErrCodeUpstreamAuth) }

// IsUpstreamAPI は err が外部APIエラーかを判定する。
func IsUpstreamAPI(err error) bool { return hasCode(err, ErrCodeUpstreamAPI) }

// IsDecryption は err が復号エラーかを判定する。
func IsDecryption(err error) bool { return hasCode(err, ErrCodeDecryption) }
