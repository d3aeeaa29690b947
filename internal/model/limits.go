package model

import (
	"fmt"
	"unicode/utf8"
)

// 文字列カラムの上限（文字数）。マイグレーションのVARCHAR長と一致させる。
const (
	MaxAuthSubjectLength = 255
	MaxEmailLength       = 320
	MaxUserNameLength    = 256
	MaxListNameLength    = 256
	MaxEventTitleLength  = 256
)

// CheckLength はsの文字数がmaxを超える場合にValidationErrorを返す。
// PostgreSQLのVARCHAR(n)はバイトではなく文字数で数えるため、ルーン数で比較する。
func CheckLength(field, s string, max int) error {
	if n := utf8.RuneCountInString(s); n > max {
		return NewValidationError(fmt.Sprintf("%s は%d文字以内で指定してください（%d文字）", field, max, n))
	}
	return nil
}
