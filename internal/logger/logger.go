// Package logger は構造化ログ（JSON）の初期化を行う。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName はすべてのログレコードに付与されるサービス名。
const ServiceName = "collegetrack"

// Setup はINFOレベルのJSON構造化ロガーを生成して返す。
func Setup(w io.Writer) *slog.Logger {
	return SetupWithLevel(w, slog.LevelInfo)
}

// SetupWithLevel は指定レベル以上を出力するJSON構造化ロガーを生成する。
// 全レコードに service 属性を付与する。
func SetupWithLevel(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With(slog.String("service", ServiceName))
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	slog.SetDefault(Setup(w))
}

// ParseLevel は LOG_LEVEL 形式の文字列を slog.Level に変換する。
// 不明な値は INFO として扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
