package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラー内のpanicを捕捉してプロセスを守るミドルウェアを返す。
// レスポンスがまだ書き出されていなければ統一フォーマットの500を返す。
// 既に書き出し済みの場合はヘッダーを二重に送れないため、ログのみ残す。
// loggerがnilの場合はslog.Default()を使う。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				// net/httpが接続中断に使うpanicはそのまま伝播させる
				if p == http.ErrAbortHandler {
					panic(p)
				}

				l := logger
				if l == nil {
					l = slog.Default()
				}
				l.Error("panic recovered",
					slog.Any("panic", p),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.Bool("response_committed", rec.written),
					slog.String("stack", string(debug.Stack())),
				)
				if !rec.written {
					WriteInternalServerError(rec)
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
