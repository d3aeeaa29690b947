package middleware

import (
	"net/http"
	"strings"
)

// apiContentSecurityPolicy はJSONのみを返すAPI向けのCSP。
// ブラウザに一切のサブリソース読み込みと埋め込みを許さない。
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeadersConfig はセキュリティヘッダーミドルウェアの設定。
type SecurityHeadersConfig struct {
	// HSTS はStrict-Transport-Securityを付与するか。HTTPS配信時のみ有効にする。
	HSTS bool
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// /api/ 配下のレスポンスはユーザーごとの出願情報を含むため、キャッシュを禁止する。
func NewSecurityHeadersMiddleware(cfg SecurityHeadersConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Content-Security-Policy", apiContentSecurityPolicy)
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			if strings.HasPrefix(r.URL.Path, "/api/") {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
