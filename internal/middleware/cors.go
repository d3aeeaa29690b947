package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, X-Request-ID"
	corsExposeHeaders = "X-Request-ID, Retry-After"
)

// ParseAllowedOrigins はカンマ区切りのオリジン指定を分割する。
// 末尾のスラッシュは比較のため取り除く。
func ParseAllowedOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// NewCORSMiddleware は許可リストに一致するOriginに対してのみCORSヘッダーを返すミドルウェアを生成する。
// allowedOriginsはカンマ区切りで複数指定できる（例: Webフロントとモバイル用プレビュー）。
// credentials送信と共存するため、Allow-Originには一致したOriginをそのまま返し、ワイルドカードは使わない。
//
// OPTIONSプリフライトは許可の有無にかかわらず204で終端する。
// 許可されないOriginにはCORSヘッダーを付けないため、ブラウザ側で拒否される。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	allowed := make(map[string]struct{})
	for _, o := range ParseAllowedOrigins(allowedOrigins) {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; ok && origin != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				if r.Method == http.MethodOptions {
					h.Set("Access-Control-Allow-Methods", corsAllowMethods)
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Max-Age", "600")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
