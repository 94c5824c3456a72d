package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// ParseAllowedOrigins はカンマ区切りのオリジン一覧を正規化する。末尾の / は取り除く。
func ParseAllowedOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o != "" && !slices.Contains(origins, o) {
			origins = append(origins, o)
		}
	}
	return origins
}

// NewCORSMiddleware は許可オリジンからのリクエストにだけCORSヘッダーを付けるミドルウェアを返す。
// allowedOrigins はカンマ区切りで複数指定できる（管理画面と読者向けアプリが別オリジンの場合）。
// cookieを送るためワイルドカードは使わず、一致したOriginをそのまま返す。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	origins := ParseAllowedOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowed := origin != "" && slices.Contains(origins, origin)
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", "Retry-After")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				h := w.Header()
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
