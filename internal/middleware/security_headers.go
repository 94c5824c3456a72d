package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeadersConfig はセキュリティヘッダーの設定。
type SecurityHeadersConfig struct {
	// HSTS はStrict-Transport-Securityを付けるか。HTTPSで公開している場合のみtrueにする。
	HSTS bool
	// PublicAssetsPrefix 配下（アップロード画像）は他オリジンのアプリから埋め込めるようにする。
	PublicAssetsPrefix string
}

const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; sandbox"

// NewSecurityHeadersMiddleware はセキュリティ関連のレスポンスヘッダーを付与するミドルウェアを返す。
// APIはJSONしか返さないため、CSPはすべてのリソース読み込みを禁止する。
func NewSecurityHeadersMiddleware(config SecurityHeadersConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Content-Security-Policy", apiContentSecurityPolicy)

			if config.PublicAssetsPrefix != "" && strings.HasPrefix(r.URL.Path, config.PublicAssetsPrefix) {
				h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			} else {
				h.Set("Cross-Origin-Resource-Policy", "same-site")
			}
			if config.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
