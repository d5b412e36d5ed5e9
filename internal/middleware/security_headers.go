package middleware

import "net/http"

// apiHeaders は全レスポンスに付与するヘッダー。
// 同期結果やヘルス状態をブラウザや中間プロキシに保持させない。
var apiHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Cache-Control":          "no-store",
}

// NewSecurityHeadersMiddleware はapiHeadersを設定してから次のハンドラを呼ぶ。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range apiHeaders {
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}
