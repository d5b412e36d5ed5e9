package middleware

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/hitoshi/chargesync/internal/model"
)

// RateLimitConfig は手動同期トリガーのレート制限設定を保持する。
type RateLimitConfig struct {
	// 1分あたりの許可リクエスト数
	RequestsPerMinute float64
	// バースト許容数
	Burst int
}

// DefaultRateLimitConfig はデフォルトのレート制限設定を返す。
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 6,
		Burst:             2,
	}
}

// NewRateLimitMiddleware はプロセス全体で共有するトークンバケットにより
// リクエストを制限するミドルウェアを返す。上限超過時は429を返す。
func NewRateLimitMiddleware(cfg RateLimitConfig) func(next http.Handler) http.Handler {
	limit := rate.Limit(cfg.RequestsPerMinute / 60.0)
	limiter := rate.NewLimiter(limit, cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeRateLimitResponse(w, limit)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteAPIError(w, model.NewRateLimitedError())
}
