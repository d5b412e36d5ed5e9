package syncer

import (
	"errors"
	"time"

	"github.com/hitoshi/chargesync/internal/cloudkit"
)

const (
	// initialBackoff は指数バックオフの初回遅延（1分）。
	initialBackoff = time.Minute
	// maxBackoff は指数バックオフの最大遅延（1時間）。
	maxBackoff = time.Hour
)

// CalculateBackoff は連続失敗回数に基づいて次回実行までの遅延を計算する。
// 初回1分、2倍ずつ増加、最大1時間。
func CalculateBackoff(consecutiveFailures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// IsPermanent は再実行しても解消しない失敗かどうかを判定する。
// 認証失敗と不正なリクエスト（クエリの誤り）が該当する。
func IsPermanent(err error) bool {
	var ckErr *cloudkit.Error
	if !errors.As(err, &ckErr) {
		return false
	}
	switch ckErr.ServerErrorCode {
	case cloudkit.ErrorCodeAuthenticationFail, cloudkit.ErrorCodeBadRequest:
		return true
	}
	return false
}
