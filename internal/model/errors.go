package model

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord はリモートレコードに必須フィールドが欠けていることを表す。
var ErrMalformedRecord = errors.New("malformed record")

// NewMalformedRecordError はErrMalformedRecordをラップしたエラーを生成する。
func NewMalformedRecordError(recordName, field string) error {
	return fmt.Errorf("%w: %s: field %q is missing", ErrMalformedRecord, recordName, field)
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: sync, validation, system
	Action   string // 対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSyncInProgress = "SYNC_IN_PROGRESS"
	ErrCodeSyncFailed     = "SYNC_FAILED"
	ErrCodeInvalidPurge   = "INVALID_PURGE"
)

// NewSyncInProgressError は同期パスが実行中の場合のエラーを生成する。
func NewSyncInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncInProgress,
		Message:  "同期処理は既に実行中です。",
		Category: "sync",
		Action:   "実行中の同期が完了してから再度お試しください。",
	}
}

// NewSyncFailedError は同期パスが失敗した場合のエラーを生成する。
func NewSyncFailedError(runID string) *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailed,
		Message:  fmt.Sprintf("同期処理に失敗しました: run_id=%s", runID),
		Category: "sync",
		Action:   "ログを確認し、しばらく待ってから再度お試しください。",
	}
}

// NewInvalidPurgeError はpurgeパラメータが不正な場合のエラーを生成する。
func NewInvalidPurgeError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPurge,
		Message:  fmt.Sprintf("無効なpurge指定です: %s", value),
		Category: "validation",
		Action:   "purgeには true または false を指定してください。",
	}
}

// ErrCodeRateLimited は手動同期の要求が多すぎる場合のエラーコード。
const ErrCodeRateLimited = "RATE_LIMITED"

// NewRateLimitedError は手動同期の要求回数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "同期の要求が多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}
