package cloudkit

import (
	"errors"
	"fmt"
)

// CloudKitのserverErrorCode値（抜粋）。
const (
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeAuthenticationFail = "AUTHENTICATION_FAILED"
	ErrorCodeThrottled          = "THROTTLED"
	ErrorCodeBadRequest         = "BAD_REQUEST"
)

// Error はCloudKit Web Servicesが返すエラーレスポンス。
type Error struct {
	StatusCode      int    `json:"-"`
	ServerErrorCode string `json:"serverErrorCode"`
	Reason          string `json:"reason"`
	UUID            string `json:"uuid"`
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.ServerErrorCode == "" {
		return fmt.Sprintf("cloudkit: HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("cloudkit: %s (status %d): %s", e.ServerErrorCode, e.StatusCode, e.Reason)
}

// IsServerErrorCode はerrがCloudKitの指定エラーコードかどうかを返す。
func IsServerErrorCode(err error, code string) bool {
	var ckErr *Error
	if errors.As(err, &ckErr) {
		return ckErr.ServerErrorCode == code
	}
	return false
}
