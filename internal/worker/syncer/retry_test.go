package syncer

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/chargesync/internal/cloudkit"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{5, 32 * time.Minute},
		{6, time.Hour},
		{100, time.Hour},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("failures=%d", tt.failures), func(t *testing.T) {
			if got := CalculateBackoff(tt.failures); got != tt.want {
				t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.failures, got, tt.want)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"認証失敗", &cloudkit.Error{StatusCode: 401, ServerErrorCode: cloudkit.ErrorCodeAuthenticationFail}, true},
		{"ラップされた不正リクエスト", fmt.Errorf("wrap: %w", &cloudkit.Error{ServerErrorCode: cloudkit.ErrorCodeBadRequest}), true},
		{"スロットリング", &cloudkit.Error{StatusCode: 503, ServerErrorCode: cloudkit.ErrorCodeThrottled}, false},
		{"CloudKit以外", errors.New("connection refused"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
