// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/chargesync/internal/model"
)

// CheckInRepository はチェックインの永続化インターフェース。
type CheckInRepository interface {
	// NewestModifiedTimestamp は指定sourceのチェックインのうち最大のmodified_timestampを返す。
	// 該当レコードが存在しない場合はfalseを返す。
	NewestModifiedTimestamp(ctx context.Context, source model.Source) (int64, bool, error)

	// Upsert はrecord_nameをキーにチェックインを一括で挿入または全列置換する。
	Upsert(ctx context.Context, checkIns []model.CheckIn) error

	// ListActiveRecordNamesByChargepoints は指定充電スポット群に属する
	// 未削除チェックインのrecord_nameを返す。sourceで絞り込む。
	ListActiveRecordNamesByChargepoints(ctx context.Context, source model.Source, chargepoints []string) ([]string, error)

	// MarkDeleted は指定record_nameのチェックインを論理削除する。更新件数を返す。
	MarkDeleted(ctx context.Context, recordNames []string) (int64, error)

	// DeleteAll は全チェックインを物理削除する。
	DeleteAll(ctx context.Context) error

	// FindByRecordName はrecord_nameでチェックインを取得する。見つからない場合はnilを返す。
	FindByRecordName(ctx context.Context, recordName string) (*model.CheckIn, error)
}

// UserRepository はCloudKitユーザーの永続化インターフェース。
type UserRepository interface {
	// Upsert はrecord_nameをキーにユーザーを一括で挿入または全列置換する。
	Upsert(ctx context.Context, users []model.User) error

	// DeleteAll は全ユーザーを物理削除する。
	DeleteAll(ctx context.Context) error

	// FindByRecordName はrecord_nameでユーザーを取得する。見つからない場合はnilを返す。
	FindByRecordName(ctx context.Context, recordName string) (*model.User, error)
}
