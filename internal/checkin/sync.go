// Package checkin はCloudKitからローカルストアへのチェックインとユーザーの差分同期を提供する。
//
// 1回の同期パスは次の順で進む。
//  1. ウォーターマーク（cloudkit由来チェックインの最新modified.timestamp）を取得する
//  2. ウォーターマーク以降に更新されたCheckInsを昇順に取得し、ページ単位で正規化・UPSERTする
//  3. purgeでなくウォーターマークが存在した場合、削除推定（tombstone）を行う
//  4. 更新されたチェックインのmodified.userRecordNameからユーザーを取得・UPSERTする
package checkin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/chargesync/internal/cloudkit"
	"github.com/hitoshi/chargesync/internal/model"
	"github.com/hitoshi/chargesync/internal/repository"
)

// CloudKitのレコードタイプ。
const (
	RecordTypeCheckIns     = "CheckIns"
	RecordTypeChargepoints = "Chargepoints"
	RecordTypeUsers        = "Users"
)

// RemoteStore はCloudKitのクエリとlookupを抽象化する。*cloudkit.Clientが実装する。
type RemoteStore interface {
	Query(ctx context.Context, query cloudkit.Query, opts cloudkit.QueryOptions, fn cloudkit.BatchFunc) error
	Lookup(ctx context.Context, recordNames []string, opts cloudkit.LookupOptions, fn cloudkit.BatchFunc) error
}

// Observer はバッチ処理の進捗を受け取る。
type Observer interface {
	// RecordBatch はrecordTypeのレコードをcount件処理したことを通知する。
	RecordBatch(recordType string, count int)
	// RecordTombstones はcount件のチェックインを論理削除したことを通知する。
	RecordTombstones(count int)
	// RecordWatermark は同期パス開始時のウォーターマークを通知する。
	RecordWatermark(watermark int64)
}

type nopObserver struct{}

func (nopObserver) RecordBatch(string, int) {}
func (nopObserver) RecordTombstones(int)    {}
func (nopObserver) RecordWatermark(int64)   {}

var _ RemoteStore = (*cloudkit.Client)(nil)

// SyncManager はチェックインとユーザーの同期パスを実行する。
// 同一SyncManagerの同期パスを並行に実行してはならない。
type SyncManager struct {
	remote   RemoteStore
	checkIns repository.CheckInRepository
	users    repository.UserRepository
	observer Observer
	logger   *slog.Logger
}

// NewSyncManager はSyncManagerを生成する。observerがnilの場合は通知を行わない。
func NewSyncManager(
	remote RemoteStore,
	checkIns repository.CheckInRepository,
	users repository.UserRepository,
	observer Observer,
	logger *slog.Logger,
) *SyncManager {
	if observer == nil {
		observer = nopObserver{}
	}
	return &SyncManager{
		remote:   remote,
		checkIns: checkIns,
		users:    users,
		observer: observer,
		logger:   logger,
	}
}

// SyncCheckIns はCloudKitのCheckInsをローカルストアに差分同期し、今回UPSERTしたチェックインを返す。
// purgeがtrueの場合はローカルの全チェックインを削除してから全件を取り込む。
// 途中で失敗した場合、それまでにUPSERT済みのページはロールバックされない。
func (m *SyncManager) SyncCheckIns(ctx context.Context, purge bool) ([]model.CheckIn, error) {
	if purge {
		if err := m.checkIns.DeleteAll(ctx); err != nil {
			return nil, fmt.Errorf("チェックインのpurgeに失敗しました: %w", err)
		}
		m.logger.Info("ローカルのチェックインを全削除しました")
	}

	watermark, hasWatermark, err := m.resolveWatermark(ctx)
	if err != nil {
		return nil, err
	}
	m.observer.RecordWatermark(watermark)

	var updated []model.CheckIn
	err = m.remote.Query(ctx, deltaQuery(watermark, hasWatermark), cloudkit.QueryOptions{},
		func(ctx context.Context, records []cloudkit.Record) error {
			batch := make([]model.CheckIn, 0, len(records))
			for _, record := range records {
				c, err := NormalizeCheckIn(record)
				if err != nil {
					return err
				}
				batch = append(batch, c)
			}
			if err := m.checkIns.Upsert(ctx, batch); err != nil {
				return err
			}
			updated = append(updated, batch...)

			m.observer.RecordBatch(RecordTypeCheckIns, len(batch))
			m.logger.Info("CloudKitチェックインを同期しました",
				slog.String("record_type", RecordTypeCheckIns),
				slog.Int("count", len(batch)),
			)
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("チェックインの差分取得に失敗しました: %w", err)
	}

	if !purge && hasWatermark {
		if err := m.syncDeleted(ctx, watermark); err != nil {
			return nil, err
		}
	}

	return updated, nil
}

// resolveWatermark はcloudkit由来チェックインの最新modified.timestampを返す。
// 該当が無い場合、または0の場合はウォーターマーク無しとして扱う。
func (m *SyncManager) resolveWatermark(ctx context.Context) (int64, bool, error) {
	watermark, ok, err := m.checkIns.NewestModifiedTimestamp(ctx, model.SourceCloudKit)
	if err != nil {
		return 0, false, fmt.Errorf("ウォーターマークの取得に失敗しました: %w", err)
	}
	if !ok || watermark == 0 {
		return 0, false, nil
	}
	return watermark, true, nil
}

// deltaQuery は差分取得用のCheckInsクエリを生成する。
// ウォーターマークは排他的な下限として扱う。
func deltaQuery(watermark int64, hasWatermark bool) cloudkit.Query {
	nonNative := model.NonNativeSources()
	sources := make([]string, 0, len(nonNative))
	for _, s := range nonNative {
		sources = append(sources, string(s))
	}

	query := cloudkit.Query{
		RecordType: RecordTypeCheckIns,
		FilterBy: []cloudkit.Filter{
			cloudkit.NotIn(fieldSource, cloudkit.StringListField(sources)),
		},
		SortBy: []cloudkit.Sort{
			cloudkit.SortAscending(cloudkit.SystemFieldModifiedTimestamp),
		},
	}
	if hasWatermark {
		query.FilterBy = append(query.FilterBy,
			cloudkit.SystemGreaterThan(cloudkit.SystemFieldModifiedTimestamp, cloudkit.TimestampMillisField(watermark)),
		)
	}
	return query
}

// SyncUsers はcheckInsのmodified.userRecordNameに対応するユーザーをCloudKitから取得してUPSERTする。
// purgeがtrueの場合はローカルの全ユーザーを先に削除する。ユーザーは論理削除しない。
func (m *SyncManager) SyncUsers(ctx context.Context, checkIns []model.CheckIn, purge bool) error {
	if purge {
		if err := m.users.DeleteAll(ctx); err != nil {
			return fmt.Errorf("ユーザーのpurgeに失敗しました: %w", err)
		}
		m.logger.Info("ローカルのユーザーを全削除しました")
	}

	names := distinctUserRecordNames(checkIns)
	if len(names) == 0 {
		return nil
	}

	err := m.remote.Lookup(ctx, names, cloudkit.LookupOptions{},
		func(ctx context.Context, records []cloudkit.Record) error {
			batch := make([]model.User, 0, len(records))
			for _, record := range records {
				if record.ServerErrorCode != "" {
					m.logger.Warn("ユーザーレコードを取得できませんでした",
						slog.String("record_name", record.RecordName),
						slog.String("server_error_code", record.ServerErrorCode),
						slog.String("reason", record.Reason),
					)
					continue
				}
				u, err := NormalizeUser(record)
				if err != nil {
					return err
				}
				batch = append(batch, u)
			}
			if err := m.users.Upsert(ctx, batch); err != nil {
				return err
			}

			m.observer.RecordBatch(RecordTypeUsers, len(batch))
			m.logger.Info("CloudKitユーザーを同期しました",
				slog.String("record_type", RecordTypeUsers),
				slog.Int("count", len(batch)),
			)
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("ユーザーの同期に失敗しました: %w", err)
	}
	return nil
}

// distinctUserRecordNames は最初に出現した順で重複を除いたuserRecordNameを返す。空文字列は除外する。
func distinctUserRecordNames(checkIns []model.CheckIn) []string {
	seen := make(map[string]struct{}, len(checkIns))
	names := make([]string, 0, len(checkIns))
	for _, c := range checkIns {
		name := c.Modified.UserRecordName
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
