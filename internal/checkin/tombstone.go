package checkin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/chargesync/internal/cloudkit"
	"github.com/hitoshi/chargesync/internal/model"
)

// syncDeleted はウォーターマーク以降に更新された充電スポットを親に持つチェックインについて、
// CloudKitに存在しなくなったものを論理削除する。
//
// 子チェックインの削除時には親の更新日時が進むことを前提とする。
// 更新されていない親の下で削除されたチェックインは検出できない。
func (m *SyncManager) syncDeleted(ctx context.Context, watermark int64) error {
	parents, err := m.changedChargepoints(ctx, watermark)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		m.logger.Debug("更新された充電スポットが無いため削除推定をスキップします",
			slog.Int64("watermark", watermark),
		)
		return nil
	}

	remote, err := m.remoteCheckInNames(ctx, parents)
	if err != nil {
		return err
	}

	local, err := m.checkIns.ListActiveRecordNamesByChargepoints(ctx, model.SourceCloudKit, parents)
	if err != nil {
		return fmt.Errorf("ローカルのチェックイン取得に失敗しました: %w", err)
	}

	candidates := difference(local, remote)
	if len(candidates) == 0 {
		return nil
	}

	affected, err := m.checkIns.MarkDeleted(ctx, candidates)
	if err != nil {
		return fmt.Errorf("チェックインの論理削除に失敗しました: %w", err)
	}

	m.observer.RecordTombstones(int(affected))
	m.logger.Info("チェックインを論理削除しました",
		slog.Int("count", len(candidates)),
		slog.Any("record_names", candidates),
	)
	return nil
}

// changedChargepoints は___modTimeがウォーターマークより新しい充電スポットのrecordNameを返す。
func (m *SyncManager) changedChargepoints(ctx context.Context, watermark int64) ([]string, error) {
	query := cloudkit.Query{
		RecordType: RecordTypeChargepoints,
		FilterBy: []cloudkit.Filter{
			cloudkit.GreaterThan(cloudkit.FieldModTime, cloudkit.TimestampMillisField(watermark)),
		},
	}

	names, err := m.collectRecordNames(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("更新された充電スポットの取得に失敗しました: %w", err)
	}
	return names, nil
}

// remoteCheckInNames はparentsのいずれかを参照するCloudKit上のチェックインのrecordNameを返す。
func (m *SyncManager) remoteCheckInNames(ctx context.Context, parents []string) ([]string, error) {
	query := cloudkit.Query{
		RecordType: RecordTypeCheckIns,
		FilterBy: []cloudkit.Filter{
			cloudkit.In(fieldChargepoint, cloudkit.ReferenceListField(parents, cloudkit.ActionNone)),
		},
	}

	names, err := m.collectRecordNames(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("充電スポット別チェックインの取得に失敗しました: %w", err)
	}
	return names, nil
}

func (m *SyncManager) collectRecordNames(ctx context.Context, query cloudkit.Query) ([]string, error) {
	var names []string
	err := m.remote.Query(ctx, query, cloudkit.RecordNamesOnly(),
		func(_ context.Context, records []cloudkit.Record) error {
			for _, record := range records {
				names = append(names, record.RecordName)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return names, nil
}

// difference はlocalからremoteに含まれる要素を除いたものをlocalの順序で返す。
func difference(local, remote []string) []string {
	present := make(map[string]struct{}, len(remote))
	for _, name := range remote {
		present[name] = struct{}{}
	}

	var missing []string
	seen := make(map[string]struct{}, len(local))
	for _, name := range local {
		if _, ok := present[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		missing = append(missing, name)
	}
	return missing
}
