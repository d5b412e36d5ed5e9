package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/chargesync/internal/model"
)

// PostgresCheckInRepo はPostgreSQLを使用したチェックインリポジトリ。
type PostgresCheckInRepo struct {
	db *sql.DB
}

var _ CheckInRepository = (*PostgresCheckInRepo)(nil)

// NewPostgresCheckInRepo はPostgresCheckInRepoを生成する。
func NewPostgresCheckInRepo(db *sql.DB) *PostgresCheckInRepo {
	return &PostgresCheckInRepo{db: db}
}

// NewestModifiedTimestamp は指定sourceの最大modified_timestampを返す。
func (r *PostgresCheckInRepo) NewestModifiedTimestamp(ctx context.Context, source model.Source) (int64, bool, error) {
	var newest sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT max(modified_timestamp) FROM checkins WHERE source = $1`,
		string(source),
	).Scan(&newest)
	if err != nil {
		return 0, false, fmt.Errorf("最新更新日時の取得に失敗しました: %w", err)
	}
	if !newest.Valid {
		return 0, false, nil
	}
	return newest.Int64, true, nil
}

const upsertCheckInSQL = `
INSERT INTO checkins (
    record_name, record_change_tag,
    created_timestamp, created_user_record_name, created_device_id,
    modified_timestamp, modified_user_record_name, modified_device_id,
    deleted, source, event_timestamp, reason, comment, plug,
    chargepoint, latitude, longitude, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (record_name) DO UPDATE SET
    record_change_tag = EXCLUDED.record_change_tag,
    created_timestamp = EXCLUDED.created_timestamp,
    created_user_record_name = EXCLUDED.created_user_record_name,
    created_device_id = EXCLUDED.created_device_id,
    modified_timestamp = EXCLUDED.modified_timestamp,
    modified_user_record_name = EXCLUDED.modified_user_record_name,
    modified_device_id = EXCLUDED.modified_device_id,
    deleted = EXCLUDED.deleted,
    source = EXCLUDED.source,
    event_timestamp = EXCLUDED.event_timestamp,
    reason = EXCLUDED.reason,
    comment = EXCLUDED.comment,
    plug = EXCLUDED.plug,
    chargepoint = EXCLUDED.chargepoint,
    latitude = EXCLUDED.latitude,
    longitude = EXCLUDED.longitude,
    updated_at = EXCLUDED.updated_at`

// Upsert はチェックインを1トランザクションで一括UPSERTする。
// 既存行は全列が置き換えられるため、同じ入力を繰り返し適用しても結果は変わらない。
func (r *PostgresCheckInRepo) Upsert(ctx context.Context, checkIns []model.CheckIn) error {
	if len(checkIns) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertCheckInSQL)
	if err != nil {
		return fmt.Errorf("チェックインUPSERTの準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range checkIns {
		c := &checkIns[i]
		var reason sql.NullInt64
		if c.Reason != nil {
			reason = sql.NullInt64{Int64: int64(*c.Reason), Valid: true}
		}
		var lat, lon sql.NullFloat64
		if c.Location != nil {
			lat = sql.NullFloat64{Float64: c.Location.Latitude, Valid: true}
			lon = sql.NullFloat64{Float64: c.Location.Longitude, Valid: true}
		}

		_, err := stmt.ExecContext(ctx,
			c.RecordName, c.RecordChangeTag,
			c.Created.Timestamp, c.Created.UserRecordName, c.Created.DeviceID,
			c.Modified.Timestamp, c.Modified.UserRecordName, c.Modified.DeviceID,
			c.Deleted, string(c.Source), c.Timestamp, reason,
			toNullString(c.Comment), toNullString(c.Plug),
			c.Chargepoint, lat, lon, now,
		)
		if err != nil {
			return fmt.Errorf("チェックイン %s のUPSERTに失敗しました: %w", c.RecordName, err)
		}
		c.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListActiveRecordNamesByChargepoints は指定充電スポット群の未削除チェックインを返す。
func (r *PostgresCheckInRepo) ListActiveRecordNamesByChargepoints(ctx context.Context, source model.Source, chargepoints []string) ([]string, error) {
	if len(chargepoints) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT record_name FROM checkins
		 WHERE chargepoint = ANY($1) AND deleted = false AND source = $2
		 ORDER BY record_name`,
		pq.Array(chargepoints), string(source),
	)
	if err != nil {
		return nil, fmt.Errorf("充電スポット別チェックインの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("チェックイン行のスキャンに失敗しました: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チェックイン行の走査に失敗しました: %w", err)
	}
	return names, nil
}

// MarkDeleted は指定チェックインを1回のUPDATEで論理削除する。
func (r *PostgresCheckInRepo) MarkDeleted(ctx context.Context, recordNames []string) (int64, error) {
	if len(recordNames) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE checkins SET deleted = true, updated_at = now() WHERE record_name = ANY($1)`,
		pq.Array(recordNames),
	)
	if err != nil {
		return 0, fmt.Errorf("チェックインの論理削除に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("論理削除件数の取得に失敗しました: %w", err)
	}
	return affected, nil
}

// DeleteAll は全チェックインを削除する。
func (r *PostgresCheckInRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM checkins`); err != nil {
		return fmt.Errorf("チェックインの全削除に失敗しました: %w", err)
	}
	return nil
}

// FindByRecordName はrecord_nameでチェックインを取得する。
func (r *PostgresCheckInRepo) FindByRecordName(ctx context.Context, recordName string) (*model.CheckIn, error) {
	c := &model.CheckIn{}
	var source string
	var reason sql.NullInt64
	var comment, plug sql.NullString
	var lat, lon sql.NullFloat64

	err := r.db.QueryRowContext(ctx,
		`SELECT record_name, record_change_tag,
		        created_timestamp, created_user_record_name, created_device_id,
		        modified_timestamp, modified_user_record_name, modified_device_id,
		        deleted, source, event_timestamp, reason, comment, plug,
		        chargepoint, latitude, longitude, updated_at
		 FROM checkins WHERE record_name = $1`,
		recordName,
	).Scan(
		&c.RecordName, &c.RecordChangeTag,
		&c.Created.Timestamp, &c.Created.UserRecordName, &c.Created.DeviceID,
		&c.Modified.Timestamp, &c.Modified.UserRecordName, &c.Modified.DeviceID,
		&c.Deleted, &source, &c.Timestamp, &reason, &comment, &plug,
		&c.Chargepoint, &lat, &lon, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チェックインの取得に失敗しました: %w", err)
	}

	c.Source = model.Source(source)
	if reason.Valid {
		rv := model.Reason(reason.Int64)
		c.Reason = &rv
	}
	c.Comment = fromNullString(comment)
	c.Plug = fromNullString(plug)
	if lat.Valid && lon.Valid {
		c.Location = &model.Point{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	return c, nil
}

// toNullString はnilをSQL NULLに変換する。
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString はSQL NULLをnilに変換する。
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
