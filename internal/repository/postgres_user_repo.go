package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/chargesync/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したCloudKitユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

var _ UserRepository = (*PostgresUserRepo)(nil)

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const upsertUserSQL = `
INSERT INTO ck_users (
    record_name, record_change_tag,
    created_timestamp, created_user_record_name,
    modified_timestamp, modified_user_record_name,
    first_name, last_name, nickname, fields, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (record_name) DO UPDATE SET
    record_change_tag = EXCLUDED.record_change_tag,
    created_timestamp = EXCLUDED.created_timestamp,
    created_user_record_name = EXCLUDED.created_user_record_name,
    modified_timestamp = EXCLUDED.modified_timestamp,
    modified_user_record_name = EXCLUDED.modified_user_record_name,
    first_name = EXCLUDED.first_name,
    last_name = EXCLUDED.last_name,
    nickname = EXCLUDED.nickname,
    fields = EXCLUDED.fields,
    updated_at = EXCLUDED.updated_at`

// Upsert はユーザーを1トランザクションで一括UPSERTする。
func (r *PostgresUserRepo) Upsert(ctx context.Context, users []model.User) error {
	if len(users) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertUserSQL)
	if err != nil {
		return fmt.Errorf("ユーザーUPSERTの準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range users {
		u := &users[i]
		fields := []byte(u.Fields)
		if len(fields) == 0 {
			fields = []byte("{}")
		}
		_, err := stmt.ExecContext(ctx,
			u.RecordName, u.RecordChangeTag,
			u.Created.Timestamp, u.Created.UserRecordName,
			u.Modified.Timestamp, u.Modified.UserRecordName,
			toNullString(u.FirstName), toNullString(u.LastName), toNullString(u.Nickname),
			string(fields), now,
		)
		if err != nil {
			return fmt.Errorf("ユーザー %s のUPSERTに失敗しました: %w", u.RecordName, err)
		}
		u.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// DeleteAll は全ユーザーを削除する。
func (r *PostgresUserRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ck_users`); err != nil {
		return fmt.Errorf("ユーザーの全削除に失敗しました: %w", err)
	}
	return nil
}

// FindByRecordName はrecord_nameでユーザーを取得する。
func (r *PostgresUserRepo) FindByRecordName(ctx context.Context, recordName string) (*model.User, error) {
	u := &model.User{}
	var firstName, lastName, nickname sql.NullString
	var fields []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT record_name, record_change_tag,
		        created_timestamp, created_user_record_name,
		        modified_timestamp, modified_user_record_name,
		        first_name, last_name, nickname, fields, updated_at
		 FROM ck_users WHERE record_name = $1`,
		recordName,
	).Scan(
		&u.RecordName, &u.RecordChangeTag,
		&u.Created.Timestamp, &u.Created.UserRecordName,
		&u.Modified.Timestamp, &u.Modified.UserRecordName,
		&firstName, &lastName, &nickname, &fields, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	u.FirstName = fromNullString(firstName)
	u.LastName = fromNullString(lastName)
	u.Nickname = fromNullString(nickname)
	u.Fields = fields
	return u, nil
}
