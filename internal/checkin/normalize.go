package checkin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/chargesync/internal/cloudkit"
	"github.com/hitoshi/chargesync/internal/model"
)

// CheckInsレコードのフィールド名。
const (
	fieldSource      = "source"
	fieldTimestamp   = "timestamp"
	fieldReason      = "reason"
	fieldComment     = "comment"
	fieldPlug        = "plug"
	fieldChargepoint = "chargepoint"
	fieldLocation    = "location"
)

// Usersレコードの表示用フィールド名。
const (
	fieldFirstName = "firstName"
	fieldLastName  = "lastName"
	fieldNickname  = "nickname"
)

// NormalizeCheckIn はCloudKitのCheckInsレコードをローカルのチェックインに変換する。
//
// sourceが無い場合はcloudkitとみなす。timestampが無い場合はUnixエポックになる（検証しない）。
// reason、comment、plug、locationが無い場合はnil。
// chargepoint参照が無いレコードはErrMalformedRecordをラップしたエラーを返す。
func NormalizeCheckIn(record cloudkit.Record) (model.CheckIn, error) {
	c := model.CheckIn{
		RecordName:      record.RecordName,
		RecordChangeTag: record.RecordChangeTag,
		Created:         toTimestamp(record.Created),
		Modified:        toTimestamp(record.Modified),
		Deleted:         record.Deleted,
		Source:          model.SourceCloudKit,
		Timestamp:       time.UnixMilli(0),
	}

	fields := record.Fields

	if f, ok := fields.Lookup(fieldSource); ok {
		s, err := f.String()
		if err != nil {
			return model.CheckIn{}, fieldError(record.RecordName, fieldSource, err)
		}
		if s = stripNUL(s); s != "" {
			c.Source = model.Source(s)
		}
	}

	if f, ok := fields.Lookup(fieldTimestamp); ok {
		t, err := f.Time()
		if err != nil {
			return model.CheckIn{}, fieldError(record.RecordName, fieldTimestamp, err)
		}
		c.Timestamp = t
	}

	if f, ok := fields.Lookup(fieldReason); ok {
		n, err := f.Int64()
		if err != nil {
			return model.CheckIn{}, fieldError(record.RecordName, fieldReason, err)
		}
		reason := model.Reason(n)
		c.Reason = &reason
	}

	var err error
	if c.Comment, err = optionalString(fields, record.RecordName, fieldComment); err != nil {
		return model.CheckIn{}, err
	}
	if c.Plug, err = optionalString(fields, record.RecordName, fieldPlug); err != nil {
		return model.CheckIn{}, err
	}

	f, ok := fields.Lookup(fieldChargepoint)
	if !ok {
		return model.CheckIn{}, model.NewMalformedRecordError(record.RecordName, fieldChargepoint)
	}
	ref, err := f.Reference()
	if err != nil {
		return model.CheckIn{}, fieldError(record.RecordName, fieldChargepoint, err)
	}
	if ref.RecordName == "" {
		return model.CheckIn{}, model.NewMalformedRecordError(record.RecordName, fieldChargepoint)
	}
	c.Chargepoint = stripNUL(ref.RecordName)

	if f, ok := fields.Lookup(fieldLocation); ok {
		loc, err := f.Location()
		if err != nil {
			return model.CheckIn{}, fieldError(record.RecordName, fieldLocation, err)
		}
		c.Location = &model.Point{Latitude: loc.Latitude, Longitude: loc.Longitude}
	}

	return c, nil
}

// NormalizeUser はCloudKitのUsersレコードをローカルのユーザーに変換する。
// 表示用属性以外のフィールドは解釈せずにJSONとして保持する。
func NormalizeUser(record cloudkit.Record) (model.User, error) {
	u := model.User{
		RecordName:      record.RecordName,
		RecordChangeTag: record.RecordChangeTag,
		Created:         toTimestamp(record.Created),
		Modified:        toTimestamp(record.Modified),
	}

	var err error
	if u.FirstName, err = optionalString(record.Fields, record.RecordName, fieldFirstName); err != nil {
		return model.User{}, err
	}
	if u.LastName, err = optionalString(record.Fields, record.RecordName, fieldLastName); err != nil {
		return model.User{}, err
	}
	if u.Nickname, err = optionalString(record.Fields, record.RecordName, fieldNickname); err != nil {
		return model.User{}, err
	}

	fields := record.Fields
	if fields == nil {
		fields = cloudkit.Fields{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return model.User{}, fmt.Errorf("ユーザー %s のフィールドのエンコードに失敗しました: %w", record.RecordName, err)
	}
	u.Fields = stripEscapedNUL(raw)

	return u, nil
}

func toTimestamp(ts *cloudkit.Timestamp) model.Timestamp {
	if ts == nil {
		return model.Timestamp{}
	}
	return model.Timestamp{
		Timestamp:      ts.Timestamp,
		UserRecordName: ts.UserRecordName,
		DeviceID:       ts.DeviceID,
	}
}

func optionalString(fields cloudkit.Fields, recordName, name string) (*string, error) {
	f, ok := fields.Lookup(name)
	if !ok {
		return nil, nil
	}
	s, err := f.String()
	if err != nil {
		return nil, fieldError(recordName, name, err)
	}
	s = stripNUL(s)
	return &s, nil
}

// stripNUL はPostgresのTEXTに格納できないNUL文字を取り除く。
func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// stripEscapedNUL はJSON中の\u0000エスケープを取り除く。JSONBは\u0000を受け付けない。
// エスケープされたバックスラッシュに続く"u0000"はそのまま残す。
func stripEscapedNUL(raw []byte) []byte {
	if !bytes.Contains(raw, []byte(`\u0000`)) {
		return raw
	}
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			out = append(out, raw[i])
			continue
		}
		if bytes.HasPrefix(raw[i:], []byte(`\u0000`)) {
			i += len(`\u0000`) - 1
			continue
		}
		out = append(out, raw[i], raw[i+1])
		i++
	}
	return out
}

func fieldError(recordName, name string, err error) error {
	return fmt.Errorf("%w: %s: field %q: %v", model.ErrMalformedRecord, recordName, name, err)
}
