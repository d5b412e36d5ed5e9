package cloudkit

import (
	"encoding/json"
	"fmt"
	"time"
)

// フィールド型。CloudKit Web Servicesのtype値に対応する。
const (
	TypeString        = "STRING"
	TypeInt64         = "INT64"
	TypeDouble        = "DOUBLE"
	TypeTimestamp     = "TIMESTAMP"
	TypeReference     = "REFERENCE"
	TypeLocation      = "LOCATION"
	TypeStringList    = "STRING_LIST"
	TypeReferenceList = "REFERENCE_LIST"
)

// 参照のaction値。
const (
	ActionNone       = "NONE"
	ActionDeleteSelf = "DELETE_SELF"
)

// Timestamp はレコードの作成・更新メタデータ。Timestampはエポックミリ秒。
type Timestamp struct {
	Timestamp      int64  `json:"timestamp"`
	UserRecordName string `json:"userRecordName,omitempty"`
	DeviceID       string `json:"deviceID,omitempty"`
}

// Record はCloudKitのレコードを表す。
// lookupの結果では、取得に失敗したレコードはServerErrorCodeが設定される。
type Record struct {
	RecordName      string     `json:"recordName"`
	RecordType      string     `json:"recordType,omitempty"`
	RecordChangeTag string     `json:"recordChangeTag,omitempty"`
	Fields          Fields     `json:"fields,omitempty"`
	Created         *Timestamp `json:"created,omitempty"`
	Modified        *Timestamp `json:"modified,omitempty"`
	Deleted         bool       `json:"deleted,omitempty"`
	ServerErrorCode string     `json:"serverErrorCode,omitempty"`
	Reason          string     `json:"reason,omitempty"`
}

// Fields はフィールド名から値へのマッピング。
type Fields map[string]Field

// Lookup は指定名のフィールドを返す。
// キーが存在しない場合、または値がnullの場合はfalseを返す。
func (f Fields) Lookup(name string) (Field, bool) {
	field, ok := f[name]
	if !ok || len(field.Value) == 0 || string(field.Value) == "null" {
		return Field{}, false
	}
	return field, true
}

// Field は型付きのフィールド値。ValueはJSONのまま保持し、アクセサで解釈する。
type Field struct {
	Value json.RawMessage `json:"value"`
	Type  string          `json:"type,omitempty"`
}

// Reference は他レコードへの参照を表す。
type Reference struct {
	RecordName string `json:"recordName"`
	Action     string `json:"action,omitempty"`
}

// Location は位置情報フィールドの値を表す。
type Location struct {
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	HorizontalAccuracy float64 `json:"horizontalAccuracy,omitempty"`
	VerticalAccuracy   float64 `json:"verticalAccuracy,omitempty"`
	Altitude           float64 `json:"altitude,omitempty"`
	Speed              float64 `json:"speed,omitempty"`
	Course             float64 `json:"course,omitempty"`
	Timestamp          int64   `json:"timestamp,omitempty"`
}

// String は文字列として値を返す。
func (f Field) String() (string, error) {
	var s string
	if err := json.Unmarshal(f.Value, &s); err != nil {
		return "", fmt.Errorf("failed to decode string field: %w", err)
	}
	return s, nil
}

// Int64 は整数として値を返す。小数表記の数値は切り捨てる。
func (f Field) Int64() (int64, error) {
	var n json.Number
	if err := json.Unmarshal(f.Value, &n); err != nil {
		return 0, fmt.Errorf("failed to decode int64 field: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	v, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("failed to decode int64 field: %w", err)
	}
	return int64(v), nil
}

// Float64 は浮動小数点数として値を返す。
func (f Field) Float64() (float64, error) {
	var v float64
	if err := json.Unmarshal(f.Value, &v); err != nil {
		return 0, fmt.Errorf("failed to decode double field: %w", err)
	}
	return v, nil
}

// Time はエポックミリ秒の値をtime.Timeとして返す。
func (f Field) Time() (time.Time, error) {
	ms, err := f.Int64()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// Reference は参照として値を返す。
func (f Field) Reference() (Reference, error) {
	var ref Reference
	if err := json.Unmarshal(f.Value, &ref); err != nil {
		return Reference{}, fmt.Errorf("failed to decode reference field: %w", err)
	}
	return ref, nil
}

// Location は位置情報として値を返す。
func (f Field) Location() (Location, error) {
	var loc Location
	if err := json.Unmarshal(f.Value, &loc); err != nil {
		return Location{}, fmt.Errorf("failed to decode location field: %w", err)
	}
	return loc, nil
}

// StringField は文字列フィールドを生成する。
func StringField(s string) Field {
	return Field{Value: marshalValue(s), Type: TypeString}
}

// Int64Field は整数フィールドを生成する。
func Int64Field(n int64) Field {
	return Field{Value: marshalValue(n), Type: TypeInt64}
}

// TimestampField はtime.Timeをエポックミリ秒のタイムスタンプフィールドに変換する。
func TimestampField(t time.Time) Field {
	return TimestampMillisField(t.UnixMilli())
}

// TimestampMillisField はエポックミリ秒からタイムスタンプフィールドを生成する。
func TimestampMillisField(ms int64) Field {
	return Field{Value: marshalValue(ms), Type: TypeTimestamp}
}

// ReferenceField は参照フィールドを生成する。
func ReferenceField(recordName, action string) Field {
	return Field{Value: marshalValue(Reference{RecordName: recordName, Action: action}), Type: TypeReference}
}

// LocationField は位置情報フィールドを生成する。
func LocationField(latitude, longitude float64) Field {
	return Field{Value: marshalValue(Location{Latitude: latitude, Longitude: longitude}), Type: TypeLocation}
}

// StringListField は文字列リストフィールドを生成する。
func StringListField(values []string) Field {
	if values == nil {
		values = []string{}
	}
	return Field{Value: marshalValue(values), Type: TypeStringList}
}

// ReferenceListField は参照リストフィールドを生成する。
func ReferenceListField(recordNames []string, action string) Field {
	refs := make([]Reference, 0, len(recordNames))
	for _, name := range recordNames {
		refs = append(refs, Reference{RecordName: name, Action: action})
	}
	return Field{Value: marshalValue(refs), Type: TypeReferenceList}
}

// marshalValue はフィールド値をJSONに変換する。
// 呼び出し元が渡すのは文字列・数値・固定構造体のみのため、エラーは発生しない。
func marshalValue(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
