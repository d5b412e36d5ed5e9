// Package model はドメインモデルを定義する。
package model

import "time"

// Source はチェックインの取り込み元を表す。
// 同期パスは自身が所有するSourceのレコードのみを更新する。
type Source string

const (
	// SourceCloudKit はCloudKit上で直接作成されたチェックインを表す。
	SourceCloudKit Source = "cloudkit"
	// SourceGoingElectric はGoingElectricのラデログから取り込まれたチェックインを表す。
	SourceGoingElectric Source = "goingelectric"
)

// NonNativeSources はCloudKitネイティブ以外の全Sourceを返す。
// 差分取得クエリのNOT_INフィルタに使用する。
func NonNativeSources() []Source {
	return []Source{SourceGoingElectric}
}

// Timestamp はCloudKitの作成・更新メタデータを表す。
// Timestampはエポックミリ秒。
type Timestamp struct {
	Timestamp      int64
	UserRecordName string
	DeviceID       string
}

// Time はTimestampをtime.Timeに変換する。
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// Point は緯度経度の組を表す。
type Point struct {
	Latitude  float64
	Longitude float64
}

// CheckIn は充電スポットの稼働状況の観測記録を表す。
// RecordNameはCloudKitが採番する一意な識別子で、ローカルストアの主キーとなる。
// 値が存在しない任意フィールドはnilで表す。
type CheckIn struct {
	RecordName      string
	RecordChangeTag string
	Created         Timestamp
	Modified        Timestamp
	Deleted         bool
	Source          Source
	Timestamp       time.Time // イベント発生時刻（Modifiedはストア側の更新時刻）
	Reason          *Reason
	Comment         *string
	Plug            *string
	Chargepoint     string
	Location        *Point
	UpdatedAt       time.Time
}
