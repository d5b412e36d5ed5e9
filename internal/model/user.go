package model

import (
	"encoding/json"
	"time"
)

// User はCloudKitのユーザーレコードから派生したユーザー情報を表す。
// RecordNameはCloudKitのユーザー識別子。表示用属性以外の内容は解釈しない。
type User struct {
	RecordName      string
	RecordChangeTag string
	Created         Timestamp
	Modified        Timestamp
	FirstName       *string
	LastName        *string
	Nickname        *string
	Fields          json.RawMessage // 未解釈のフィールドをそのまま保持する
	UpdatedAt       time.Time
}
