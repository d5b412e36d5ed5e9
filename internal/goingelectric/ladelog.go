// Package goingelectric はGoingElectricのラデログと充電スポット情報を
// CloudKitのレコード形式に変換する。
package goingelectric

import (
	"fmt"
	"time"

	"github.com/hitoshi/chargesync/internal/cloudkit"
	"github.com/hitoshi/chargesync/internal/model"
)

// CloudKitのレコードタイプ。
const (
	recordTypeCheckIns     = "CheckIns"
	recordTypeChargepoints = "ChargePoints"
)

// GeoJSON はGoingElectricが返す位置情報。
// Coordinatesは[緯度, 経度]の順で格納されている。
type GeoJSON struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Ladelog はGoingElectricのラデログ（充電記録）1件を表す。
type Ladelog struct {
	Chargepoint string    `json:"chargepoint"` // 充電スポットのrecordName
	Location    GeoJSON   `json:"location"`
	Modified    time.Time `json:"modified"`
	Comment     string    `json:"comment"`
	IsFault     bool      `json:"isFault"`
}

// Converter はGoingElectricのデータをCloudKitレコードに変換する。
type Converter struct {
	now func() time.Time
}

// NewConverter はConverterを生成する。
func NewConverter() *Converter {
	return &Converter{now: time.Now}
}

// CheckInFromLadelog はラデログをsource=goingelectricのCheckInsレコードに変換する。
// 充電スポットへの参照は親の削除時に連動して削除される（DELETE_SELF）。
func (c *Converter) CheckInFromLadelog(l Ladelog) (cloudkit.Record, error) {
	fields := cloudkit.Fields{
		"source":      cloudkit.StringField(string(model.SourceGoingElectric)),
		"chargepoint": cloudkit.ReferenceField(l.Chargepoint, cloudkit.ActionDeleteSelf),
		"timestamp":   cloudkit.TimestampField(l.Modified),
		"comment":     cloudkit.StringField(decodeEntities(l.Comment)),
		"reason":      cloudkit.Int64Field(int64(ladelogReason(l))),
	}

	loc, err := l.Location.point()
	if err != nil {
		return cloudkit.Record{}, fmt.Errorf("ラデログ %s の位置情報が不正です: %w", l.Chargepoint, err)
	}
	fields["location"] = cloudkit.LocationField(loc.Latitude, loc.Longitude)

	return cloudkit.Record{
		RecordType: recordTypeCheckIns,
		Fields:     fields,
	}, nil
}

func ladelogReason(l Ladelog) model.Reason {
	if l.IsFault {
		return model.ReasonEquipmentProblem
	}
	return model.ReasonOK
}

func (g GeoJSON) point() (model.Point, error) {
	if len(g.Coordinates) < 2 {
		return model.Point{}, fmt.Errorf("coordinates has %d element(s)", len(g.Coordinates))
	}
	return model.Point{Latitude: g.Coordinates[0], Longitude: g.Coordinates[1]}, nil
}
