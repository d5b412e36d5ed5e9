package goingelectric

import (
	"fmt"
	"time"

	"github.com/hitoshi/chargesync/internal/cloudkit"
	"github.com/hitoshi/chargesync/internal/model"
)

// promotionWindow はreasonを「新規」「復旧」に昇格させる対象となるチェックインの鮮度。
const promotionWindow = 3 * 24 * time.Hour

// ChargeLocation はGoingElectricの充電スポット情報。
type ChargeLocation struct {
	RecordName  string  `json:"recordName"`
	GeID        int64   `json:"ge_id"`
	Coordinates GeoJSON `json:"coordinates"`
	Name        string  `json:"name"`
	URL         string  `json:"url"` // スキームなし（//www.goingelectric.de/...）
}

// promotions は状態が変化したときの昇格先reason。
// 表に無いreasonは昇格しない。
var promotions = map[model.Reason]model.Reason{
	model.ReasonOK:                  model.ReasonRecovery,
	model.ReasonEquipmentProblem:    model.ReasonEquipmentProblemNew,
	model.ReasonNotCompatible:       model.ReasonNotCompatibleNew,
	model.ReasonNoChargingEquipment: model.ReasonNoChargingEquipmentNew,
}

// reasonDescriptions はreasonの説明文（非ローカライズ）。
var reasonDescriptions = map[model.Reason]string{
	model.ReasonOK:                     "Charging successful",
	model.ReasonRecovery:               "Charging successful again after a fault",
	model.ReasonEquipmentProblem:       "Equipment problem",
	model.ReasonEquipmentProblemNew:    "New equipment problem",
	model.ReasonNotCompatible:          "Not compatible",
	model.ReasonNotCompatibleNew:       "Newly reported as not compatible",
	model.ReasonNoChargingEquipment:    "No charging equipment",
	model.ReasonNoChargingEquipmentNew: "Newly reported as having no charging equipment",
	model.ReasonNotFound:               "Charge point not found",
	model.ReasonDuplicate:              "Duplicate charge point",
	model.ReasonPositive:               "Positive feedback",
	model.ReasonNegative:               "Negative feedback",
}

// ReasonDescription はreasonの説明文を返す。未定義のreasonは汎用の説明文になる。
func ReasonDescription(reason model.Reason) string {
	if d, ok := reasonDescriptions[reason]; ok {
		return d
	}
	return fmt.Sprintf("Check-in reason %d", int(reason))
}

// NextReason はチェックインのreasonを、直前のチェックインとの関係から決定する。
//
// 直前のチェックインが無く今回が故障系の場合、または直前と今回でreasonが異なる場合は
// 昇格先（ok→recovery、故障→新規故障）に置き換える。
// ただしイベントがnowから3日より古い場合は昇格しない。
func NextReason(previous *model.Reason, current model.Reason, eventTime, now time.Time) model.Reason {
	promoted, ok := promotions[current]
	if !ok {
		return current
	}

	transition := false
	switch {
	case previous == nil:
		transition = current != model.ReasonOK
	default:
		transition = *previous != current
	}
	if !transition {
		return current
	}

	if eventTime.Before(now.Add(-promotionWindow)) {
		return current
	}
	return promoted
}

// ChargepointFromLocation は充電スポット情報と最新のチェックインから
// ChargePointsレコードを生成する。lastは同じ充電スポットの1つ前のチェックインで、無い場合はnil。
func (c *Converter) ChargepointFromLocation(loc ChargeLocation, checkIn cloudkit.Record, last *cloudkit.Record) (cloudkit.Record, error) {
	current, err := recordReason(checkIn)
	if err != nil {
		return cloudkit.Record{}, err
	}
	var previous *model.Reason
	if last != nil {
		r, err := recordReason(*last)
		if err != nil {
			return cloudkit.Record{}, err
		}
		previous = &r
	}

	tsField, ok := checkIn.Fields.Lookup("timestamp")
	if !ok {
		return cloudkit.Record{}, model.NewMalformedRecordError(checkIn.RecordName, "timestamp")
	}
	eventTime, err := tsField.Time()
	if err != nil {
		return cloudkit.Record{}, fmt.Errorf("チェックインのtimestampが不正です: %w", err)
	}

	point, err := loc.Coordinates.point()
	if err != nil {
		return cloudkit.Record{}, fmt.Errorf("充電スポット %s の位置情報が不正です: %w", loc.RecordName, err)
	}

	reason := NextReason(previous, current, eventTime, c.now())

	return cloudkit.Record{
		RecordName: loc.RecordName,
		RecordType: recordTypeChargepoints,
		Fields: cloudkit.Fields{
			"chargePointHash":   cloudkit.Int64Field(loc.GeID),
			"location":          cloudkit.LocationField(point.Latitude, point.Longitude),
			"timestamp":         tsField,
			"name":              cloudkit.StringField(decodeEntities(loc.Name)),
			"url":               cloudkit.StringField("http:" + loc.URL),
			"reason":            cloudkit.Int64Field(int64(reason)),
			"reasonDescription": cloudkit.StringField(ReasonDescription(current)),
		},
	}, nil
}

func recordReason(record cloudkit.Record) (model.Reason, error) {
	f, ok := record.Fields.Lookup("reason")
	if !ok {
		return 0, model.NewMalformedRecordError(record.RecordName, "reason")
	}
	n, err := f.Int64()
	if err != nil {
		return 0, fmt.Errorf("チェックイン %s のreasonが不正です: %w", record.RecordName, err)
	}
	return model.Reason(n), nil
}
