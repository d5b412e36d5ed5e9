package goingelectric

import (
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/chargesync/internal/cloudkit"
	"github.com/hitoshi/chargesync/internal/model"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestConverter() *Converter {
	c := NewConverter()
	c.now = func() time.Time { return fixedNow }
	return c
}

func reasonPtr(r model.Reason) *model.Reason { return &r }

func mustString(t *testing.T, fields cloudkit.Fields, name string) string {
	t.Helper()
	f, ok := fields.Lookup(name)
	if !ok {
		t.Fatalf("field %q missing", name)
	}
	s, err := f.String()
	if err != nil {
		t.Fatalf("field %q: %v", name, err)
	}
	return s
}

func mustInt(t *testing.T, fields cloudkit.Fields, name string) int64 {
	t.Helper()
	f, ok := fields.Lookup(name)
	if !ok {
		t.Fatalf("field %q missing", name)
	}
	n, err := f.Int64()
	if err != nil {
		t.Fatalf("field %q: %v", name, err)
	}
	return n
}

func TestCheckInFromLadelog(t *testing.T) {
	c := newTestConverter()
	modified := time.Date(2024, 5, 9, 8, 30, 0, 0, time.UTC)

	record, err := c.CheckInFromLadelog(Ladelog{
		Chargepoint: "cp-42",
		Location:    GeoJSON{Type: "Point", Coordinates: []float64{48.13, 11.57}},
		Modified:    modified,
		Comment:     "S&auml;ule <Typ2> defekt",
		IsFault:     true,
	})
	if err != nil {
		t.Fatalf("CheckInFromLadelog error = %v", err)
	}

	if record.RecordType != "CheckIns" {
		t.Errorf("RecordType = %q", record.RecordType)
	}
	if got := mustString(t, record.Fields, "source"); got != "goingelectric" {
		t.Errorf("source = %q", got)
	}
	if got := mustString(t, record.Fields, "comment"); got != "Säule <Typ2> defekt" {
		t.Errorf("comment = %q", got)
	}
	if got := mustInt(t, record.Fields, "reason"); got != int64(model.ReasonEquipmentProblem) {
		t.Errorf("reason = %d, want 100", got)
	}
	if got := mustInt(t, record.Fields, "timestamp"); got != modified.UnixMilli() {
		t.Errorf("timestamp = %d", got)
	}

	ref, err := record.Fields["chargepoint"].Reference()
	if err != nil {
		t.Fatalf("chargepoint: %v", err)
	}
	if ref.RecordName != "cp-42" || ref.Action != cloudkit.ActionDeleteSelf {
		t.Errorf("chargepoint = %+v", ref)
	}

	loc, err := record.Fields["location"].Location()
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if loc.Latitude != 48.13 || loc.Longitude != 11.57 {
		t.Errorf("location = %+v", loc)
	}
}

// 変換結果はチェックインの正規化処理でそのまま読み戻せることを検証
func TestCheckInFromLadelog_OKReason(t *testing.T) {
	record, err := newTestConverter().CheckInFromLadelog(Ladelog{
		Chargepoint: "cp-1",
		Location:    GeoJSON{Coordinates: []float64{1, 2}},
		Modified:    fixedNow,
	})
	if err != nil {
		t.Fatalf("CheckInFromLadelog error = %v", err)
	}
	if got := mustInt(t, record.Fields, "reason"); got != int64(model.ReasonOK) {
		t.Errorf("reason = %d, want 10", got)
	}
}

func TestCheckInFromLadelog_InvalidLocation(t *testing.T) {
	_, err := newTestConverter().CheckInFromLadelog(Ladelog{
		Chargepoint: "cp-1",
		Location:    GeoJSON{Coordinates: []float64{1}},
	})
	if err == nil {
		t.Fatal("expected error for short coordinates")
	}
}

func TestNextReason(t *testing.T) {
	recent := fixedNow.Add(-time.Hour)
	old := fixedNow.Add(-4 * 24 * time.Hour)

	tests := []struct {
		name     string
		previous *model.Reason
		current  model.Reason
		event    time.Time
		want     model.Reason
	}{
		{"初回の故障は新規故障", nil, model.ReasonEquipmentProblem, recent, model.ReasonEquipmentProblemNew},
		{"初回のokはそのまま", nil, model.ReasonOK, recent, model.ReasonOK},
		{"故障からokは復旧", reasonPtr(model.ReasonEquipmentProblem), model.ReasonOK, recent, model.ReasonRecovery},
		{"okから故障は新規故障", reasonPtr(model.ReasonOK), model.ReasonEquipmentProblem, recent, model.ReasonEquipmentProblemNew},
		{"okが続く場合はそのまま", reasonPtr(model.ReasonOK), model.ReasonOK, recent, model.ReasonOK},
		{"故障が続く場合はそのまま", reasonPtr(model.ReasonEquipmentProblem), model.ReasonEquipmentProblem, recent, model.ReasonEquipmentProblem},
		{"3日より古いイベントは昇格しない", reasonPtr(model.ReasonEquipmentProblem), model.ReasonOK, old, model.ReasonOK},
		{"ちょうど3日前は昇格する", reasonPtr(model.ReasonEquipmentProblem), model.ReasonOK, fixedNow.Add(-promotionWindow), model.ReasonRecovery},
		{"昇格先の無いreason", reasonPtr(model.ReasonOK), model.ReasonNotFound, recent, model.ReasonNotFound},
		{"非対応の初回報告", nil, model.ReasonNotCompatible, recent, model.ReasonNotCompatibleNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextReason(tt.previous, tt.current, tt.event, fixedNow); got != tt.want {
				t.Errorf("NextReason() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReasonDescription(t *testing.T) {
	if got := ReasonDescription(model.ReasonOK); got != "Charging successful" {
		t.Errorf("ReasonDescription(ok) = %q", got)
	}
	if got := ReasonDescription(model.Reason(999)); got != "Check-in reason 999" {
		t.Errorf("ReasonDescription(999) = %q", got)
	}
}

func TestChargepointFromLocation(t *testing.T) {
	c := newTestConverter()
	loc := ChargeLocation{
		RecordName:  "cp-42",
		GeID:        4711,
		Coordinates: GeoJSON{Coordinates: []float64{48.1, 11.5}},
		Name:        "Rathaus &amp; Markt <Nord>",
		URL:         "//www.goingelectric.de/stromtankstellen/4711/",
	}
	checkIn, err := c.CheckInFromLadelog(Ladelog{
		Chargepoint: "cp-42",
		Location:    loc.Coordinates,
		Modified:    fixedNow.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("CheckInFromLadelog error = %v", err)
	}
	last, err := c.CheckInFromLadelog(Ladelog{
		Chargepoint: "cp-42",
		Location:    loc.Coordinates,
		Modified:    fixedNow.Add(-48 * time.Hour),
		IsFault:     true,
	})
	if err != nil {
		t.Fatalf("CheckInFromLadelog error = %v", err)
	}

	record, err := c.ChargepointFromLocation(loc, checkIn, &last)
	if err != nil {
		t.Fatalf("ChargepointFromLocation error = %v", err)
	}

	if record.RecordName != "cp-42" || record.RecordType != "ChargePoints" {
		t.Errorf("identity = %q/%q", record.RecordName, record.RecordType)
	}
	if got := mustInt(t, record.Fields, "chargePointHash"); got != 4711 {
		t.Errorf("chargePointHash = %d", got)
	}
	if got := mustString(t, record.Fields, "name"); got != "Rathaus & Markt <Nord>" {
		t.Errorf("name = %q", got)
	}
	if got := mustString(t, record.Fields, "url"); got != "http://www.goingelectric.de/stromtankstellen/4711/" {
		t.Errorf("url = %q", got)
	}
	if got := mustInt(t, record.Fields, "reason"); got != int64(model.ReasonRecovery) {
		t.Errorf("reason = %d, want recovery", got)
	}
	if got := mustString(t, record.Fields, "reasonDescription"); got != "Charging successful" {
		t.Errorf("reasonDescription = %q", got)
	}
	if got := mustInt(t, record.Fields, "timestamp"); got != fixedNow.Add(-time.Hour).UnixMilli() {
		t.Errorf("timestamp = %d", got)
	}
}

func TestChargepointFromLocation_MissingReason(t *testing.T) {
	c := newTestConverter()
	checkIn := cloudkit.Record{RecordName: "x", Fields: cloudkit.Fields{"timestamp": cloudkit.TimestampField(fixedNow)}}
	_, err := c.ChargepointFromLocation(ChargeLocation{Coordinates: GeoJSON{Coordinates: []float64{1, 2}}}, checkIn, nil)
	if !errors.Is(err, model.ErrMalformedRecord) {
		t.Errorf("error = %v, want ErrMalformedRecord", err)
	}
}
