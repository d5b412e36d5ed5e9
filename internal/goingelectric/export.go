package goingelectric

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hitoshi/chargesync/internal/cloudkit"
)

// Export は1つの充電スポットとそのラデログをまとめた変換入力。
type Export struct {
	Location ChargeLocation `json:"chargeLocation"`
	Ladelogs []Ladelog      `json:"ladelogs"`
}

// Converted はExportの変換結果。
// CheckInsは古い順に並び、Chargepointは最新のチェックインを反映する。
type Converted struct {
	CheckIns    []cloudkit.Record `json:"checkIns"`
	Chargepoint cloudkit.Record   `json:"chargepoint"`
}

// ConvertExport はラデログをCheckInsレコードに変換し、最新の2件から
// ChargePointsレコードを生成する。ラデログが空の場合はエラーを返す。
func (c *Converter) ConvertExport(e Export) (Converted, error) {
	if len(e.Ladelogs) == 0 {
		return Converted{}, errors.New("ladelogs is empty")
	}

	logs := make([]Ladelog, len(e.Ladelogs))
	copy(logs, e.Ladelogs)
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Modified.Before(logs[j].Modified)
	})

	out := Converted{CheckIns: make([]cloudkit.Record, 0, len(logs))}
	for _, l := range logs {
		if l.Chargepoint == "" {
			l.Chargepoint = e.Location.RecordName
		}
		rec, err := c.CheckInFromLadelog(l)
		if err != nil {
			return Converted{}, err
		}
		out.CheckIns = append(out.CheckIns, rec)
	}

	latest := out.CheckIns[len(out.CheckIns)-1]
	var last *cloudkit.Record
	if n := len(out.CheckIns); n > 1 {
		last = &out.CheckIns[n-2]
	}

	cp, err := c.ChargepointFromLocation(e.Location, latest, last)
	if err != nil {
		return Converted{}, fmt.Errorf("充電スポット %s の変換に失敗しました: %w", e.Location.RecordName, err)
	}
	out.Chargepoint = cp
	return out, nil
}
