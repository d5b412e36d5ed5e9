package model

// Reason はチェックインの理由コードを表す。
type Reason int

const (
	ReasonOK       Reason = 10
	ReasonRecovery Reason = 11

	// 故障系
	ReasonEquipmentProblem       Reason = 100
	ReasonEquipmentProblemNew    Reason = 101
	ReasonNotCompatible          Reason = 102
	ReasonNotCompatibleNew       Reason = 103
	ReasonNoChargingEquipment    Reason = 104
	ReasonNoChargingEquipmentNew Reason = 105

	// その他
	ReasonNotFound  Reason = 200
	ReasonDuplicate Reason = 201
	ReasonPositive  Reason = 202
	ReasonNegative  Reason = 203
)

var reasonNames = map[Reason]string{
	ReasonOK:                     "ok",
	ReasonRecovery:               "recovery",
	ReasonEquipmentProblem:       "equipmentProblem",
	ReasonEquipmentProblemNew:    "equipmentProblemNew",
	ReasonNotCompatible:          "notCompatible",
	ReasonNotCompatibleNew:       "notCompatibleNew",
	ReasonNoChargingEquipment:    "noChargingEquipment",
	ReasonNoChargingEquipmentNew: "noChargingEquipmentNew",
	ReasonNotFound:               "notFound",
	ReasonDuplicate:              "duplicate",
	ReasonPositive:               "positive",
	ReasonNegative:               "negative",
}

// String は理由コードの名前を返す。未定義のコードは空文字列を返す。
func (r Reason) String() string {
	return reasonNames[r]
}

// Known は定義済みの理由コードかどうかを返す。
func (r Reason) Known() bool {
	_, ok := reasonNames[r]
	return ok
}
