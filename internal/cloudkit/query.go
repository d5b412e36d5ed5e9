package cloudkit

// Comparator はクエリフィルタの比較演算子。
type Comparator string

const (
	ComparatorEquals              Comparator = "EQUALS"
	ComparatorNotEquals           Comparator = "NOT_EQUALS"
	ComparatorLessThan            Comparator = "LESS_THAN"
	ComparatorLessThanOrEquals    Comparator = "LESS_THAN_OR_EQUALS"
	ComparatorGreaterThan         Comparator = "GREATER_THAN"
	ComparatorGreaterThanOrEquals Comparator = "GREATER_THAN_OR_EQUALS"
	ComparatorIn                  Comparator = "IN"
	ComparatorNotIn               Comparator = "NOT_IN"
)

// システムフィールド名。
const (
	// SystemFieldModifiedTimestamp はsortByおよびsystemFieldNameで指定する更新日時。
	SystemFieldModifiedTimestamp = "modifiedTimestamp"
	// FieldModTime はfieldNameとして指定できる更新日時のシステムフィールド。
	FieldModTime = "___modTime"
)

// Filter はクエリの絞り込み条件。FieldNameとSystemFieldNameのどちらか一方を指定する。
type Filter struct {
	Comparator      Comparator `json:"comparator"`
	FieldName       string     `json:"fieldName,omitempty"`
	SystemFieldName string     `json:"systemFieldName,omitempty"`
	FieldValue      Field      `json:"fieldValue"`
}

// Sort はクエリの並び順。
type Sort struct {
	FieldName       string `json:"fieldName,omitempty"`
	SystemFieldName string `json:"systemFieldName,omitempty"`
	Ascending       bool   `json:"ascending"`
}

// Query はレコードクエリを表す。
type Query struct {
	RecordType string   `json:"recordType"`
	FilterBy   []Filter `json:"filterBy,omitempty"`
	SortBy     []Sort   `json:"sortBy,omitempty"`
}

// QueryOptions はクエリの取得オプション。
// DesiredKeysがnilの場合は全フィールドを取得し、空スライスの場合はフィールドを取得しない。
type QueryOptions struct {
	DesiredKeys []string
}

// LookupOptions はlookupの取得オプション。DesiredKeysの意味はQueryOptionsと同じ。
type LookupOptions struct {
	DesiredKeys []string
}

// RecordNamesOnly はrecordNameのみを取得するQueryOptionsを返す。
func RecordNamesOnly() QueryOptions {
	return QueryOptions{DesiredKeys: []string{}}
}

// GreaterThan はfieldName > value のフィルタを生成する。
func GreaterThan(fieldName string, value Field) Filter {
	return Filter{Comparator: ComparatorGreaterThan, FieldName: fieldName, FieldValue: value}
}

// SystemGreaterThan はシステムフィールドに対する > のフィルタを生成する。
func SystemGreaterThan(systemFieldName string, value Field) Filter {
	return Filter{Comparator: ComparatorGreaterThan, SystemFieldName: systemFieldName, FieldValue: value}
}

// In はfieldNameがvalueのいずれかに一致するフィルタを生成する。
func In(fieldName string, value Field) Filter {
	return Filter{Comparator: ComparatorIn, FieldName: fieldName, FieldValue: value}
}

// NotIn はfieldNameがvalueのいずれにも一致しないフィルタを生成する。
func NotIn(fieldName string, value Field) Filter {
	return Filter{Comparator: ComparatorNotIn, FieldName: fieldName, FieldValue: value}
}

// SortAscending はシステムフィールドの昇順ソートを生成する。
func SortAscending(systemFieldName string) Sort {
	return Sort{SystemFieldName: systemFieldName, Ascending: true}
}
