package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/hitoshi/chargesync/internal/cloudkit"
	"github.com/hitoshi/chargesync/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// mockRemote はRemoteStoreのモック。
type mockRemote struct {
	queryFn  func(query cloudkit.Query, opts cloudkit.QueryOptions) ([][]cloudkit.Record, error)
	lookupFn func(names []string) ([][]cloudkit.Record, error)

	queries      []cloudkit.Query
	queryOptions []cloudkit.QueryOptions
	lookups      [][]string
}

func (m *mockRemote) Query(ctx context.Context, query cloudkit.Query, opts cloudkit.QueryOptions, fn cloudkit.BatchFunc) error {
	m.queries = append(m.queries, query)
	m.queryOptions = append(m.queryOptions, opts)
	if m.queryFn == nil {
		return nil
	}
	pages, err := m.queryFn(query, opts)
	if err != nil {
		return err
	}
	for _, page := range pages {
		if err := fn(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockRemote) Lookup(ctx context.Context, names []string, opts cloudkit.LookupOptions, fn cloudkit.BatchFunc) error {
	m.lookups = append(m.lookups, names)
	if m.lookupFn == nil {
		return nil
	}
	pages, err := m.lookupFn(names)
	if err != nil {
		return err
	}
	for _, page := range pages {
		if err := fn(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockRemote) queriesOf(recordType string) []cloudkit.Query {
	var out []cloudkit.Query
	for _, q := range m.queries {
		if q.RecordType == recordType {
			out = append(out, q)
		}
	}
	return out
}

// fakeCheckInRepo はインメモリのCheckInRepository。
type fakeCheckInRepo struct {
	mu            sync.Mutex
	rows          map[string]model.CheckIn
	upsertCalls   int
	markCalls     int
	deleteAllCall int
}

func newFakeCheckInRepo(rows ...model.CheckIn) *fakeCheckInRepo {
	r := &fakeCheckInRepo{rows: map[string]model.CheckIn{}}
	for _, c := range rows {
		r.rows[c.RecordName] = c
	}
	return r
}

func (r *fakeCheckInRepo) NewestModifiedTimestamp(_ context.Context, source model.Source) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest int64
	found := false
	for _, c := range r.rows {
		if c.Source != source {
			continue
		}
		if !found || c.Modified.Timestamp > newest {
			newest = c.Modified.Timestamp
			found = true
		}
	}
	return newest, found, nil
}

func (r *fakeCheckInRepo) Upsert(_ context.Context, checkIns []model.CheckIn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++
	for _, c := range checkIns {
		r.rows[c.RecordName] = c
	}
	return nil
}

func (r *fakeCheckInRepo) ListActiveRecordNamesByChargepoints(_ context.Context, source model.Source, chargepoints []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parents := map[string]bool{}
	for _, p := range chargepoints {
		parents[p] = true
	}
	var names []string
	for _, c := range r.rows {
		if c.Source == source && !c.Deleted && parents[c.Chargepoint] {
			names = append(names, c.RecordName)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *fakeCheckInRepo) MarkDeleted(_ context.Context, recordNames []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markCalls++
	var n int64
	for _, name := range recordNames {
		if c, ok := r.rows[name]; ok {
			c.Deleted = true
			r.rows[name] = c
			n++
		}
	}
	return n, nil
}

func (r *fakeCheckInRepo) DeleteAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteAllCall++
	r.rows = map[string]model.CheckIn{}
	return nil
}

func (r *fakeCheckInRepo) FindByRecordName(_ context.Context, recordName string) (*model.CheckIn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[recordName]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *fakeCheckInRepo) writes() int {
	return r.upsertCalls + r.markCalls + r.deleteAllCall
}

// fakeUserRepo はインメモリのUserRepository。
type fakeUserRepo struct {
	rows          map[string]model.User
	upserted      []string
	deleteAllCall int
}

func newFakeUserRepo(rows ...model.User) *fakeUserRepo {
	r := &fakeUserRepo{rows: map[string]model.User{}}
	for _, u := range rows {
		r.rows[u.RecordName] = u
	}
	return r
}

func (r *fakeUserRepo) Upsert(_ context.Context, users []model.User) error {
	for _, u := range users {
		r.rows[u.RecordName] = u
		r.upserted = append(r.upserted, u.RecordName)
	}
	return nil
}

func (r *fakeUserRepo) DeleteAll(context.Context) error {
	r.deleteAllCall++
	r.rows = map[string]model.User{}
	return nil
}

func (r *fakeUserRepo) FindByRecordName(_ context.Context, recordName string) (*model.User, error) {
	u, ok := r.rows[recordName]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// recordingObserver はObserverへの通知を記録する。
type recordingObserver struct {
	batches    map[string]int
	tombstones int
	watermark  int64
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{batches: map[string]int{}}
}

func (o *recordingObserver) RecordBatch(recordType string, count int) { o.batches[recordType] += count }
func (o *recordingObserver) RecordTombstones(count int)               { o.tombstones += count }
func (o *recordingObserver) RecordWatermark(watermark int64)          { o.watermark = watermark }

// ckCheckIn はテスト用のCheckInsレコードを生成する。
func ckCheckIn(name, chargepoint string, modified int64, user string) cloudkit.Record {
	return cloudkit.Record{
		RecordName:      name,
		RecordType:      RecordTypeCheckIns,
		RecordChangeTag: "tag-" + name,
		Created:         &cloudkit.Timestamp{Timestamp: modified, UserRecordName: user},
		Modified:        &cloudkit.Timestamp{Timestamp: modified, UserRecordName: user},
		Fields: cloudkit.Fields{
			fieldTimestamp:   cloudkit.TimestampMillisField(modified),
			fieldChargepoint: cloudkit.ReferenceField(chargepoint, cloudkit.ActionDeleteSelf),
			fieldReason:      cloudkit.Int64Field(int64(model.ReasonOK)),
		},
	}
}

func nameOnly(name string) cloudkit.Record {
	return cloudkit.Record{RecordName: name}
}

func localCheckIn(name, chargepoint string, source model.Source, modified int64) model.CheckIn {
	return model.CheckIn{
		RecordName:  name,
		Chargepoint: chargepoint,
		Source:      source,
		Modified:    model.Timestamp{Timestamp: modified},
	}
}

// filterValue はフィルタ値のJSONを文字列で返す。
func filterValue(f cloudkit.Filter) string {
	b, _ := json.Marshal(f.FieldValue.Value)
	return string(b)
}
