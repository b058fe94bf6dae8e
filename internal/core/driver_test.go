package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu      sync.Mutex
	records map[Kind][]TargetRecord
	nextID  int
	creates int
	patches int

	listErr   error
	createErr func(fields Fields) error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[Kind][]TargetRecord)}
}

func (m *memStore) seed(kind Kind, id string, fields Fields) {
	m.records[kind] = append(m.records[kind], TargetRecord{ID: id, Fields: fields})
}

func (m *memStore) List(_ context.Context, kind Kind) ([]TargetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]TargetRecord, len(m.records[kind]))
	for i, r := range m.records[kind] {
		out[i] = TargetRecord{ID: r.ID, Fields: r.Fields.Clone()}
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, kind Kind, fields Fields) (TargetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		if err := m.createErr(fields); err != nil {
			return TargetRecord{}, err
		}
	}
	m.nextID++
	m.creates++
	rec := TargetRecord{ID: fmt.Sprintf("%s-%d", kind, m.nextID), Fields: fields.Clone()}
	m.records[kind] = append(m.records[kind], rec)
	return rec, nil
}

func (m *memStore) Patch(_ context.Context, kind Kind, id string, fields Fields) (TargetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records[kind] {
		if r.ID == id {
			m.patches++
			merged := r.Fields.Clone()
			for k, v := range fields {
				merged[k] = v
			}
			m.records[kind][i].Fields = merged
			return TargetRecord{ID: id, Fields: merged.Clone()}, nil
		}
	}
	return TargetRecord{}, &StoreError{Op: "patch", Kind: kind, Status: http.StatusNotFound, Message: "not found"}
}

// recordingObserver counts observed events.
type recordingObserver struct {
	mu      sync.Mutex
	records int
	runs    int
}

func (o *recordingObserver) ObserveRecord(string, Outcome, bool) {
	o.mu.Lock()
	o.records++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveRun(string, *Report, error) {
	o.mu.Lock()
	o.runs++
	o.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var driverFeed = FeedDefinition{
	Info: FeedInfo{Key: "drivers", Group: "Fleet"},
	Layout: Layout{
		Kind: KindDriver,
		Columns: []ColumnSpec{
			{Index: 0, Field: FieldName, Type: ColumnName},
			{Index: 1, Field: FieldLicenseNumber, Type: ColumnText},
			{Index: 2, Field: FieldLicenseExpiry, Type: ColumnDate},
			{Index: 3, Field: FieldPhone, Type: ColumnText},
		},
	},
}

var vehicleFeed = FeedDefinition{
	Info: FeedInfo{Key: "vehicles", Group: "Fleet"},
	Layout: Layout{
		Kind: KindVehicle,
		Columns: []ColumnSpec{
			{Index: 0, Field: FieldRegistrationNumber, Type: ColumnRegistration},
			{Index: 1, Field: FieldDriverName, Type: ColumnName},
			{Index: 2, Field: FieldChassisNumber, Type: ColumnText},
			{Index: 3, Field: FieldSeatingCapacity, Type: ColumnInt},
			{Index: 4, Field: FieldPurchaseDate, Type: ColumnDate},
		},
	},
}

var studentFeed = FeedDefinition{
	Info:   FeedInfo{Key: "students", Group: "Fees"},
	Layout: studentLayout,
}

func newTestImporter(store Store, workers int) *Importer {
	return NewImporter(store, ImporterConfig{Workers: workers, Logger: quietLogger()})
}

// ---- Run Tests ----

func TestImporter_RunIsIdempotent(t *testing.T) {
	rows := []Row{
		RowFromStrings("Ravi", "PB-1", "01/02/2027", "9999999999"),
		RowFromStrings("Sampuran Singh", "", "", "9811111111"),
		RowFromStrings("Raj Kumar", "", "", "9822222222"),
		RowFromStrings("Sachin", "RJ13/2019/123", "", "7878457734"),
	}
	req := RunRequest{Feed: driverFeed, Rows: rows}

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			store := newMemStore()
			store.seed(KindDriver, "d1", Fields{FieldName: "Sampooran Singh", FieldPhone: "9800000000", FieldRole: RoleConductor})
			im := newTestImporter(store, workers)

			first, err := im.Run(context.Background(), req)
			if err != nil {
				t.Fatalf("first Run() error = %v", err)
			}
			if first.Created != 3 || first.Skipped != 1 || first.Failed != 0 {
				t.Errorf("first run = %s", first.Summary())
			}
			if got := first.Outcomes[1]; got.TargetID != "d1" || got.Match != "alias" {
				t.Errorf("alias row outcome = %+v, want skip of d1 via alias", got)
			}

			second, err := im.Run(context.Background(), req)
			if err != nil {
				t.Fatalf("second Run() error = %v", err)
			}
			if second.Skipped != len(rows) || second.Changed() {
				t.Errorf("second run = %s, want every record skipped", second.Summary())
			}
			if store.creates != 3 {
				t.Errorf("store creates = %d, want 3", store.creates)
			}
			if second.Patched != 0 {
				t.Errorf("second run patched %d records, want 0", second.Patched)
			}
		})
	}
}

func TestImporter_DuplicateRowsCreateOnce(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(store, 4)

	rows := []Row{
		RowFromStrings("Ravi Kumar", "", "", "9999999999"),
		RowFromStrings("RAVI  KUMAR", "PB-1", "2027-02-01", ""),
		RowFromStrings("ravikumar", "", "", ""),
	}

	report, err := im.Run(context.Background(), RunRequest{Feed: driverFeed, Rows: rows})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.creates != 1 {
		t.Fatalf("store creates = %d, want 1", store.creates)
	}
	if report.Created != 1 || report.Patched != 1 || report.Skipped != 1 {
		t.Errorf("report = %s, want 1 created, 1 patched, 1 skipped", report.Summary())
	}
	id := report.Outcomes[0].TargetID
	for _, o := range report.Outcomes[1:] {
		if o.TargetID != id {
			t.Errorf("row %d targets %s, want %s", o.Row, o.TargetID, id)
		}
	}
}

func TestImporter_DryRun(t *testing.T) {
	store := newMemStore()
	store.seed(KindDriver, "d1", Fields{FieldName: "Ravi", FieldRole: RoleConductor})
	im := newTestImporter(store, 1)

	report, err := im.Run(context.Background(), RunRequest{
		Feed:   driverFeed,
		DryRun: true,
		Rows: []Row{
			RowFromStrings("Ravi", "", "", "9999999999"),
			RowFromStrings("Anil", "", "", "9888888888"),
			RowFromStrings("Anil", "", "", ""),
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.creates != 0 || store.patches != 0 {
		t.Errorf("dry run wrote to the store: %d creates, %d patches", store.creates, store.patches)
	}
	if report.Patched != 1 || report.Created != 1 || report.Skipped != 1 {
		t.Errorf("report = %s", report.Summary())
	}
	if got := report.Outcomes[1].TargetID; got != "dry-run:2" {
		t.Errorf("dry run create id = %q, want dry-run:2", got)
	}
	if got := report.Outcomes[2].TargetID; got != "dry-run:2" {
		t.Errorf("repeat row target = %q, want the planned create", got)
	}
}

func TestImporter_FailuresDoNotStopRun(t *testing.T) {
	store := newMemStore()
	store.createErr = func(f Fields) error {
		if name, _ := f.Text(FieldName); name == "Anil" {
			return &StoreError{Op: "create", Kind: KindDriver, Status: http.StatusBadRequest, Message: "phone already used"}
		}
		return nil
	}
	obs := &recordingObserver{}
	im := NewImporter(store, ImporterConfig{Logger: quietLogger(), Observer: obs})

	report, err := im.Run(context.Background(), RunRequest{Feed: driverFeed, Rows: []Row{
		RowFromStrings("Anil", "", "", "9888888888"),
		RowFromStrings("Raj", "", "", ""),
		RowFromStrings("Ravi", "", "", "9999999999"),
	}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Created != 1 || report.Failed != 2 {
		t.Fatalf("report = %s, want 1 created, 2 failed", report.Summary())
	}

	failures := report.FirstFailures(5)
	if failures[0].Code != "STORE001" || failures[0].Error == "" {
		t.Errorf("store rejection outcome = %+v", failures[0])
	}
	if failures[1].Code != "VAL003" {
		t.Errorf("missing phone outcome = %+v, want VAL003", failures[1])
	}
	if obs.records != 3 || obs.runs != 1 {
		t.Errorf("observer saw %d records, %d runs", obs.records, obs.runs)
	}
}

func TestImporter_UnreachableStoreLogsError(t *testing.T) {
	store := newMemStore()
	store.createErr = func(Fields) error {
		return &StoreError{Op: "create", Kind: KindDriver, Transport: true, Err: errors.New("connection refused")}
	}
	var logs bytes.Buffer
	im := NewImporter(store, ImporterConfig{Logger: slog.New(slog.NewTextHandler(&logs, nil))})

	report, err := im.Run(context.Background(), RunRequest{Feed: driverFeed, Rows: []Row{
		RowFromStrings("Ravi", "", "", "9999999999"),
	}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Failed != 1 || report.Outcomes[0].Code != "STORE002" {
		t.Fatalf("report = %s, outcome %+v", report.Summary(), report.Outcomes[0])
	}
	if out := logs.String(); !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "store unreachable") {
		t.Errorf("logs = %s, want an error for the unreachable store", out)
	}
}

func TestImporter_SnapshotFailureIsFatal(t *testing.T) {
	store := newMemStore()
	store.listErr = &StoreError{Op: "list", Kind: KindDriver, Transport: true, Err: errors.New("connection refused")}
	im := newTestImporter(store, 1)

	report, err := im.Run(context.Background(), RunRequest{Feed: driverFeed, Rows: []Row{
		RowFromStrings("Ravi", "", "", "9999999999"),
	}})
	if err == nil {
		t.Fatal("Run() error = nil, want snapshot error")
	}
	if !IsTransport(err) {
		t.Errorf("Run() error = %v, want transport error", err)
	}
	if report == nil || report.Error == "" {
		t.Fatalf("report = %+v, want aborted report", report)
	}
	if store.creates != 0 {
		t.Error("aborted run wrote to the store")
	}
}

func TestImporter_CancelledContext(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	store.createErr = func(Fields) error {
		cancel()
		return nil
	}

	report, err := im.Run(ctx, RunRequest{Feed: driverFeed, Rows: []Row{
		RowFromStrings("Ravi", "", "", "9999999999"),
		RowFromStrings("Anil", "", "", "9888888888"),
	}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if report.Created != 1 || report.Failed != 1 {
		t.Errorf("report = %s", report.Summary())
	}
	if got := report.Outcomes[1].Code; got != "RUN002" {
		t.Errorf("cancelled record code = %q, want RUN002", got)
	}
}

// ---- Vehicle Tests ----

func TestImporter_VehicleDriverAssignment(t *testing.T) {
	store := newMemStore()
	store.seed(KindDriver, "d1", Fields{FieldName: "Sampooran Singh"})
	store.seed(KindDriver, "d2", Fields{FieldName: "Om Parkash"})
	store.seed(KindDriver, "d3", Fields{FieldName: "Harjit Singh"})
	store.seed(KindVehicle, "v1", Fields{FieldRegistrationNumber: "PB 11 AA 0001", FieldPrimaryDriverID: "d3"})
	im := newTestImporter(store, 1)

	report, err := im.Run(context.Background(), RunRequest{Feed: vehicleFeed, Rows: []Row{
		RowFromStrings("pb-11-bb-0002", "Sampuran Singh", "CH-2", "40", "14.03.2021"),
		RowFromStrings("PB 11 BB 0003", "Harjit Singh", "CH-3", "32", "2020-05-01"),
		RowFromStrings("PB 11 BB 0004", "sampooran singh", "CH-4", "32", "2020-05-01"),
		RowFromStrings("PB 11 BB 0005", "Nobody", "CH-5", "32", "2020-05-01"),
	}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Created != 4 || report.Conflicts != 2 {
		t.Fatalf("report = %s, want 4 created, 2 conflicts", report.Summary())
	}

	created := store.records[KindVehicle][1:]
	if got := created[0].Fields[FieldPrimaryDriverID]; got != "d1" {
		t.Errorf("alias driver id = %v, want d1", got)
	}
	if created[0].Fields.Has(FieldDriverName) {
		t.Error("driverName was sent to the store")
	}
	if created[0].Fields[FieldPurchaseDate] != "2021-03-14" {
		t.Errorf("purchaseDate = %v", created[0].Fields[FieldPurchaseDate])
	}
	for _, c := range created[1:] {
		if c.Fields.Has(FieldPrimaryDriverID) {
			t.Errorf("%v got a driver already assigned elsewhere", c.Fields[FieldRegistrationNumber])
		}
	}

	if got := report.Outcomes[1].Conflicts; len(got) != 1 || got[0].HeldBy != "v1" {
		t.Errorf("existing assignment conflict = %+v", got)
	}
	if got := report.Outcomes[2].Conflicts; len(got) != 1 || got[0].HeldBy != created[0].ID {
		t.Errorf("in-run assignment conflict = %+v, want held by %s", got, created[0].ID)
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Value != "Nobody" {
		t.Errorf("Warnings = %+v, want unknown driver warning", report.Warnings)
	}
}

func TestImporter_VehicleMatchAndPatch(t *testing.T) {
	store := newMemStore()
	store.seed(KindDriver, "d1", Fields{FieldName: "Ravi"})
	store.seed(KindVehicle, "v1", Fields{FieldRegistrationNumber: "RJ 13 PA 4035", FieldChassisNumber: "CH-1"})
	im := newTestImporter(store, 1)

	report, err := im.Run(context.Background(), RunRequest{Feed: vehicleFeed, Rows: []Row{
		RowFromStrings("rj-13-pa-4035", "Ravi", "CH-OTHER", "40", ""),
	}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Patched != 1 {
		t.Fatalf("report = %s, want 1 patched", report.Summary())
	}

	got := store.records[KindVehicle][0].Fields
	if got[FieldChassisNumber] != "CH-1" {
		t.Errorf("chassisNumber overwritten with %v", got[FieldChassisNumber])
	}
	if got[FieldPrimaryDriverID] != "d1" || got[FieldSeatingCapacity] != 40 {
		t.Errorf("patched fields = %v", got)
	}
}

// ---- Scope Tests ----

func TestImporter_StudentScope(t *testing.T) {
	store := newMemStore()
	store.seed(KindStudent, "s1", Fields{FieldName: "Ravi", FieldBusID: "bus-1", FieldClass: "10"})
	im := newTestImporter(store, 1)

	report, err := im.Run(context.Background(), RunRequest{
		Feed:     studentFeed,
		Defaults: Fields{FieldBusID: "bus-2"},
		Rows:     []Row{RowFromStrings("1", "Ravi", "X A", "Nabha", "1500")},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Created != 1 {
		t.Errorf("report = %s, want a new student on bus-2", report.Summary())
	}
}

func TestImporter_FeeFallbackOverride(t *testing.T) {
	store := newMemStore()
	im := NewImporter(store, ImporterConfig{Logger: quietLogger(), FeeFallback: 1800})

	report, err := im.Run(context.Background(), RunRequest{
		Feed:     studentFeed,
		Defaults: Fields{FieldBusID: "bus-2"},
		Rows:     []Row{RowFromStrings("1", "Ravi", "X A", "Nabha", "ask office")},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Created != 1 || len(report.Warnings) != 1 {
		t.Fatalf("report = %s", report.Summary())
	}
	if fee := store.records[KindStudent][0].Fields[FieldMonthlyFee]; fee != 1800.0 {
		t.Errorf("monthlyFee = %v, want the importer fallback 1800", fee)
	}

	// A feed's own fallback wins.
	feed := studentFeed
	feed.Layout.FeeFallback = 1000
	_, _ = im.Run(context.Background(), RunRequest{
		Feed:     feed,
		Defaults: Fields{FieldBusID: "bus-3"},
		Rows:     []Row{RowFromStrings("1", "Asha", "IX", "Nabha", "ask office")},
	})
	if fee := store.records[KindStudent][1].Fields[FieldMonthlyFee]; fee != 1000.0 {
		t.Errorf("monthlyFee = %v, want the feed fallback 1000", fee)
	}
}

// ---- Ledger Tests ----

func TestClaimLedger(t *testing.T) {
	l := newClaimLedger([]TargetRecord{
		{ID: "v1", Fields: Fields{FieldPrimaryDriverID: "d1"}},
		{ID: "v2", Fields: Fields{FieldPrimaryDriverID: "d1"}},
	})

	if h, ok := l.HolderOf(FieldPrimaryDriverID, "d1"); !ok || h != "v1" {
		t.Errorf("HolderOf(d1) = %q, %v, want first holder v1", h, ok)
	}
	if h, ok := l.Claim(FieldPrimaryDriverID, "d1", "v9"); ok || h != "v1" {
		t.Errorf("Claim(d1) = %q, %v, want refused", h, ok)
	}
	if _, ok := l.Claim(FieldPrimaryDriverID, "d2", "pending"); !ok {
		t.Fatal("Claim(d2) refused")
	}

	l.Rebind("pending", "v3")
	if h, _ := l.HolderOf(FieldPrimaryDriverID, "d2"); h != "v3" {
		t.Errorf("after Rebind holder = %q, want v3", h)
	}

	l.ReleaseClaims("v3", Fields{FieldPrimaryDriverID: "d2"})
	if _, ok := l.HolderOf(FieldPrimaryDriverID, "d2"); ok {
		t.Error("ReleaseClaims kept the claim")
	}

	l.ReleaseOwner("v1")
	if _, ok := l.HolderOf(FieldPrimaryDriverID, "d1"); ok {
		t.Error("ReleaseOwner kept the claim")
	}
}
