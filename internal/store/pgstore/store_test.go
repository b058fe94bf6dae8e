package pgstore

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// fakeDB records queries and answers from canned rows.
type fakeDB struct {
	query string
	args  []any

	rows [][]any
	err  error
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.query, f.args = sql, args
	if f.err != nil {
		return nil, f.err
	}
	return &fakeRows{rows: f.rows, pos: -1}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.query, f.args = sql, args
	if f.err != nil {
		return fakeRow{err: f.err}
	}
	if len(f.rows) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: f.rows[0]}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.pos], nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	return scanInto(r.rows[r.pos], dest)
}

func scanInto(values []any, dest []any) error {
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(values[i]))
	}
	return nil
}

// ---- SQL Tests ----

func TestBuildInsert(t *testing.T) {
	query, args, err := buildInsert(tables[core.KindDriver], "id-1", core.Fields{
		core.FieldPhone: "9999999999",
		core.FieldName:  "Ravi",
	})
	if err != nil {
		t.Fatalf("buildInsert() error = %v", err)
	}

	want := `INSERT INTO "Driver" AS t ("id", "name", "phone", "updatedAt") VALUES ($1, $2, $3, now()) RETURNING t.id, to_jsonb(t) - 'id'`
	if query != want {
		t.Errorf("query =\n%s\nwant\n%s", query, want)
	}
	if !reflect.DeepEqual(args, []any{"id-1", "Ravi", "9999999999"}) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildUpdate(t *testing.T) {
	query, args, err := buildUpdate(tables[core.KindVehicle], "v1", core.Fields{
		core.FieldSeatingCapacity: 40,
		core.FieldPrimaryDriverID: "d1",
	})
	if err != nil {
		t.Fatalf("buildUpdate() error = %v", err)
	}

	want := `UPDATE "Bus" AS t SET "primaryDriverId" = $2, "seatingCapacity" = $3, "updatedAt" = now() WHERE t.id = $1 RETURNING t.id, to_jsonb(t) - 'id'`
	if query != want {
		t.Errorf("query =\n%s\nwant\n%s", query, want)
	}
	if !reflect.DeepEqual(args, []any{"v1", "d1", 40}) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildStatements_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		build func() error
	}{
		{
			name: "unknown column",
			build: func() error {
				_, _, err := buildInsert(tables[core.KindStudent], "s1", core.Fields{"name": "Ravi", `x"; DROP TABLE "Student`: 1})
				return err
			},
		},
		{
			name: "empty insert",
			build: func() error {
				_, _, err := buildInsert(tables[core.KindStudent], "s1", core.Fields{})
				return err
			},
		},
		{
			name: "update without id",
			build: func() error {
				_, _, err := buildUpdate(tables[core.KindStudent], "", core.Fields{"name": "Ravi"})
				return err
			},
		},
		{
			name: "source-only hint",
			build: func() error {
				_, _, err := buildUpdate(tables[core.KindVehicle], "v1", core.Fields{core.FieldDriverName: "Om"})
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.build(); err == nil {
				t.Error("statement built, want error")
			}
		})
	}
}

// ---- Store Tests ----

func TestStore_List(t *testing.T) {
	db := &fakeDB{rows: [][]any{
		{"s1", map[string]any{"name": "Ravi", "busId": "b1"}},
		{"s2", map[string]any{"name": "Anita", "busId": "b1"}},
	}}

	records, err := New(db).List(context.Background(), core.KindStudent)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 || records[1].ID != "s2" || records[1].Fields["name"] != "Anita" {
		t.Errorf("List() = %+v", records)
	}
	if !strings.Contains(db.query, `FROM "Student" AS t`) {
		t.Errorf("query = %s", db.query)
	}
}

func TestStore_Create(t *testing.T) {
	db := &fakeDB{rows: [][]any{{"fixed-id", map[string]any{"name": "Ravi"}}}}
	s := New(db)
	s.newID = func() string { return "fixed-id" }

	rec, err := s.Create(context.Background(), core.KindDriver, core.Fields{core.FieldName: "Ravi"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.ID != "fixed-id" || db.args[0] != "fixed-id" {
		t.Errorf("Create() = %+v, args = %v", rec, db.args)
	}
}

func TestStore_PatchNotFound(t *testing.T) {
	_, err := New(&fakeDB{}).Patch(context.Background(), core.KindDriver, "gone", core.Fields{core.FieldPhone: "1"})

	var se *core.StoreError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Errorf("Patch() error = %v, want 404 StoreError", err)
	}
}

func TestStore_UnknownColumnIsRejection(t *testing.T) {
	db := &fakeDB{}
	_, err := New(db).Create(context.Background(), core.KindDriver, core.Fields{"salary": 100})

	if got := core.MapError(err).Code; got != "STORE001" {
		t.Errorf("MapError().Code = %q, want STORE001", got)
	}
	if db.query != "" {
		t.Error("invalid statement reached the database")
	}
}

// ---- Error Mapping Tests ----

func TestStoreError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransport bool
		wantStatus    int
		wantCode      string
	}{
		{
			name:       "unique violation",
			err:        &pgconn.PgError{Code: "23505", Message: "duplicate key value", Detail: "Key (phone)=(1) already exists."},
			wantStatus: http.StatusConflict,
			wantCode:   "STORE001",
		},
		{
			name:       "bad enum value",
			err:        &pgconn.PgError{Code: "22P02", Message: "invalid input value for enum"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "STORE001",
		},
		{
			name:       "server failure",
			err:        &pgconn.PgError{Code: "53300", Message: "too many connections"},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "STORE004",
		},
		{
			name:          "connection lost",
			err:           errors.New("connection reset by peer"),
			wantTransport: true,
			wantCode:      "STORE002",
		},
		{
			name:          "deadline",
			err:           context.DeadlineExceeded,
			wantTransport: true,
			wantCode:      "STORE003",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storeError("create", core.KindDriver, tt.err)

			var se *core.StoreError
			if !errors.As(err, &se) {
				t.Fatalf("storeError() = %v", err)
			}
			if se.Transport != tt.wantTransport || se.Status != tt.wantStatus {
				t.Errorf("Transport, Status = %v, %d, want %v, %d", se.Transport, se.Status, tt.wantTransport, tt.wantStatus)
			}
			if got := core.MapError(err).Code; got != tt.wantCode {
				t.Errorf("MapError().Code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}
