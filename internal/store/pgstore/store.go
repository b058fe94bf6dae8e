// Package pgstore reads and writes the school management app's Postgres
// tables directly, for installations where the REST API is not reachable.
//
// Rows are decoded with to_jsonb so every column becomes a field, exactly as
// the API would return it. Writes are limited to the columns listed in
// tables; anything else is rejected before reaching the database.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type table struct {
	name    string
	columns []string
}

// tables are the app's Prisma models. Prisma keeps "updatedAt" up to date
// itself, so writes set it explicitly.
var tables = map[core.Kind]table{
	core.KindStudent: {
		name: "Student",
		columns: []string{
			core.FieldName, core.FieldClass, core.FieldSection, core.FieldVillage,
			core.FieldMonthlyFee, core.FieldParentName, core.FieldParentContact, core.FieldBusID,
		},
	},
	core.KindDriver: {
		name: "Driver",
		columns: []string{
			core.FieldName, core.FieldRole, core.FieldLicenseNumber, core.FieldLicenseExpiry,
			core.FieldPhone, core.FieldAddress, core.FieldStatus,
		},
	},
	core.KindVehicle: {
		name: "Bus",
		columns: []string{
			core.FieldRegistrationNumber, core.FieldChassisNumber, core.FieldSeatingCapacity,
			core.FieldPurchaseDate, core.FieldFitnessExpiry, core.FieldPrimaryDriverID,
		},
	},
}

// Store implements core.Store on a Postgres connection.
type Store struct {
	db    DBTX
	newID func() string
}

// New returns a Store using db. New record ids are random UUIDs.
func New(db DBTX) *Store {
	return &Store{db: db, newID: uuid.NewString}
}

// List returns every row of the kind's table.
func (s *Store) List(ctx context.Context, kind core.Kind) ([]core.TargetRecord, error) {
	t, err := lookup("list", kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT t.id, to_jsonb(t) - 'id' FROM %s AS t ORDER BY t.id`, quoteIdentifier(t.name))
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, storeError("list", kind, err)
	}
	defer rows.Close()

	var records []core.TargetRecord
	for rows.Next() {
		var (
			id     string
			fields map[string]any
		)
		if err := rows.Scan(&id, &fields); err != nil {
			return nil, storeError("list", kind, err)
		}
		records = append(records, core.TargetRecord{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list", kind, err)
	}
	return records, nil
}

// Create inserts a row with a new id and returns it.
func (s *Store) Create(ctx context.Context, kind core.Kind, fields core.Fields) (core.TargetRecord, error) {
	t, err := lookup("create", kind)
	if err != nil {
		return core.TargetRecord{}, err
	}
	query, args, err := buildInsert(t, s.newID(), fields)
	if err != nil {
		return core.TargetRecord{}, &core.StoreError{Op: "create", Kind: kind, Status: http.StatusBadRequest, Message: err.Error()}
	}
	return s.returning(ctx, "create", kind, query, args)
}

// Patch updates the given columns of the row with id.
func (s *Store) Patch(ctx context.Context, kind core.Kind, id string, fields core.Fields) (core.TargetRecord, error) {
	t, err := lookup("patch", kind)
	if err != nil {
		return core.TargetRecord{}, err
	}
	query, args, err := buildUpdate(t, id, fields)
	if err != nil {
		return core.TargetRecord{}, &core.StoreError{Op: "patch", Kind: kind, Status: http.StatusBadRequest, Message: err.Error()}
	}
	return s.returning(ctx, "patch", kind, query, args)
}

func (s *Store) returning(ctx context.Context, op string, kind core.Kind, query string, args []any) (core.TargetRecord, error) {
	var rec core.TargetRecord
	err := s.db.QueryRow(ctx, query, args...).Scan(&rec.ID, &rec.Fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.TargetRecord{}, &core.StoreError{Op: op, Kind: kind, Status: http.StatusNotFound, Message: "record not found"}
	}
	if err != nil {
		return core.TargetRecord{}, storeError(op, kind, err)
	}
	return rec, nil
}

func lookup(op string, kind core.Kind) (table, error) {
	t, ok := tables[kind]
	if !ok {
		return table{}, &core.StoreError{Op: op, Kind: kind, Message: "no table for kind"}
	}
	return t, nil
}

// buildInsert renders an INSERT of fields plus id and timestamps.
func buildInsert(t table, id string, fields core.Fields) (string, []any, error) {
	cols, args, err := columnArgs(t, fields)
	if err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("no fields to insert")
	}

	names := []string{quoteIdentifier("id")}
	values := []string{"$1"}
	params := append([]any{id}, args...)
	for i, c := range cols {
		names = append(names, quoteIdentifier(c))
		values = append(values, fmt.Sprintf("$%d", i+2))
	}
	names = append(names, quoteIdentifier("updatedAt"))
	values = append(values, "now()")

	query := fmt.Sprintf(
		`INSERT INTO %s AS t (%s) VALUES (%s) RETURNING t.id, to_jsonb(t) - 'id'`,
		quoteIdentifier(t.name),
		strings.Join(names, ", "),
		strings.Join(values, ", "),
	)
	return query, params, nil
}

// buildUpdate renders an UPDATE of fields on the row with id.
func buildUpdate(t table, id string, fields core.Fields) (string, []any, error) {
	if id == "" {
		return "", nil, fmt.Errorf("record id is required")
	}
	cols, args, err := columnArgs(t, fields)
	if err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("no fields to update")
	}

	sets := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdentifier(c), i+2))
	}
	sets = append(sets, quoteIdentifier("updatedAt")+" = now()")

	query := fmt.Sprintf(
		`UPDATE %s AS t SET %s WHERE t.id = $1 RETURNING t.id, to_jsonb(t) - 'id'`,
		quoteIdentifier(t.name),
		strings.Join(sets, ", "),
	)
	return query, append([]any{id}, args...), nil
}

// columnArgs returns the writable columns in fields, sorted, with their values.
func columnArgs(t table, fields core.Fields) ([]string, []any, error) {
	cols := fields.Keys()
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		if !slices.Contains(t.columns, c) {
			return nil, nil, fmt.Errorf("%s has no writable column %q", t.name, c)
		}
		args = append(args, fields[c])
	}
	return cols, args, nil
}

// storeError classifies a database error. Constraint and data errors are
// rejections; anything without a server response is a transport failure.
func storeError(op string, kind core.Kind, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &core.StoreError{Op: op, Kind: kind, Transport: true, Err: err}
	}

	status := http.StatusInternalServerError
	switch {
	case pgErr.Code == "23505":
		status = http.StatusConflict
	case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"):
		status = http.StatusBadRequest
	}

	msg := pgErr.Message
	if pgErr.Detail != "" {
		msg += ": " + pgErr.Detail
	}
	return &core.StoreError{Op: op, Kind: kind, Status: status, Message: msg, Err: err}
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
