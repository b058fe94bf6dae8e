package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "missing required field",
			err:      &MissingFieldError{Kind: KindStudent, Field: FieldBusID, Row: 4},
			wantCode: "VAL003",
		},
		{
			name:     "wrapped missing field",
			err:      fmt.Errorf("plan row 4: %w", &MissingFieldError{Kind: KindDriver, Field: FieldPhone}),
			wantCode: "VAL003",
		},
		{
			name:     "relationship conflict",
			err:      &RelationshipConflict{Field: FieldPrimaryDriverID, RefID: "d1", HeldBy: "v9"},
			wantCode: "REL001",
		},
		{
			name:     "store rejected",
			err:      &StoreError{Op: "create", Kind: KindStudent, Status: 400, Message: "busId is invalid"},
			wantCode: "STORE001",
		},
		{
			name:     "store unreachable",
			err:      &StoreError{Op: "list", Kind: KindDriver, Transport: true, Err: errors.New("dial tcp: connection refused")},
			wantCode: "STORE002",
		},
		{
			name:     "store timeout",
			err:      &StoreError{Op: "patch", Kind: KindVehicle, Transport: true, Err: context.DeadlineExceeded},
			wantCode: "STORE003",
		},
		{
			name:     "store server failure",
			err:      &StoreError{Op: "create", Kind: KindStudent, Status: 500, Message: "Internal server error"},
			wantCode: "STORE004",
		},
		{
			name:     "too many runs",
			err:      ErrTooManyRuns,
			wantCode: "RUN001",
		},
		{
			name:     "cancelled",
			err:      fmt.Errorf("run: %w", context.Canceled),
			wantCode: "RUN002",
		},
		{
			name:     "unknown feed",
			err:      fmt.Errorf("%w: buses", ErrUnknownFeed),
			wantCode: "RUN003",
		},
		{
			name:     "invalid layout",
			err:      Layout{Kind: "bus"}.Validate(),
			wantCode: "VAL001",
		},
		{
			name:     "unreadable cell",
			err:      ParseWarning{Row: 3, Field: FieldPurchaseDate, Value: "31.02.2020", Message: "unrecognized date"},
			wantCode: "VAL002",
		},
		{
			name:     "file too large",
			err:      errors.New("file too large: 30MB exceeds limit"),
			wantCode: "FILE001",
		},
		{
			name:     "sheet not found case insensitive",
			err:      errors.New("Sheet Not Found: Sheet9"),
			wantCode: "FILE003",
		},
		{
			name:     "raw connection refused",
			err:      errors.New("dial tcp 127.0.0.1:3000: connection refused"),
			wantCode: "STORE002",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyRuns)

	expected := "Too many imports in progress (Code: RUN001). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "known error is user facing", err: errors.New("unsupported spreadsheet format: .xls"), want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStoreError_Message(t *testing.T) {
	rejected := &StoreError{Op: "create", Kind: KindStudent, Status: 409, Message: "Student already exists"}
	if got, want := rejected.Error(), "store create student: rejected (409): Student already exists"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	cause := errors.New("connection reset by peer")
	transport := &StoreError{Op: "list", Kind: KindDriver, Transport: true, Err: cause}
	if !errors.Is(transport, cause) {
		t.Error("StoreError should unwrap to its cause")
	}
	if !IsTransport(fmt.Errorf("fetch: %w", transport)) {
		t.Error("IsTransport() = false for wrapped transport error")
	}
	if IsTransport(rejected) {
		t.Error("IsTransport() = true for rejected request")
	}
}
