package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUnknownFeed is returned when a feed key is not registered.
var ErrUnknownFeed = errors.New("unknown feed")

// ParseWarning records a cell that could not be read and was dropped or
// replaced by a fallback. It never stops a row from being imported.
type ParseWarning struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (w ParseWarning) Error() string {
	return fmt.Sprintf("row %d: %s %q: %s", w.Row+1, w.Field, w.Value, w.Message)
}

// MissingFieldError means a record cannot be created because a required
// field is absent after defaults were applied.
type MissingFieldError struct {
	Kind  Kind
	Field string
	Row   int
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("row %d: %s is missing required field %q", e.Row+1, e.Kind, e.Field)
}

// RelationshipConflict means a reference could not be set because the
// referenced record already belongs to someone else.
type RelationshipConflict struct {
	Field string `json:"field"`
	RefID string `json:"refId"`

	// HeldBy is the record currently holding the reference.
	HeldBy string `json:"heldBy"`
}

func (c *RelationshipConflict) Error() string {
	return fmt.Sprintf("%s %s is already assigned to %s", c.Field, c.RefID, c.HeldBy)
}

// StoreError describes a failed record store call. Transport errors mean the
// store was never reached or never answered; otherwise the store rejected the
// request and Message holds its reason verbatim.
type StoreError struct {
	Op        string
	Kind      Kind
	Status    int
	Message   string
	Transport bool
	Err       error
}

func (e *StoreError) Error() string {
	switch {
	case e.Transport && e.Err != nil:
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Kind, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("store %s %s: rejected (%d): %s", e.Op, e.Kind, e.Status, e.Message)
	default:
		return fmt.Sprintf("store %s %s: %s", e.Op, e.Kind, e.Message)
	}
}

func (e *StoreError) Unwrap() error { return e.Err }

// Timeout reports whether the call failed because it ran out of time.
func (e *StoreError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// IsTransport reports whether err is a store call that never got an answer.
func IsTransport(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Transport
}
