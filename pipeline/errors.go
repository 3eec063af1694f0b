// ABOUTME: Error classes returned by the pipeline service
// ABOUTME: Maps storage sentinels so callers never learn whether a deal exists
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/closer/db"
)

var (
	// ErrNotFoundOrAccessDenied covers both missing and not-owned records.
	ErrNotFoundOrAccessDenied = errors.New("not found or access denied")
	ErrValidation             = errors.New("validation failed")
	ErrConflict               = errors.New("concurrent modification")
	ErrPersistence            = errors.New("storage unavailable")
)

// Validation codes.
const (
	CodeRequired            = "REQUIRED"
	CodeInvalidValue        = "INVALID_VALUE"
	CodeUnknownDealType     = "UNKNOWN_DEAL_TYPE"
	CodeInvalidStage        = "INVALID_STAGE"
	CodeLostReasonTooShort  = "LOST_REASON_TOO_SHORT"
	CodeDealClosed          = "DEAL_CLOSED"
	CodeNoLostStage         = "NO_LOST_STAGE"
	CodeInvalidActivityType = "INVALID_ACTIVITY_TYPE"
	CodeInvalidStatus       = "INVALID_STATUS"
)

// ValidationError is a caller-correctable input problem.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, code, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ConflictError means a transition kept colliding with concurrent writers.
// Retry with a fresh read.
type ConflictError struct {
	DealID   uuid.UUID
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("deal %s was modified concurrently (%d attempts)", e.DealID, e.Attempts)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// PersistenceError wraps a storage failure. It is fatal to the request.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// storeError translates a repository error into one of the pipeline classes.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}

	var verr *ValidationError
	var cerr *ConflictError
	switch {
	case errors.Is(err, db.ErrDealNotFound), errors.Is(err, db.ErrMilestoneNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFoundOrAccessDenied)
	case errors.As(err, &verr), errors.As(err, &cerr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
