package integration

import (
	"errors"
	"fmt"

	"github.com/erp/syncengine/internal/domain/shared"
)

// Error codes stored on failed records and returned to API callers
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeMappingNotFound        = "MAPPING_NOT_FOUND"
	CodeTransientExternal      = "TRANSIENT_EXTERNAL_ERROR"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeFatalConnectivity      = "FATAL_CONNECTIVITY_ERROR"
)

// Domain errors surfaced to callers of the application services
var (
	ErrInvalidSyncType          = shared.NewDomainError(shared.CodeInvalidInput, "integration: invalid sync type")
	ErrInvalidMappingType       = shared.NewDomainError(shared.CodeInvalidInput, "integration: invalid mapping type")
	ErrInvalidMapping           = shared.NewDomainError(shared.CodeInvalidInput, "integration: mapping requires source and target values")
	ErrInvalidAdjustment        = shared.NewDomainError(shared.CodeInvalidInput, "integration: invalid pending adjustment")
	ErrRejectReasonRequired     = shared.NewDomainError(shared.CodeInvalidInput, "integration: a reason is required to reject an adjustment")
	ErrActorRequired            = shared.NewDomainError(shared.CodeInvalidInput, "integration: the acting operator is required")
	ErrSyncRunNotFound          = shared.NewDomainError(shared.CodeNotFound, "integration: sync run not found")
	ErrFailedRecordNotFound     = shared.NewDomainError(shared.CodeNotFound, "integration: failed record not found")
	ErrMappingNotFound          = shared.NewDomainError(shared.CodeNotFound, "integration: mapping not found")
	ErrPendingAdjustmentMissing = shared.NewDomainError(shared.CodeNotFound, "integration: pending adjustment not found")
	ErrInvalidStateTransition   = shared.NewDomainError(CodeInvalidStateTransition, "integration: invalid state transition")
	ErrSyncRunClosed            = shared.NewDomainError(CodeInvalidStateTransition, "integration: sync run is already closed")
	ErrJobAlreadyRunning        = shared.NewDomainError(shared.CodeJobAlreadyRunning, "integration: job is already running")
)

// ErrorKind classifies the outcome of a failed record or run
type ErrorKind int

const (
	// KindTransient is a timeout, 5xx or rate limit. Retried by the retry engine.
	KindTransient ErrorKind = iota
	// KindValidation is a malformed record. Never retried automatically.
	KindValidation
	// KindMappingNotFound is a missing cross-system identifier. Never retried automatically.
	KindMappingNotFound
	// KindInvalidStateTransition is workflow misuse.
	KindInvalidStateTransition
	// KindFatalConnectivity means a system is unreachable for the whole run.
	KindFatalConnectivity
)

// String returns the error code of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return CodeValidation
	case KindMappingNotFound:
		return CodeMappingNotFound
	case KindInvalidStateTransition:
		return CodeInvalidStateTransition
	case KindFatalConnectivity:
		return CodeFatalConnectivity
	default:
		return CodeTransientExternal
	}
}

// SyncError is a classified synchronization error
type SyncError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the retry engine may pick the record up again
func (e *SyncError) Retryable() bool {
	return e.Kind == KindTransient
}

// Fatal reports whether the error aborts the whole run
func (e *SyncError) Fatal() bool {
	return e.Kind == KindFatalConnectivity
}

func newSyncError(kind ErrorKind, message string, err error) *SyncError {
	return &SyncError{Kind: kind, Code: kind.String(), Message: message, Err: err}
}

// NewValidationError reports a malformed or incomplete record
func NewValidationError(message string) *SyncError {
	return newSyncError(KindValidation, message, nil)
}

// NewMappingNotFoundError reports a missing mapping for key
func NewMappingNotFoundError(key MappingKey) *SyncError {
	return newSyncError(KindMappingNotFound, fmt.Sprintf("no active %s mapping for %q", key.Type, key.SourceValue), nil)
}

// NewTransientError reports a failure worth retrying later
func NewTransientError(message string, err error) *SyncError {
	return newSyncError(KindTransient, message, err)
}

// NewFatalConnectivityError reports that a system cannot be reached at all
func NewFatalConnectivityError(message string, err error) *SyncError {
	return newSyncError(KindFatalConnectivity, message, err)
}

// Classify converts any error into a SyncError.
// Errors that carry no classification are treated as transient so the record
// stays eligible for retry.
func Classify(err error) *SyncError {
	if err == nil {
		return nil
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, ErrInvalidStateTransition) {
		return newSyncError(KindInvalidStateTransition, "", err)
	}
	return newSyncError(KindTransient, "", err)
}

// IsFatal reports whether err is a fatal connectivity error
func IsFatal(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Fatal()
}
