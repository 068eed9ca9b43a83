package domain

import (
	"errors"
	"fmt"
)

// ExecutionKind is the failure class of a connection or execution attempt
type ExecutionKind string

const (
	ExecutionWalletUnavailable            ExecutionKind = "WALLET_UNAVAILABLE"
	ExecutionUnsupportedNetwork           ExecutionKind = "UNSUPPORTED_NETWORK"
	ExecutionSessionInitFailed            ExecutionKind = "SESSION_INIT_FAILED"
	ExecutionSponsorshipRejected          ExecutionKind = "SPONSORSHIP_REJECTED"
	ExecutionSubmissionFailed             ExecutionKind = "SUBMISSION_FAILED"
	ExecutionAmbiguousOutcome             ExecutionKind = "AMBIGUOUS_OUTCOME"
	ExecutionUnsupportedBatchInDirectMode ExecutionKind = "UNSUPPORTED_BATCH_IN_DIRECT_MODE"
	ExecutionDirectSendFailed             ExecutionKind = "DIRECT_SEND_FAILED"
	ExecutionInvalidRequest               ExecutionKind = "INVALID_REQUEST"
	ExecutionDuplicateSubmission          ExecutionKind = "DUPLICATE_SUBMISSION"
	ExecutionIdentityChanged              ExecutionKind = "IDENTITY_CHANGED"
	ExecutionNotConnected                 ExecutionKind = "NOT_CONNECTED"
)

// ExecutionError is returned by connection, session and execution operations
type ExecutionError struct {
	Kind ExecutionKind
	Err  error
}

func NewExecutionError(kind ExecutionKind, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, Err: err}
}

func ExecutionErrorf(kind ExecutionKind, format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is matches another ExecutionError of the same kind, so callers can write
// errors.Is(err, &ExecutionError{Kind: ExecutionAmbiguousOutcome}).
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	return ok && t.Kind == e.Kind && t.Err == nil
}

// KindOf returns the kind of the first ExecutionError in err's chain
func KindOf(err error) (ExecutionKind, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries an ExecutionError of kind
func IsKind(err error, kind ExecutionKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
