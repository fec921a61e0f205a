package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced question has no record at all.
	ErrNotFound = errors.New("question not found")

	// ErrNotReady indicates the question exists but its generation has not concluded.
	ErrNotReady = errors.New("question not ready")

	// ErrGenerationFailed indicates the question was permanently failed and will never be published.
	ErrGenerationFailed = errors.New("question generation failed permanently")

	// ErrQualityGateExhausted indicates every generation iteration was rejected by the self-check.
	ErrQualityGateExhausted = errors.New("unable to generate FRQ: quality gate exhausted")

	// ErrAlreadyCompleted indicates a redelivered generation request for a question already in a terminal state.
	ErrAlreadyCompleted = errors.New("question generation already completed")

	// ErrInFlight indicates another run currently holds the generation lease for the question.
	ErrInFlight = errors.New("question generation in flight")

	// ErrInvalidRequest indicates a malformed queue message or request.
	ErrInvalidRequest = errors.New("invalid request")
)

// CapabilityError reports a failed AI capability call or an unparseable response.
type CapabilityError struct {
	Op  string
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("ai capability %s: %v", e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// IsCapabilityError reports whether err wraps a CapabilityError.
func IsCapabilityError(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}
