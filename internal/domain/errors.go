package domain

import "errors"

// Sentinel errors used throughout the application.
// The HTTP layer translates these to status codes via a single mapError function.
var (
	ErrNotFound         = errors.New("not found")
	ErrQueueUnavailable = errors.New("queue store unavailable")
	ErrUnknownJobType   = errors.New("no handler registered for job type")
	ErrQueueMismatch    = errors.New("job type does not belong to this queue")
	ErrInvalidPayload   = errors.New("payload failed validation for its job type")
	ErrNotActive        = errors.New("job is not active")
	ErrNotCancellable   = errors.New("job cannot be cancelled in its current state")
	ErrInvalidChannel   = errors.New("invalid channel: must be push, email, sms, or websocket")
	ErrInvalidPriority  = errors.New("invalid priority: must be high, normal, or low")
	ErrInvalidType      = errors.New("unknown notification type")
	ErrMissingContent   = errors.New("type, title and message are required")
	ErrNoChannels       = errors.New("at least one channel is required")
	ErrNoRecipients     = errors.New("at least one recipient is required")
	ErrDeviceFields     = errors.New("user_id, device_id, token and platform are required")
)

// PermanentError marks a handler failure that must not be retried.
// The queue dead-letters the job immediately, skipping remaining attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the worker pool dead-letters instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
