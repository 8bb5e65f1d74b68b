package repo

import "errors"

var (
	// ErrStorage wraps every failure of the backing store
	ErrStorage = errors.New("storage error")
	// ErrCodeMismatch is returned when no pending code matches the one submitted
	ErrCodeMismatch = errors.New("no matching pending code")
	// ErrInvalidReport is returned when a report has non-finite coordinates
	ErrInvalidReport = errors.New("invalid report")
)
