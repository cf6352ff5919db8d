package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrInvalidInput            = errors.New("invalid input")
	ErrEnqueueFailed           = errors.New("enqueue failed")
	ErrProviderSubmitFailed    = errors.New("provider submit failed")
	ErrProviderTimeout         = errors.New("provider timeout")
	ErrProviderReportedFailure = errors.New("provider reported failure")
	ErrPersistenceFailed       = errors.New("persistence failed")
)

// InvalidInput wraps ErrInvalidInput with a reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ProviderFailure carries the provider's own failure message untouched so it
// can be stored on the job verbatim.
type ProviderFailure struct {
	Message string
}

func (e *ProviderFailure) Error() string {
	return e.Message
}

func (e *ProviderFailure) Is(target error) bool {
	return target == ErrProviderReportedFailure
}

// FailureMessage renders err as the message stored on a failed job.
func FailureMessage(err error) string {
	var pf *ProviderFailure
	if errors.As(err, &pf) {
		if pf.Message == "" {
			return "provider reported failure"
		}
		return pf.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
