package tts

import (
	"errors"
	"fmt"
)

// PermanentError marks a failure that retrying will not fix, such as a
// missing key or a rejected request.
type PermanentError struct {
	Provider string
	Err      error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *PermanentError) Unwrap() error   { return e.Err }
func (e *PermanentError) Permanent() bool { return true }

func permanent(provider, format string, args ...any) error {
	return &PermanentError{Provider: provider, Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err, or any error it wraps, is permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
