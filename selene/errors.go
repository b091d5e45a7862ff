package selene

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the selene binary is missing or cannot be executed.
	ErrNotFound = errors.New("selene executable not found")
	// ErrMalformedOutput means stdout was not a sequence of valid records.
	ErrMalformedOutput = errors.New("malformed selene output")
	// ErrUnknownSeverity is a contract violation by selene, never a user error.
	ErrUnknownSeverity = errors.New("unknown selene severity")
	// ErrTimeout means selene did not finish within the configured timeout.
	ErrTimeout = errors.New("selene timed out")
	// ErrFailed means selene exited unsuccessfully without producing output.
	ErrFailed = errors.New("selene failed")
	// ErrResource covers temporary file and pipe setup failures.
	ErrResource = errors.New("could not prepare selene input")
)

// Error describes a failed invocation of selene.
type Error struct {
	Op     string
	Err    error
	Stderr string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("selene %s: %s", e.Op, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsDefect reports whether err means this package and selene disagree on
// the output contract.
func IsDefect(err error) bool {
	return errors.Is(err, ErrUnknownSeverity)
}
