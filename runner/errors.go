package runner

import (
	"errors"
	"fmt"

	"github.com/dhcgn/mail-merge/stats"
)

var (
	ErrNoValidContacts     = errors.New("no valid contacts: add at least one row with an email address")
	ErrTemplateInvalid     = errors.New("template has errors")
	ErrWarningsDeclined    = errors.New("template warnings not accepted")
	ErrReplySubjectMissing = errors.New("reply mode needs the original subject in the template sheet")
	ErrCancelled           = errors.New("cancelled")
	ErrInvalidTestAddress  = errors.New("invalid test address")

	// Abort causes, wrapped in *AbortError.
	ErrSendFailed  = errors.New("send failed")
	ErrNoThread    = errors.New("no thread found for reply")
	ErrReplyFailed = errors.New("reply failed")
)

// AbortError stops a batch at one contact. Rows after it are left untouched.
type AbortError struct {
	// Reason is one of ErrSendFailed, ErrNoThread, ErrReplyFailed or
	// ErrCancelled.
	Reason  error
	Cause   error
	Row     int
	Email   string
	Summary stats.Summary
}

func (e *AbortError) Error() string {
	msg := fmt.Sprintf("%v at row %d", e.Reason, e.Row)
	if e.Email != "" {
		msg += " (" + e.Email + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AbortError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Cause}
}
