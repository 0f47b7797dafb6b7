// Package failure maps raw failures from the backend client and the task
// poller into the small, closed set of categories the workflow exposes to
// users. The workflow stores only a category and a human message; it never
// keeps raw transport errors.
package failure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
)

// Category is a user-facing error class.
type Category string

const (
	InvalidInput   Category = "invalid_input"
	RemoteRejected Category = "remote_rejected"
	NetworkFailure Category = "network_failure"
	Busy           Category = "busy"
	AlreadyPolling Category = "already_polling"
	Unknown        Category = "unknown"
)

// String returns a human-readable name for the category.
func (c Category) String() string {
	switch c {
	case InvalidInput:
		return "Invalid input"
	case RemoteRejected:
		return "Rejected by server"
	case NetworkFailure:
		return "Network failure"
	case Busy:
		return "Busy"
	case AlreadyPolling:
		return "Already polling"
	default:
		return "Unknown error"
	}
}

// Error is a categorized failure.
type Error struct {
	Category Category `json:"category" yaml:"category"`
	Message  string   `json:"message,omitempty" yaml:"message,omitempty"`

	// Err is the underlying cause. It is never shown to users.
	Err error `json:"-" yaml:"-"`
}

// New creates a categorized error with a message.
func New(cat Category, msg string) *Error {
	return &Error{Category: cat, Message: msg}
}

// Newf creates a categorized error with a formatted message.
func Newf(cat Category, format string, args ...any) *Error {
	return &Error{Category: cat, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a category and message to an underlying error.
func Wrap(cat Category, msg string, err error) *Error {
	return &Error{Category: cat, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Category.String()
	}
	return fmt.Sprintf("%s: %s", e.Category.String(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports category equality so errors.Is(err, failure.New(failure.Busy, ""))
// matches any Busy error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Category == e.Category
}

// Classify returns the category for err. Nil errors classify as Unknown.
func Classify(err error) Category {
	if err == nil {
		return Unknown
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe.Category
	}

	if isNetwork(err) {
		return NetworkFailure
	}
	return Unknown
}

// Report normalizes any error into a categorized error with a message safe to
// show to users. Already-categorized errors are returned as-is.
func Report(err error) *Error {
	if err == nil {
		return nil
	}

	var fe *Error
	if errors.As(err, &fe) {
		if fe.Message == "" {
			return &Error{Category: fe.Category, Message: defaultMessage(fe.Category), Err: fe.Err}
		}
		return fe
	}

	cat := Classify(err)
	return &Error{Category: cat, Message: defaultMessage(cat), Err: err}
}

// Is reports whether err belongs to the given category.
func Is(err error, cat Category) bool {
	return err != nil && Classify(err) == cat
}

func defaultMessage(cat Category) string {
	switch cat {
	case InvalidInput:
		return "the input is not valid"
	case RemoteRejected:
		return "the server declined the request"
	case NetworkFailure:
		return "could not reach the server"
	case Busy:
		return "another operation is in progress"
	case AlreadyPolling:
		return "a job is already being monitored"
	default:
		return "an unexpected error occurred"
	}
}

func isNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
