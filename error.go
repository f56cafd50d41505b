package webscrape

import (
	"errors"
	"fmt"
)

// Application error codes.
const (
	EINTERNAL = "internal"
	EINVALID  = "invalid"
	ENOTFOUND = "not_found"

	// Fetch failure classes.
	ETRANSPORT = "transport" // DNS, connect, TLS or timeout failure
	ECLIENT    = "client"    // HTTP 4xx
	ESERVER    = "server"    // HTTP 5xx
	EMISMATCH  = "mismatch"  // content failed validation
	EOVERSIZE  = "oversize"  // content exceeded the size limit
)

// ErrStop is returned by an Extractor to end the whole crawl.
// Workers drain and the crawl state is flushed one final time.
var ErrStop = errors.New("stop crawl")

// Error represents an application-specific error.
type Error struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("webscrape error: code=%s message=%s", e.Code, e.Message)
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return "Internal error".
func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error"
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsRetryable reports whether a fetch failure with this error should be
// attempted again.
func IsRetryable(err error) bool {
	switch ErrorCode(err) {
	case ETRANSPORT, ESERVER, EMISMATCH:
		return true
	}
	return false
}
