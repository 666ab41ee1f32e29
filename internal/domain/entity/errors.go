package entity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTargetNotFound = errors.New("target not found")
	ErrAlreadyExists  = errors.New("generation already completed for target")
	ErrPrecondition   = errors.New("generation precondition failed")
	ErrRecordNotFound = errors.New("generation record not found")
	ErrInvalidInput   = errors.New("invalid generation request")
)

// ClientErrorKind classifies a failed provider call.
type ClientErrorKind int

const (
	ClientErrorOther ClientErrorKind = iota
	ClientErrorRateLimited
	ClientErrorTimedOut
	ClientErrorContentFiltered
	ClientErrorInvalidRequest
)

func (k ClientErrorKind) String() string {
	switch k {
	case ClientErrorRateLimited:
		return "rate_limited"
	case ClientErrorTimedOut:
		return "timed_out"
	case ClientErrorContentFiltered:
		return "content_filtered"
	case ClientErrorInvalidRequest:
		return "invalid_request"
	default:
		return "other"
	}
}

// ClientError is the only error type returned by the generation client.
type ClientError struct {
	Kind    ClientErrorKind
	Message string
	Err     error
}

func NewClientError(kind ClientErrorKind, msg string, err error) *ClientError {
	return &ClientError{Kind: kind, Message: msg, Err: err}
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClientError) Unwrap() error { return e.Err }

// Retryable reports whether the client's own retry loop may try again.
func (e *ClientError) Retryable() bool {
	switch e.Kind {
	case ClientErrorContentFiltered, ClientErrorInvalidRequest:
		return false
	default:
		return true
	}
}

// StructuralError reports a parsed document that lacks required sections or fields.
type StructuralError struct {
	Section string
	Missing []string
	Reason  string
}

func (e *StructuralError) Error() string {
	switch {
	case len(e.Missing) > 0 && e.Section == "":
		return "missing required sections: " + strings.Join(e.Missing, ", ")
	case len(e.Missing) > 0:
		return fmt.Sprintf("section %s missing required fields: %s", e.Section, strings.Join(e.Missing, ", "))
	default:
		return fmt.Sprintf("section %s: %s", e.Section, e.Reason)
	}
}

// ParseError reports provider text that is not a JSON object.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse generated content: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// GenerationFailedError is returned after the record was persisted as failed.
type GenerationFailedError struct {
	TargetID string
	Attempts int
	Err      error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation failed for target %s after %d attempt(s): %v", e.TargetID, e.Attempts, e.Err)
}

func (e *GenerationFailedError) Unwrap() error { return e.Err }
