package client

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by Client matches exactly one of them
// with errors.Is.
var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrRequestFailed      = errors.New("request failed")
	ErrDecodeFailed       = errors.New("decode failed")
	ErrNotFound           = errors.New("not found")
)

// Error describes a failed call to the task server.
type Error struct {
	Op         string // client method, e.g. "toggle complete"
	TaskID     string
	StatusCode int // 0 when no response was received
	Kind       error
	Err        error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.TaskID != "" {
		msg += " " + e.TaskID
	}
	msg += ": " + e.Kind.Error()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
