package model

import (
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned when a send is attempted with blank text.
var ErrEmptyMessage = errors.New("message text is empty")

// AuthenticationError means no usable credential is available. It is fatal
// for messaging: the user has to log in again.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "authentication required: please log in"
	}
	return fmt.Sprintf("authentication required: please log in: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TransportError is a handshake or connection failure of the realtime
// transport. It is recoverable by reconnecting.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotConnectedError is returned by realtime operations attempted while no
// session is established.
type NotConnectedError struct {
	Op string
}

func (e *NotConnectedError) Error() string {
	if e.Op == "" {
		return "not connected"
	}
	return fmt.Sprintf("%s: not connected", e.Op)
}

// HistoryFetchError is a failed conversation history load.
type HistoryFetchError struct {
	UserID int64
	PeerID int64
	Err    error
}

func (e *HistoryFetchError) Error() string {
	return fmt.Sprintf("load conversation %d<->%d: %v", e.UserID, e.PeerID, e.Err)
}

func (e *HistoryFetchError) Unwrap() error { return e.Err }

// SendFailure is a failed send of an optimistic message. LocalID names the
// entry left in the conversation with status failed.
type SendFailure struct {
	LocalID string
	Err     error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send message %s: %v", e.LocalID, e.Err)
}

func (e *SendFailure) Unwrap() error { return e.Err }

// IsAuthentication reports whether err carries an AuthenticationError.
func IsAuthentication(err error) bool {
	var e *AuthenticationError
	return errors.As(err, &e)
}

// IsNotConnected reports whether err carries a NotConnectedError.
func IsNotConnected(err error) bool {
	var e *NotConnectedError
	return errors.As(err, &e)
}
