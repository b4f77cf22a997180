package client

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a room operation is attempted before
// the connection exists. Callers connect first; joins are never queued.
var ErrNotConnected = errors.New("transport not connected")

// ErrUnauthorized means the server rejected our bearer token. The cached
// token is invalidated and the caller must re-authenticate.
var ErrUnauthorized = errors.New("unauthorized")

// ConnectionError means the transport was unreachable or the handshake was
// rejected after the bounded retry policy gave up.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("connection failed: %s", e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RoomUnavailableError means the appointment has no consultation room
// provisioned. Terminal for the current attempt; the caller offers a
// retry-fetch.
type RoomUnavailableError struct {
	AppointmentID int
}

func (e *RoomUnavailableError) Error() string {
	return fmt.Sprintf("no consultation room for appointment %d", e.AppointmentID)
}

// SendFailure means a message transmission failed after the room was
// joined. The optimistic entry has been rolled back and the input text is
// recoverable from the compose state; nothing is lost or duplicated.
type SendFailure struct {
	CorrelationID string
	Err           error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send failed (%s): %v", e.CorrelationID, e.Err)
}

func (e *SendFailure) Unwrap() error { return e.Err }
