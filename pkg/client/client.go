// Package client holds the two transports: the WebSocket command channel to
// the antenna controller and the UDP telemetry listener for the logger.
package client

import (
	"errors"
	"fmt"
)

// ErrNotConnected is the cause of a send attempted without an open connection.
var ErrNotConnected = errors.New("not connected")

// ErrDisabled is returned by Send on a channel configured as disabled. Nothing
// is transmitted and no send failure is reported.
var ErrDisabled = errors.New("command channel disabled")

// TransportError reports a connect, bind or write failure. It is never fatal.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SendFailedError reports a message that was not transmitted.
type SendFailedError struct {
	Reason string
	Err    error
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("send failed: %s", e.Reason)
}

func (e *SendFailedError) Unwrap() error {
	return e.Err
}
