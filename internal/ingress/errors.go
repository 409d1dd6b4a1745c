package ingress

import (
	"errors"
	"fmt"
)

// ErrPacketTooLarge is reported when a stream carries more than the packet limit.
var ErrPacketTooLarge = errors.New("packet exceeds size limit")

// ErrServerClosed is returned by Serve when called after Shutdown.
var ErrServerClosed = errors.New("ingress: server closed")

// ConfigurationError reports unusable identity material. It is fatal at startup.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid endpoint configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// BindError reports that the UDP endpoint could not be bound. It is fatal at startup.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// HandshakeError reports a connection attempt that failed before it was established.
type HandshakeError struct {
	RemoteAddr string
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake with %s failed: %v", e.RemoteAddr, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// StreamAcceptError reports why a connection stopped yielding streams.
type StreamAcceptError struct {
	ConnID ConnID
	Err    error
}

func (e *StreamAcceptError) Error() string {
	return fmt.Sprintf("%s: accept stream: %v", e.ConnID, e.Err)
}

func (e *StreamAcceptError) Unwrap() error { return e.Err }

// StreamReadError reports a stream that could not be read within the limit.
type StreamReadError struct {
	ConnID   ConnID
	StreamID int64
	Err      error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("%s: read stream %d: %v", e.ConnID, e.StreamID, e.Err)
}

func (e *StreamReadError) Unwrap() error { return e.Err }

// DispatchError wraps an error returned (or a panic raised) by the Dispatcher.
type DispatchError struct {
	ConnID   ConnID
	StreamID int64
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: dispatch stream %d: %v", e.ConnID, e.StreamID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
