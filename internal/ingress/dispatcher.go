package ingress

import "context"

// Dispatcher performs application-level processing of one packet.
//
// Dispatch is called once per stream that was read successfully, from that
// stream's goroutine, so implementations must be safe for concurrent use.
// payload is owned by the callee. A returned error is logged and otherwise
// ignored.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload []byte, conn *Conn, id ConnID) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, payload []byte, conn *Conn, id ConnID) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, payload []byte, conn *Conn, id ConnID) error {
	return f(ctx, payload, conn, id)
}
