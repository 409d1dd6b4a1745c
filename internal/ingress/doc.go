// Package ingress accepts QUIC connections and turns every inbound
// unidirectional stream into one packet for a Dispatcher.
//
// The topology is a fan-out of goroutines:
//
//	Listener ─▶ Server.Serve ─▶ one goroutine per connection ─▶ one goroutine per stream ─▶ Dispatcher
//
// Serve never waits for a connection, a connection never waits for one of its
// streams, and a failure is contained at the narrowest scope it occurs in:
// a bad stream does not affect its siblings, a failed handshake does not stop
// the accept loop. Each stream is read to end-of-stream with a fixed upper
// bound (MaxPacketSize by default) so a single peer cannot make one read
// allocate more than that.
//
// Fan-out is unbounded unless ServerOptions sets MaxConnections or
// MaxStreamsPerConn. Server.Shutdown drains in-flight streams before closing
// the remaining connections.
package ingress
