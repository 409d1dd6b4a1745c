package ingress

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
)

// ConnID is a process-local identifier, unique for the lifetime of the process.
type ConnID uint64

var lastConnID atomic.Uint64

func nextConnID() ConnID { return ConnID(lastConnID.Add(1)) }

func (id ConnID) String() string { return "conn-" + strconv.FormatUint(uint64(id), 10) }

// ReceiveStream is the read side of one unidirectional stream.
type ReceiveStream interface {
	io.Reader
	StreamID() quic.StreamID
	CancelRead(quic.StreamErrorCode)
}

// Session is an established connection as seen by the handlers. Implementations
// must be safe for concurrent use; *quic.Conn is, via quicSession.
type Session interface {
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)
	Context() context.Context
	RemoteAddr() net.Addr
	CloseWithError(code quic.ApplicationErrorCode, reason string) error
}

type quicSession struct {
	*quic.Conn
}

func (s quicSession) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	st, err := s.Conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Conn is the handle shared by a connection's handler and all of its stream
// readers. Every field is immutable after construction except the stream
// counter, so the pointer can be passed between goroutines freely.
type Conn struct {
	id          ConnID
	session     Session
	established time.Time
	streams     atomic.Int64
}

func newConn(id ConnID, session Session) *Conn {
	return &Conn{id: id, session: session, established: time.Now()}
}

// ID returns the connection's process-local identifier.
func (c *Conn) ID() ConnID { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.session.RemoteAddr() }

// Context is cancelled when the connection is closed.
func (c *Conn) Context() context.Context { return c.session.Context() }

// Session exposes the underlying session, e.g. to open streams back to the peer.
func (c *Conn) Session() Session { return c.session }

// QUIC returns the quic-go connection, or nil when the session is not backed by one.
func (c *Conn) QUIC() *quic.Conn {
	if qs, ok := c.session.(quicSession); ok {
		return qs.Conn
	}
	return nil
}

// Established returns when the handshake completed.
func (c *Conn) Established() time.Time { return c.established }

// Streams returns how many streams have been accepted on this connection so far.
func (c *Conn) Streams() int64 { return c.streams.Load() }

// CloseWithError closes the connection with an application error code.
func (c *Conn) CloseWithError(code quic.ApplicationErrorCode, reason string) error {
	return c.session.CloseWithError(code, reason)
}

func addrString(a net.Addr) string {
	if a == nil {
		return "unknown"
	}
	return a.String()
}
