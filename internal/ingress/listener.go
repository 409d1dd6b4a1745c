package ingress

import (
	"context"
	"errors"
	"net"

	"github.com/quic-go/quic-go"
)

// Attempt is an incoming connection whose handshake may still be in flight.
type Attempt interface {
	RemoteAddr() net.Addr
	// Handshake blocks until the handshake completed or failed.
	Handshake(ctx context.Context) (Session, error)
	CloseWithError(code quic.ApplicationErrorCode, reason string) error
}

// Incoming is the lazy, unbounded sequence of connection attempts on one endpoint.
// Accept returns an error once the sequence is exhausted.
type Incoming interface {
	Accept(ctx context.Context) (Attempt, error)
	Addr() net.Addr
	Close() error
}

// Listener is a bound QUIC endpoint.
type Listener struct {
	ln *quic.EarlyListener
}

// Listen binds a UDP socket at addr and starts accepting QUIC connections with
// cfg. Failure to bind yields a *BindError.
func Listen(addr string, cfg *EndpointConfig) (*Listener, error) {
	if cfg == nil || cfg.TLS == nil {
		return nil, &ConfigurationError{Err: errors.New("missing endpoint configuration")}
	}
	ln, err := quic.ListenAddrEarly(addr, cfg.TLS, cfg.QUIC)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	return &Listener{ln: ln}, nil
}

// Accept returns the next connection attempt. Attempts are returned as soon as
// the server has processed the ClientHello; the handshake is finished by
// Attempt.Handshake.
func (l *Listener) Accept(ctx context.Context) (Attempt, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return quicAttempt{conn: conn}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting connections. Established connections are unaffected.
func (l *Listener) Close() error {
	return l.ln.Close()
}

type quicAttempt struct {
	conn *quic.Conn
}

func (a quicAttempt) RemoteAddr() net.Addr { return a.conn.RemoteAddr() }

func (a quicAttempt) CloseWithError(code quic.ApplicationErrorCode, reason string) error {
	return a.conn.CloseWithError(code, reason)
}

func (a quicAttempt) Handshake(ctx context.Context) (Session, error) {
	select {
	case <-a.conn.HandshakeComplete():
		return quicSession{Conn: a.conn}, nil
	case <-a.conn.Context().Done():
		return nil, context.Cause(a.conn.Context())
	case <-ctx.Done():
		_ = a.conn.CloseWithError(CodeShutdown, "server shutting down")
		return nil, ctx.Err()
	}
}
