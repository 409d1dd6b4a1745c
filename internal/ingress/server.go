package ingress

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/quic-go/quic-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/unigate/backend/internal/observability"
	"github.com/unigate/backend/internal/ratelimit"
)

const (
	// CodeShutdown closes connections and aborts reads during Shutdown.
	CodeShutdown quic.ApplicationErrorCode = 0x0
	// StreamCodeTooLarge is sent to a peer whose stream exceeded the packet limit.
	StreamCodeTooLarge quic.StreamErrorCode = 0x1
	// StreamCodeShutdown aborts reads still running when the shutdown grace expires.
	StreamCodeShutdown quic.StreamErrorCode = 0x2

	// DefaultShutdownGrace bounds how long ListenAndServe drains on exit.
	DefaultShutdownGrace = 5 * time.Second
)

// ServerOptions tunes a Server. The zero value serves with the defaults:
// MaxPacketSize bytes per stream and unbounded fan-out.
type ServerOptions struct {
	// MaxPacketSize caps one stream's payload. Zero means MaxPacketSize.
	MaxPacketSize int
	// MaxConnections caps concurrently served connections. Zero is unbounded.
	MaxConnections int
	// MaxStreamsPerConn caps concurrently read streams per connection. Zero is unbounded.
	MaxStreamsPerConn int
	// AcceptRate limits new connection attempts per second. Zero disables it.
	AcceptRate  float64
	AcceptBurst int
	// ShutdownGrace is how long callers should let Shutdown drain; see
	// Server.ShutdownGrace. Zero means DefaultShutdownGrace.
	ShutdownGrace time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
	// OnError, if set, receives every error contained by the server:
	// *HandshakeError, *StreamReadError and *DispatchError.
	OnError func(error)
}

// Server runs the accept loop and the per-connection and per-stream goroutines.
type Server struct {
	incoming   Incoming
	dispatcher Dispatcher
	opts       ServerOptions
	logger     *observability.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer
	limiter    *ratelimit.TokenBucket
	connSlots  chan struct{}

	conns *xsync.MapOf[ConnID, *Conn]

	// acceptCtx ends when Shutdown starts: no new connections or streams.
	acceptCtx  context.Context
	stopAccept context.CancelFunc
	// taskCtx ends when the shutdown grace expires: in-flight reads abort.
	taskCtx    context.Context
	abortTasks context.CancelFunc

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
	serving atomic.Bool
}

// NewServer creates a server that dispatches every stream accepted from
// incoming to d.
func NewServer(incoming Incoming, d Dispatcher, opts ServerOptions) *Server {
	if opts.MaxPacketSize <= 0 {
		opts.MaxPacketSize = MaxPacketSize
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	s := &Server{
		incoming:   incoming,
		dispatcher: d,
		opts:       opts,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		tracer:     otel.Tracer("github.com/unigate/backend/internal/ingress"),
		limiter:    ratelimit.NewTokenBucket(opts.AcceptRate, opts.AcceptBurst),
		conns:      xsync.NewMapOf[ConnID, *Conn](),
	}
	if opts.MaxConnections > 0 {
		s.connSlots = make(chan struct{}, opts.MaxConnections)
	}
	s.acceptCtx, s.stopAccept = context.WithCancel(context.Background())
	s.taskCtx, s.abortTasks = context.WithCancel(context.Background())
	return s
}

// Serve accepts connection attempts until the incoming sequence is exhausted
// or ctx is done. Each attempt is handshaked and served on its own goroutine;
// Serve never waits for them. A failed handshake is logged and does not stop
// the loop. Serve returns nil when the sequence ends, and ErrServerClosed if
// Shutdown was already called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.acceptCtx, cancel)
	defer stop()

	s.serving.Store(true)
	defer s.serving.Store(false)

	for {
		if err := s.limiter.Wait(ctx, 1); err != nil {
			break
		}
		if !s.acquireConnSlot(ctx) {
			break
		}
		attempt, err := s.incoming.Accept(ctx)
		if err != nil {
			s.releaseConnSlot()
			if ctx.Err() == nil && !errors.Is(err, quic.ErrServerClosed) {
				s.logger.Error(err, "quic accept failed")
			}
			break
		}
		if !s.track() {
			s.releaseConnSlot()
			_ = attempt.CloseWithError(CodeShutdown, "server shutting down")
			break
		}
		go s.serveAttempt(attempt)
	}

	s.logger.ListenerStopped(addrString(s.incoming.Addr()))
	return nil
}

// track registers one more goroutine with the drain group unless shutdown began.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) serveAttempt(attempt Attempt) {
	defer s.wg.Done()
	defer s.releaseConnSlot()

	remote := addrString(attempt.RemoteAddr())
	ctx, span := s.tracer.Start(s.acceptCtx, "ingress.handshake",
		trace.WithAttributes(attribute.String("net.peer.addr", remote)))
	session, err := attempt.Handshake(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake failed")
		span.End()
		if s.acceptCtx.Err() != nil {
			// aborted by Shutdown, not by the peer
			return
		}
		herr := &HandshakeError{RemoteAddr: remote, Err: err}
		s.metrics.RecordHandshake(false)
		s.logger.WithPeer(remote).HandshakeFailed(herr)
		s.reportError(herr)
		return
	}

	conn := newConn(nextConnID(), session)
	span.SetAttributes(attribute.Int64("unigate.connection_id", int64(conn.id)))
	span.End()

	log := s.logger.WithConn(uint64(conn.id))
	s.metrics.RecordHandshake(true)
	log.WithPeer(remote).ConnectionAccepted()
	s.handleConnection(conn, log)
}

func (s *Server) acquireConnSlot(ctx context.Context) bool {
	if s.connSlots == nil {
		return true
	}
	select {
	case s.connSlots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) releaseConnSlot() {
	if s.connSlots != nil {
		<-s.connSlots
	}
}

func (s *Server) reportError(err error) {
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

// ActiveConnections returns the number of connections currently being served.
func (s *Server) ActiveConnections() int {
	return s.conns.Size()
}

// Serving reports whether the accept loop is running.
func (s *Server) Serving() bool {
	return s.serving.Load()
}

// ShutdownGrace returns the drain period configured for this server.
func (s *Server) ShutdownGrace() time.Duration {
	return s.opts.ShutdownGrace
}

// Addr returns the address of the underlying endpoint.
func (s *Server) Addr() string {
	return addrString(s.incoming.Addr())
}

// Shutdown stops accepting connections and streams, then waits for in-flight
// streams to be read and dispatched. If ctx expires first, remaining reads are
// aborted, remaining connections are closed and Shutdown returns ctx.Err()
// without waiting further. A dispatcher that ignores its context may still be
// running at that point.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.stopAccept()
	if err := s.incoming.Close(); err != nil && !errors.Is(err, quic.ErrServerClosed) {
		s.logger.Error(err, "failed to close quic listener")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.abortTasks()
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown grace period expired, aborting in-flight streams")
		s.abortTasks()
		s.conns.Range(func(_ ConnID, c *Conn) bool {
			_ = c.CloseWithError(CodeShutdown, "server shutting down")
			return true
		})
		return ctx.Err()
	}
}
