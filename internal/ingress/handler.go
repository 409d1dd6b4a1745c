package ingress

import (
	"context"
	"sync"
	"time"

	"github.com/unigate/backend/internal/observability"
)

// handleConnection owns one connection's stream loop. It spawns a reader per
// stream without waiting for it and returns once the connection stops
// yielding streams. On a peer-driven exit the connection is left to the
// transport; during Shutdown it is closed after its readers finished.
func (s *Server) handleConnection(conn *Conn, log *observability.Logger) {
	s.conns.Store(conn.id, conn)
	defer s.conns.Delete(conn.id)

	var slots chan struct{}
	if s.opts.MaxStreamsPerConn > 0 {
		slots = make(chan struct{}, s.opts.MaxStreamsPerConn)
	}

	var readers sync.WaitGroup
	var reason error
	for {
		stream, err := s.nextStream(conn, slots)
		if err != nil {
			reason = &StreamAcceptError{ConnID: conn.id, Err: err}
			break
		}
		conn.streams.Add(1)
		readers.Add(1)
		go func() {
			defer readers.Done()
			if slots != nil {
				defer func() { <-slots }()
			}
			s.readStream(conn, stream, log)
		}()
	}

	lifetime := time.Since(conn.established)
	log.ConnectionClosed(conn.Streams(), lifetime, reason)
	s.metrics.RecordConnectionClose(lifetime.Seconds())

	readers.Wait()
	if s.acceptCtx.Err() != nil && conn.Context().Err() == nil {
		_ = conn.CloseWithError(CodeShutdown, "server shutting down")
	}
}

// nextStream waits for a free reader slot (when bounded) and the next stream.
func (s *Server) nextStream(conn *Conn, slots chan struct{}) (ReceiveStream, error) {
	if slots != nil {
		select {
		case slots <- struct{}{}:
		case <-s.acceptCtx.Done():
			return nil, s.acceptCtx.Err()
		case <-conn.Context().Done():
			return nil, context.Cause(conn.Context())
		}
	}
	stream, err := conn.session.AcceptUniStream(s.acceptCtx)
	if err != nil {
		if slots != nil {
			<-slots
		}
		return nil, err
	}
	return stream, nil
}
