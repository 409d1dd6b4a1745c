package ingress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/unigate/backend/internal/observability"
)

// ReadPacket reads r to EOF and returns its content. It never buffers more
// than limit+1 bytes: a reader holding more than limit bytes yields
// ErrPacketTooLarge instead of a truncated payload. A non-positive limit
// means MaxPacketSize.
func ReadPacket(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = MaxPacketSize
	}
	buf, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(buf) > limit {
		return nil, ErrPacketTooLarge
	}
	return buf, nil
}

// readStream reads one stream and dispatches its payload. Every failure is
// contained here; nothing is retried.
func (s *Server) readStream(conn *Conn, stream ReceiveStream, log *observability.Logger) {
	streamID := int64(stream.StreamID())
	s.metrics.RecordStreamOpen()

	ctx, span := s.tracer.Start(s.taskCtx, "ingress.stream", trace.WithAttributes(
		attribute.Int64("unigate.connection_id", int64(conn.id)),
		attribute.Int64("quic.stream_id", streamID),
	))
	defer span.End()

	abort := context.AfterFunc(ctx, func() { stream.CancelRead(StreamCodeShutdown) })
	payload, err := ReadPacket(stream, s.opts.MaxPacketSize)
	abort()
	if err != nil {
		if errors.Is(err, ErrPacketTooLarge) {
			stream.CancelRead(StreamCodeTooLarge)
		}
		rerr := &StreamReadError{ConnID: conn.id, StreamID: streamID, Err: err}
		span.RecordError(rerr)
		span.SetStatus(codes.Error, "read failed")
		log.StreamReadFailed(streamID, err)
		s.metrics.RecordStreamDone(observability.StreamReadFailed)
		s.reportError(rerr)
		return
	}

	size := len(payload)
	span.SetAttributes(attribute.Int("unigate.packet_size", size))
	s.metrics.RecordPacket(size)

	start := time.Now()
	err = s.dispatch(ctx, payload, conn)
	elapsed := time.Since(start)
	s.metrics.RecordDispatch(elapsed.Seconds())
	if err != nil {
		derr := &DispatchError{ConnID: conn.id, StreamID: streamID, Err: err}
		span.RecordError(derr)
		span.SetStatus(codes.Error, "dispatch failed")
		log.DispatchFailed(streamID, size, err)
		s.metrics.RecordStreamDone(observability.StreamDispatchFailed)
		s.reportError(derr)
		return
	}
	log.PacketDispatched(streamID, size, elapsed)
	s.metrics.RecordStreamDone(observability.StreamDispatched)
}

// dispatch calls the dispatcher, turning a panic into an error so one packet
// cannot take the process down.
func (s *Server) dispatch(ctx context.Context, payload []byte, conn *Conn) (err error) {
	ctx, span := s.tracer.Start(ctx, "ingress.dispatch")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panic: %v", r)
		}
	}()
	return s.dispatcher.Dispatch(ctx, payload, conn, conn.id)
}
