package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{
		logger: logger,
	}
}

// NewConsoleWriter returns a human-friendly writer for interactive use.
func NewConsoleWriter(output io.Writer) io.Writer {
	if output == nil {
		output = os.Stderr
	}
	return zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
}

// NopLogger returns a logger that discards everything.
func NopLogger() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// WithLevel returns a copy of the logger filtered at the named level
// (trace, debug, info, warn, error). An empty level keeps the current one.
func (l *Logger) WithLevel(level string) (*Logger, error) {
	if strings.TrimSpace(level) == "" {
		return l, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, err
	}
	return &Logger{logger: l.logger.Level(lvl)}, nil
}

// WithConn adds connection_id context to logger.
func (l *Logger) WithConn(connID uint64) *Logger {
	return &Logger{
		logger: l.logger.With().Uint64("connection_id", connID).Logger(),
	}
}

// WithPeer adds remote_addr context to logger.
func (l *Logger) WithPeer(remoteAddr string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("remote_addr", remoteAddr).Logger(),
	}
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// ListenerStarted logs that the QUIC endpoint is bound.
func (l *Logger) ListenerStarted(addr string, keepAlive, idleTimeout time.Duration) {
	l.logger.Info().
		Str("listen_addr", addr).
		Dur("keep_alive", keepAlive).
		Dur("idle_timeout", idleTimeout).
		Msg("quic listening started")
}

// ListenerStopped logs the end of the accept loop.
func (l *Logger) ListenerStopped(addr string) {
	l.logger.Info().
		Str("listen_addr", addr).
		Msg("quic listening stopped")
}

// The connection and stream events below expect a logger scoped with
// WithConn and, where known, WithPeer.

// ConnectionAccepted logs a completed handshake.
func (l *Logger) ConnectionAccepted() {
	l.logger.Info().Msg("quic connection accepted")
}

// HandshakeFailed logs a connection attempt that never became established.
func (l *Logger) HandshakeFailed(err error) {
	l.logger.Error().Err(err).Msg("quic handshake failed")
}

// ConnectionClosed logs the end of a connection's stream loop.
func (l *Logger) ConnectionClosed(streams int64, lifetime time.Duration, reason error) {
	ev := l.logger.Info().
		Int64("streams", streams).
		Float64("lifetime_seconds", lifetime.Seconds())
	if reason != nil {
		ev = ev.Str("reason", reason.Error())
	}
	ev.Msg("quic connection closed")
}

// StreamReadFailed logs a stream that could not be read to completion.
func (l *Logger) StreamReadFailed(streamID int64, err error) {
	l.logger.Error().
		Int64("stream_id", streamID).
		Err(err).
		Msg("stream read failed")
}

// PacketDispatched logs a packet handed to the dispatcher.
func (l *Logger) PacketDispatched(streamID int64, size int, elapsed time.Duration) {
	l.logger.Debug().
		Int64("stream_id", streamID).
		Int("packet_size", size).
		Dur("elapsed", elapsed).
		Msg("packet dispatched")
}

// DispatchFailed logs a dispatcher error for one packet.
func (l *Logger) DispatchFailed(streamID int64, size int, err error) {
	l.logger.Error().
		Int64("stream_id", streamID).
		Int("packet_size", size).
		Err(err).
		Msg("packet dispatch failed")
}

// PacketDigest logs the digest of a processed packet.
func (l *Logger) PacketDigest(packetID, digest string, size int) {
	l.logger.Debug().
		Str("packet_id", packetID).
		Str("blake3", digest).
		Int("packet_size", size).
		Msg("packet received")
}

// Helper function to get hostname.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
