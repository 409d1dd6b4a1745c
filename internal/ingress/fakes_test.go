package ingress

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
)

var (
	errPeerClosed     = errors.New("peer closed connection")
	errIncomingClosed = errors.New("incoming closed")
	errStreamCanceled = errors.New("stream canceled")
)

type fakeAddr string

func (a fakeAddr) Network() string { return "udp" }
func (a fakeAddr) String() string  { return string(a) }

// fakeStream serves a fixed payload, or blocks until CancelRead when block is set.
type fakeStream struct {
	id    quic.StreamID
	r     io.Reader
	block bool

	mu        sync.Mutex
	cancelled []quic.StreamErrorCode
	once      sync.Once
	cancelCh  chan struct{}
}

func newFakeStream(id int64, payload []byte) *fakeStream {
	return &fakeStream{id: quic.StreamID(id), r: bytes.NewReader(payload), cancelCh: make(chan struct{})}
}

func newBlockingStream(id int64) *fakeStream {
	return &fakeStream{id: quic.StreamID(id), block: true, cancelCh: make(chan struct{})}
}

func (f *fakeStream) Read(p []byte) (int, error) {
	if f.block {
		<-f.cancelCh
		return 0, errStreamCanceled
	}
	return f.r.Read(p)
}

func (f *fakeStream) StreamID() quic.StreamID { return f.id }

func (f *fakeStream) CancelRead(code quic.StreamErrorCode) {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, code)
	f.mu.Unlock()
	f.once.Do(func() { close(f.cancelCh) })
}

func (f *fakeStream) cancelCodes() []quic.StreamErrorCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]quic.StreamErrorCode(nil), f.cancelled...)
}

type fakeSession struct {
	remote  net.Addr
	streams chan ReceiveStream
	ctx     context.Context
	cancel  context.CancelCauseFunc

	mu     sync.Mutex
	closed []quic.ApplicationErrorCode
}

func newFakeSession(remote string) *fakeSession {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &fakeSession{
		remote:  fakeAddr(remote),
		streams: make(chan ReceiveStream, 256),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (f *fakeSession) open(st ReceiveStream) { f.streams <- st }

func (f *fakeSession) closeFromPeer() { f.cancel(errPeerClosed) }

func (f *fakeSession) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	select {
	case st := <-f.streams:
		return st, nil
	default:
	}
	select {
	case st := <-f.streams:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.ctx.Done():
		return nil, context.Cause(f.ctx)
	}
}

func (f *fakeSession) Context() context.Context { return f.ctx }
func (f *fakeSession) RemoteAddr() net.Addr     { return f.remote }

func (f *fakeSession) CloseWithError(code quic.ApplicationErrorCode, reason string) error {
	f.mu.Lock()
	f.closed = append(f.closed, code)
	f.mu.Unlock()
	f.cancel(errors.New(reason))
	return nil
}

func (f *fakeSession) closeCodes() []quic.ApplicationErrorCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]quic.ApplicationErrorCode(nil), f.closed...)
}

type fakeAttempt struct {
	remote  net.Addr
	session *fakeSession
	err     error
}

func (a *fakeAttempt) RemoteAddr() net.Addr { return a.remote }

func (a *fakeAttempt) Handshake(ctx context.Context) (Session, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.session, nil
}

func (a *fakeAttempt) CloseWithError(code quic.ApplicationErrorCode, reason string) error {
	if a.session != nil {
		return a.session.CloseWithError(code, reason)
	}
	return nil
}

type fakeIncoming struct {
	attempts chan Attempt
	closed   chan struct{}
	once     sync.Once
}

func newFakeIncoming() *fakeIncoming {
	return &fakeIncoming{attempts: make(chan Attempt, 16), closed: make(chan struct{})}
}

func (f *fakeIncoming) connect(session *fakeSession) {
	f.attempts <- &fakeAttempt{remote: session.remote, session: session}
}

func (f *fakeIncoming) reject(remote string, err error) {
	f.attempts <- &fakeAttempt{remote: fakeAddr(remote), err: err}
}

func (f *fakeIncoming) Accept(ctx context.Context) (Attempt, error) {
	select {
	case a := <-f.attempts:
		return a, nil
	case <-f.closed:
		return nil, errIncomingClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeIncoming) Addr() net.Addr { return fakeAddr("fake:4433") }

func (f *fakeIncoming) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type packet struct {
	payload []byte
	id      ConnID
	conn    *Conn
}

// collector records every dispatched packet.
type collector struct {
	ch chan packet
}

func newCollector() *collector {
	return &collector{ch: make(chan packet, 1024)}
}

func (c *collector) Dispatch(_ context.Context, payload []byte, conn *Conn, id ConnID) error {
	c.ch <- packet{payload: payload, id: id, conn: conn}
	return nil
}

// wait returns exactly n packets or fails the test.
func (c *collector) wait(t *testing.T, n int) []packet {
	t.Helper()
	out := make([]packet, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case p := <-c.ch:
			out = append(out, p)
		case <-deadline:
			t.Fatalf("received %d packets, want %d", len(out), n)
		}
	}
	return out
}

// none asserts nothing more is dispatched within d.
func (c *collector) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case p := <-c.ch:
		t.Fatalf("unexpected extra packet of %d bytes from %s", len(p.payload), p.id)
	case <-time.After(d):
	}
}

// errorSink collects errors passed to ServerOptions.OnError.
type errorSink struct {
	ch chan error
}

func newErrorSink() *errorSink { return &errorSink{ch: make(chan error, 64)} }

func (e *errorSink) record(err error) { e.ch <- err }

func (e *errorSink) next(t *testing.T) error {
	t.Helper()
	select {
	case err := <-e.ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("no error reported")
		return nil
	}
}
