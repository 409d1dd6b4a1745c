package ingress

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/quic-go/quic-go"
	"github.com/unigate/backend/internal/quicutil"
)

// Dial connects to an ingress endpoint. A nil tlsConf uses the insecure
// development client configuration.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config) (*quic.Conn, error) {
	if tlsConf == nil {
		tlsConf = quicutil.MakeClientTLSConfig()
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{
		KeepAlivePeriod: KeepAlivePeriod,
		MaxIdleTimeout:  MaxIdleTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return conn, nil
}

// Send delivers one packet on a fresh unidirectional stream and closes it.
func Send(ctx context.Context, conn *quic.Conn, payload []byte) error {
	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetWriteDeadline(deadline)
	}
	if _, err := stream.Write(payload); err != nil {
		stream.CancelWrite(0)
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return stream.Close()
}
