package ingress

import (
	"context"

	"github.com/unigate/backend/internal/quicutil"
)

// ListenAndServe configures an endpoint from id, binds addr and serves until
// ctx is done, then drains for opts.ShutdownGrace. Only configuration and bind
// failures are returned.
func ListenAndServe(ctx context.Context, addr string, id quicutil.Identity, d Dispatcher, opts ServerOptions) error {
	cfg, err := NewEndpointConfig(id)
	if err != nil {
		return err
	}
	ln, err := Listen(addr, cfg)
	if err != nil {
		return err
	}

	srv := NewServer(ln, d, opts)
	srv.logger.ListenerStarted(addrString(ln.Addr()), cfg.QUIC.KeepAlivePeriod, cfg.QUIC.MaxIdleTimeout)
	_ = srv.Serve(ctx)

	sctx, cancel := context.WithTimeout(context.Background(), srv.ShutdownGrace())
	defer cancel()
	_ = srv.Shutdown(sctx)
	return nil
}
