package ingress

import (
	"crypto/tls"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/unigate/backend/internal/quicutil"
)

const (
	// KeepAlivePeriod is how often a PING is sent on an otherwise idle connection.
	KeepAlivePeriod = 10 * time.Second
	// MaxIdleTimeout closes a connection with no activity for this long.
	MaxIdleTimeout = 15000 * time.Millisecond
	// MaxPacketSize is the default upper bound of a single stream's payload.
	MaxPacketSize = 1024
)

// EndpointConfig is the immutable server-side configuration shared by every
// connection accepted on one endpoint.
type EndpointConfig struct {
	TLS  *tls.Config
	QUIC *quic.Config
}

// NewEndpointConfig builds the endpoint configuration from identity material.
// A malformed or mismatched certificate/key pair yields a *ConfigurationError.
func NewEndpointConfig(id quicutil.Identity) (*EndpointConfig, error) {
	tlsConf, err := quicutil.MakeTLSConfig(id)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	return &EndpointConfig{
		TLS: tlsConf,
		QUIC: &quic.Config{
			KeepAlivePeriod: KeepAlivePeriod,
			MaxIdleTimeout:  MaxIdleTimeout,
		},
	}, nil
}
