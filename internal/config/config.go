package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/unigate/backend/internal/ingress"
	"github.com/unigate/backend/internal/validation"
)

// Config holds ingress server configuration
type Config struct {
	ListenAddress     string
	CertFile          string
	KeyFile           string
	SelfSigned        bool
	MetricsAddress    string
	MaxPacketSize     int
	MaxConnections    int
	MaxStreamsPerConn int
	AcceptRate        float64
	AcceptBurst       int
	ShutdownGrace     time.Duration
	LogLevel          string
	LogFormat         string
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:  ":4433",
		SelfSigned:     true,
		MetricsAddress: "127.0.0.1:8081",
		MaxPacketSize:  ingress.MaxPacketSize,
		AcceptBurst:    16,
		ShutdownGrace:  ingress.DefaultShutdownGrace,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// SetDefaults registers the defaults with v so that unset flags, env vars and
// config file entries fall back to them.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("listen", d.ListenAddress)
	v.SetDefault("cert", d.CertFile)
	v.SetDefault("key", d.KeyFile)
	v.SetDefault("self-signed", d.SelfSigned)
	v.SetDefault("metrics-listen", d.MetricsAddress)
	v.SetDefault("max-packet-size", d.MaxPacketSize)
	v.SetDefault("max-connections", d.MaxConnections)
	v.SetDefault("max-streams-per-conn", d.MaxStreamsPerConn)
	v.SetDefault("accept-rate", d.AcceptRate)
	v.SetDefault("accept-burst", d.AcceptBurst)
	v.SetDefault("shutdown-grace", d.ShutdownGrace)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
}

// LoadConfig reads the configuration from v and validates it.
func LoadConfig(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		ListenAddress:     v.GetString("listen"),
		CertFile:          v.GetString("cert"),
		KeyFile:           v.GetString("key"),
		SelfSigned:        v.GetBool("self-signed"),
		MetricsAddress:    v.GetString("metrics-listen"),
		MaxPacketSize:     v.GetInt("max-packet-size"),
		MaxConnections:    v.GetInt("max-connections"),
		MaxStreamsPerConn: v.GetInt("max-streams-per-conn"),
		AcceptRate:        v.GetFloat64("accept-rate"),
		AcceptBurst:       v.GetInt("accept-burst"),
		ShutdownGrace:     v.GetDuration("shutdown-grace"),
		LogLevel:          v.GetString("log-level"),
		LogFormat:         v.GetString("log-format"),
	}
	// explicit identity files win over the development certificate
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cfg.SelfSigned = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	if err := validation.ValidateUDPAddr(c.ListenAddress); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if c.MetricsAddress != "" {
		if err := validation.ValidateAddr(c.MetricsAddress); err != nil {
			return fmt.Errorf("metrics-listen: %w", err)
		}
	}
	if !c.SelfSigned {
		if err := validation.ValidateFilePath(c.CertFile, true); err != nil {
			return fmt.Errorf("cert: %w", err)
		}
		if err := validation.ValidateFilePath(c.KeyFile, true); err != nil {
			return fmt.Errorf("key: %w", err)
		}
	}
	if err := validation.ValidateRangeInt(c.MaxPacketSize, 1, 1<<20); err != nil {
		return fmt.Errorf("max-packet-size: %w", err)
	}
	if c.MaxConnections < 0 || c.MaxStreamsPerConn < 0 || c.AcceptBurst < 0 {
		return fmt.Errorf("connection limits: %w: must not be negative", validation.ErrOutOfRange)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("accept-rate: %w: must not be negative", validation.ErrOutOfRange)
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown-grace: %w: must not be negative", validation.ErrOutOfRange)
	}
	if err := validation.ValidateStringNonEmpty(c.LogLevel); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log-format: unknown format %q", c.LogFormat)
	}
	return nil
}

// ServerOptions converts the configuration into ingress options. Logger,
// Metrics and OnError are left for the caller.
func (c *Config) ServerOptions() ingress.ServerOptions {
	return ingress.ServerOptions{
		MaxPacketSize:     c.MaxPacketSize,
		MaxConnections:    c.MaxConnections,
		MaxStreamsPerConn: c.MaxStreamsPerConn,
		AcceptRate:        c.AcceptRate,
		AcceptBurst:       c.AcceptBurst,
		ShutdownGrace:     c.ShutdownGrace,
	}
}
