package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unigate/backend/internal/config"
	"github.com/unigate/backend/internal/dispatch"
	"github.com/unigate/backend/internal/ingress"
	"github.com/unigate/backend/internal/observability"
	"github.com/unigate/backend/internal/quicutil"
)

var (
	cfgFile  string
	serveCfg *config.Config
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the QUIC ingress",
		Long: `Start the QUIC ingress with the specified configuration. The configuration can be
set via command line flags, a YAML file (--config) or environment variables.
The format of the environment variables is UNIGATE_<flag> (e.g. UNIGATE_MAX_CONNECTIONS=100)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	d := config.DefaultConfig()
	flags := serveCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "YAML configuration file")
	flags.String("listen", d.ListenAddress, "UDP address the QUIC endpoint binds")
	flags.String("cert", d.CertFile, "PEM certificate file")
	flags.String("key", d.KeyFile, "PEM private key file")
	flags.Bool("self-signed", d.SelfSigned, "Generate a development certificate when no cert/key is given")
	flags.String("metrics-listen", d.MetricsAddress, "Address for /metrics, /health and /debug/pprof (empty disables)")
	flags.Int("max-packet-size", d.MaxPacketSize, "Largest accepted stream payload in bytes")
	flags.Int("max-connections", d.MaxConnections, "Concurrently served connections (0 is unbounded)")
	flags.Int("max-streams-per-conn", d.MaxStreamsPerConn, "Concurrently read streams per connection (0 is unbounded)")
	flags.Float64("accept-rate", d.AcceptRate, "New connections per second (0 disables the limit)")
	flags.Int("accept-burst", d.AcceptBurst, "Burst size for --accept-rate")
	flags.Duration("shutdown-grace", d.ShutdownGrace, "How long in-flight streams may finish on shutdown (0 uses the default)")
	flags.String("log-level", d.LogLevel, "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", d.LogFormat, "Log format (json, console)")
}

// initConfig reads in env files and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("unigate")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// processConfig binds the flags to viper, reads the optional config file and
// builds the server configuration.
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	}

	cfg, err := config.LoadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	serveCfg = cfg
	return nil
}

func newLogger(cfg *config.Config) (*observability.Logger, error) {
	var out io.Writer = os.Stdout
	if cfg.LogFormat == "console" {
		out = observability.NewConsoleWriter(os.Stderr)
	}
	return observability.NewLogger("unigate", Version, out).WithLevel(cfg.LogLevel)
}

func loadIdentity(cfg *config.Config, logger *observability.Logger) (quicutil.Identity, error) {
	if cfg.SelfSigned {
		logger.Warn("using a generated self-signed certificate; clients must skip verification")
		return quicutil.SelfSignedIdentity()
	}
	return quicutil.LoadIdentity(cfg.CertFile, cfg.KeyFile)
}

func run(_ *cobra.Command, _ []string) error {
	cfg := serveCfg
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	// Init tracing if configured
	if shutdown, err := observability.InitTracing(context.Background(), "unigate"); err == nil {
		defer shutdown(context.Background())
	} else {
		logger.Error(err, "tracing disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	id, err := loadIdentity(cfg, logger)
	if err != nil {
		logger.Error(err, "failed to load TLS identity")
		return err
	}
	endpoint, err := ingress.NewEndpointConfig(id)
	if err != nil {
		logger.Error(err, "invalid endpoint configuration")
		return err
	}
	ln, err := ingress.Listen(cfg.ListenAddress, endpoint)
	if err != nil {
		logger.Error(err, "failed to start QUIC listener")
		return err
	}

	opts := cfg.ServerOptions()
	opts.Logger = logger
	opts.Metrics = metrics
	srv := ingress.NewServer(ln, dispatch.NewDigest(logger, nil), opts)
	logger.ListenerStarted(srv.Addr(), endpoint.QUIC.KeepAlivePeriod, endpoint.QUIC.MaxIdleTimeout)

	health := observability.NewHealthChecker(Version)
	health.RegisterCheck("quic_listener", observability.QUICListenerCheck(srv.Addr(), srv.Serving))
	health.RegisterCheck("connections", observability.ConnectionsCheck(srv.ActiveConnections, cfg.MaxConnections))

	var ops *opsServer
	if cfg.MetricsAddress != "" {
		ops = startOpsServer(cfg.MetricsAddress, metrics, health, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("unigate running, press Ctrl+C to stop")
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, ingress.ErrServerClosed) {
		logger.Error(err, "accept loop failed")
	}

	logger.Info("Shutting down gracefully...")
	sctx, cancel := context.WithTimeout(context.Background(), srv.ShutdownGrace())
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error(err, "shutdown grace period expired")
	}
	if ops != nil {
		octx, ocancel := context.WithTimeout(context.Background(), time.Second)
		defer ocancel()
		ops.shutdown(octx)
	}

	logger.Info("unigate stopped")
	return nil
}
