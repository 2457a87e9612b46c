// Command duplex-server runs a TLS duplex transport server.
//
// By default it serves the built-in echo handler, which makes it suitable as
// a peer for duplex-client and as a smoke test for certificate setups.
//
// Usage:
//
//	duplex-server [flags]
//
// Flags:
//
//	-addr string       Listen address (default ":9443")
//	-cert string       Server certificate PEM file
//	-key string        Server private key PEM file
//	-dev               Generate a self-signed certificate instead of loading one
//	-alpn string       Comma-separated ALPN protocol list
//	-config string     YAML configuration file path
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-log-file string   Transport event log file (CBOR format)
//
// Examples:
//
//	# Development mode with a throwaway self-signed certificate
//	duplex-server -dev -addr :9443
//
//	# Production certificate with ALPN and an event log
//	duplex-server -cert server.pem -key server.key -alpn echo/1 -log-file events.cbor
//
//	# Settings from a config file (flags override file values)
//	duplex-server -config /etc/duplex/server.yaml
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/duplex-transport/duplex-go/pkg/cert"
	"github.com/duplex-transport/duplex-go/pkg/log"
	"github.com/duplex-transport/duplex-go/pkg/transport"
)

// Config holds the server configuration. Fields map 1:1 to the YAML
// configuration file; flags override file values.
type Config struct {
	Address  string `yaml:"address"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	Dev      bool   `yaml:"dev"`
	ALPN     string `yaml:"alpn"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

func defaultConfig() Config {
	return Config{
		Address:  ":9443",
		LogLevel: "info",
	}
}

func loadConfigFile(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func main() {
	var (
		configFile = flag.String("config", "", "YAML configuration file path")
		addr       = flag.String("addr", "", "Listen address")
		certFile   = flag.String("cert", "", "Server certificate PEM file")
		keyFile    = flag.String("key", "", "Server private key PEM file")
		dev        = flag.Bool("dev", false, "Generate a self-signed certificate instead of loading one")
		alpn       = flag.String("alpn", "", "Comma-separated ALPN protocol list")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
		logFile    = flag.String("log-file", "", "Transport event log file (CBOR format)")
	)
	flag.Parse()

	cfg := defaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = loadConfigFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config file: %v\n", err)
			os.Exit(1)
		}
	}

	// Flags override file values.
	if *addr != "" {
		cfg.Address = *addr
	}
	if *certFile != "" {
		cfg.CertFile = *certFile
	}
	if *keyFile != "" {
		cfg.KeyFile = *keyFile
	}
	if *dev {
		cfg.Dev = true
	}
	if *alpn != "" {
		cfg.ALPN = *alpn
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	certificate, err := serverCertificate(cfg, logger)
	if err != nil {
		return err
	}

	var alpnList []string
	if cfg.ALPN != "" {
		for _, p := range strings.Split(cfg.ALPN, ",") {
			alpnList = append(alpnList, strings.TrimSpace(p))
		}
	}

	eventLogger, closeEventLog, err := buildEventLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEventLog()

	server, err := transport.NewServer(transport.ServerConfig{
		TLSConfig: &transport.ServerTLSConfig{
			Certificate: certificate,
			ALPN:        alpnList,
		},
		Address: cfg.Address,
		Logger:  eventLogger,
		OnError: func(err error) {
			logger.Warn("connection error", slog.String("err", err.Error()))
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("server started",
		slog.String("addr", server.Addr().String()),
		slog.Any("alpn", alpnList),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("shutting down", slog.String("signal", sig.String()))
	if err := server.Stop(); err != nil {
		logger.Error("error stopping server", slog.String("err", err.Error()))
	}
	return nil
}

// serverCertificate loads the certificate from disk, or generates a
// self-signed one in dev mode.
func serverCertificate(cfg Config, logger *slog.Logger) (certificate tls.Certificate, err error) {
	if cfg.Dev {
		keyPair, leaf, err := cert.GenerateSelfSigned(cert.SelfSignedOptions{
			CommonName: "duplex-server dev",
			DNSNames:   []string{"localhost"},
			Validity:   24 * time.Hour,
		})
		if err != nil {
			return certificate, fmt.Errorf("failed to generate dev certificate: %w", err)
		}
		logger.Warn("using self-signed dev certificate",
			slog.String("serial", leaf.SerialNumber.String()),
			slog.Time("not_after", leaf.NotAfter),
		)
		return keyPair, nil
	}

	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return certificate, fmt.Errorf("either -dev or both -cert and -key are required")
	}
	keyPair, err := cert.LoadKeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return certificate, fmt.Errorf("failed to load server key pair: %w", err)
	}
	return keyPair, nil
}

// buildEventLogger writes transport events to slog at debug level and, if
// configured, to a CBOR event log file.
func buildEventLogger(cfg Config, logger *slog.Logger) (log.Logger, func(), error) {
	slogAdapter := log.NewSlogAdapter(logger)
	if cfg.LogFile == "" {
		return slogAdapter, func() {}, nil
	}

	fileLogger, err := log.NewFileLogger(cfg.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event log file: %w", err)
	}
	return log.NewMultiLogger(slogAdapter, fileLogger), func() { fileLogger.Close() }, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
