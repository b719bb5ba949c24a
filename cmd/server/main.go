// Command server runs the tenantgate authentication gateway.
//
// Configuration is read from a YAML file (--config, TENANTGATE_CONFIG,
// ./config.yaml or /etc/tenantgate/config.yaml) and TENANTGATE_* environment
// variables. Invalid configuration is reported and the process exits with 1.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/config"
	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/gateway"
	transporthttp "github.com/rhuss/tenantgate/pkg/transport/http"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logStartupError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenantgate",
		Short: "Authentication gateway for a single identity provider tenant",
		Long: `tenantgate validates bearer tokens, API keys and cookie sessions issued
for one identity provider tenant, enforces per-route policies and serves the
OAuth client configuration of the interactive API documentation.

Example:
  tenantgate --config /etc/tenantgate/config.yaml --port 8443`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServer,
	}

	cmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	cmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides server.port)")
	cmd.Flags().StringP("log-level", "l", "", "Log level (trace, debug, info, warn, error)")

	return cmd
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("failed to get port flag: %w", err)
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return fmt.Errorf("failed to get log-level flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if logLevel == "" {
		logLevel = cfg.Logging.Level
	}
	debug.Init(cfg.Logging.Debug, logLevel, cfg.Logging.Format)

	gw, err := gateway.New(cfg)
	if err != nil {
		return err
	}
	if err := registerRoutes(gw); err != nil {
		return err
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(slog.Default()),
	}
	if cfg.Server.TLS.Enabled() {
		opts = append(opts, transporthttp.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}

	srv := transporthttp.NewServer(gw.Handler(), opts...)
	return srv.ListenAndServe()
}

// logStartupError reports configuration failures with their field so an
// operator can fix the file without reading a stack of wrapped messages.
func logStartupError(err error) {
	var joined interface{ Unwrap() []error }
	errs := []error{err}
	if errors.As(err, &joined) {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		var ce *api.ConfigError
		if errors.As(e, &ce) {
			slog.Error("invalid configuration", "kind", string(ce.Kind), "field", ce.Field, "message", ce.Message)
			continue
		}
		slog.Error("server failed", "error", e)
	}
}
