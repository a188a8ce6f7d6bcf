// Package serve provides the serve command, which runs the appgen API
// server with its websocket and SSE subscription endpoints.
package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/cmd/emoji"
	"github.com/agentstation/appgen/internal/server"
	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
)

// App is what serve needs from the application: the shared interface plus
// the server settings loaded from config.
type App interface {
	application.Application
	ServerConfig() server.Config
}

// NewCommand creates the serve command using app context.
func NewCommand(app App) *cobra.Command {
	def := server.DefaultConfig()

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		GroupID: "server",
		Short:   "Start the API server with websocket and SSE event streams",
		Long: `Start the appgen API server.

Features:
  - Project endpoints: create, list, status (/api/v1/projects)
  - Background pipeline runs with cancellation (/api/v1/projects/{id}/run, /cancel)
  - Live pipeline events over websocket (/ws/projects/{id}, /api/v1/projects/{id}/ws)
  - The same events over Server-Sent Events (/api/v1/projects/{id}/stream)
  - Read caching invalidated by pipeline events
  - Rate limiting (requests per minute per IP)
  - API key authentication (optional)
  - CORS support for web applications
  - Request logging and panic recovery
  - Graceful shutdown that cancels active runs
  - Health, readiness and metrics endpoints

Settings come from flags, APPGEN_* environment variables and .appgen.yaml.`,
		Example: `  # Start on the default port
  appgen serve

  # Persist projects in a bbolt file and run a custom pipeline
  APPGEN_STORE_PATH=./projects.db APPGEN_PIPELINE_FILE=pipeline.yaml appgen serve

  # Require an API key and allow a browser origin
  APPGEN_API_KEY=secret appgen serve --auth --cors-origins https://app.example.com`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := parseConfig(cmd, app.ServerConfig())
			if err != nil {
				return err
			}
			return runServer(cmd, app, cfg)
		},
	}

	cmd.Flags().IntP("port", "p", def.Port, "Server port")
	cmd.Flags().String("host", def.Host, "Bind address")
	cmd.Flags().String("prefix", def.PathPrefix, "API path prefix")

	cmd.Flags().Bool("cors", false, "Enable CORS for all origins")
	cmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (comma-separated)")

	cmd.Flags().Bool("auth", false, "Enable API key authentication")
	cmd.Flags().String("auth-header", def.AuthHeader, "Authentication header name")

	cmd.Flags().Int("rate-limit", def.RateLimit, "Requests per minute per IP (0 to disable)")
	cmd.Flags().Duration("cache-ttl", def.CacheTTL, "Read cache TTL")
	cmd.Flags().Int("max-runs", def.MaxConcurrentRuns, "Maximum concurrent pipeline runs")

	cmd.Flags().Duration("ping-period", def.PingPeriod, "Websocket keepalive ping interval")
	cmd.Flags().Duration("pong-wait", def.PongWait, "Websocket read deadline extended by each pong")

	cmd.Flags().Duration("read-timeout", def.ReadTimeout, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", def.WriteTimeout, "HTTP write timeout (0 keeps streams open)")
	cmd.Flags().Duration("idle-timeout", def.IdleTimeout, "HTTP idle timeout")

	cmd.Flags().Bool("metrics", def.MetricsEnabled, "Enable metrics endpoint")

	return cmd
}

// runServer starts the API server and blocks until the command context is
// cancelled or the listener fails.
func runServer(cmd *cobra.Command, app App, cfg server.Config) error {
	logger := app.Logger()

	logger.Info().
		Int("port", cfg.Port).
		Str("host", cfg.Host).
		Str("prefix", cfg.PathPrefix).
		Bool("cors", cfg.CORSEnabled).
		Bool("auth", cfg.AuthEnabled).
		Int("rate_limit", cfg.RateLimit).
		Int("max_runs", cfg.MaxConcurrentRuns).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("Starting API server")

	if cfg.AuthEnabled && cfg.APIKey == "" {
		logger.Warn().Msg("Authentication enabled without an API key; only public paths will be served")
	}

	srv, err := server.New(app, cfg)
	if err != nil {
		return errors.WrapResource("create", "server", "", err)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapIO("listen", addr, err)
	}

	return serveWithGracefulShutdown(cmd, listener, httpServer, srv, logger)
}

// serveWithGracefulShutdown serves on listener until ctx is cancelled, then
// drains HTTP requests and cancels active runs.
func serveWithGracefulShutdown(cmd *cobra.Command, listener net.Listener, httpServer *http.Server, srv *server.Server, logger *zerolog.Logger) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	serverErr := make(chan error, 1)

	go func() {
		logger.Info().Str("addr", listener.Addr().String()).Msg("HTTP server listening")
		_, _ = fmt.Fprintf(out, "%s appgen API listening on http://%s\n", emoji.Running, listener.Addr())
		_, _ = fmt.Fprintln(out, "   Press Ctrl+C to stop")

		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serverErr <- errors.WrapIO("serve", listener.Addr().String(), err)
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
		_, _ = fmt.Fprintf(out, "\n%s Shutting down API server...\n", emoji.Stop)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		// Runs first, so their cancelled completions still reach subscribers.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Run shutdown had issues")
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.WrapResource("shutdown", "server", "", err)
		}

		logger.Info().Msg("Server stopped gracefully")
		_, _ = fmt.Fprintf(out, "%s API server stopped\n", emoji.Success)
		return nil
	}
}

// parseConfig overlays the flags the user set on the configured settings.
func parseConfig(cmd *cobra.Command, cfg server.Config) (server.Config, error) {
	flags := cmd.Flags()

	if flags.Changed("port") {
		cfg.Port = mustGetInt(cmd, "port")
	}
	if flags.Changed("host") {
		cfg.Host = mustGetString(cmd, "host")
	}
	if flags.Changed("prefix") {
		cfg.PathPrefix = mustGetString(cmd, "prefix")
	}
	if flags.Changed("cors") {
		cfg.CORSEnabled = mustGetBool(cmd, "cors")
	}
	if flags.Changed("cors-origins") {
		cfg.CORSOrigins = mustGetStringSlice(cmd, "cors-origins")
		cfg.CORSEnabled = true
	}
	if flags.Changed("auth") {
		cfg.AuthEnabled = mustGetBool(cmd, "auth")
	}
	if flags.Changed("auth-header") {
		cfg.AuthHeader = mustGetString(cmd, "auth-header")
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit = mustGetInt(cmd, "rate-limit")
	}
	if flags.Changed("cache-ttl") {
		cfg.CacheTTL = mustGetDuration(cmd, "cache-ttl")
	}
	if flags.Changed("max-runs") {
		cfg.MaxConcurrentRuns = mustGetInt(cmd, "max-runs")
	}
	if flags.Changed("ping-period") {
		cfg.PingPeriod = mustGetDuration(cmd, "ping-period")
	}
	if flags.Changed("pong-wait") {
		cfg.PongWait = mustGetDuration(cmd, "pong-wait")
	}
	if flags.Changed("read-timeout") {
		cfg.ReadTimeout = mustGetDuration(cmd, "read-timeout")
	}
	if flags.Changed("write-timeout") {
		cfg.WriteTimeout = mustGetDuration(cmd, "write-timeout")
	}
	if flags.Changed("idle-timeout") {
		cfg.IdleTimeout = mustGetDuration(cmd, "idle-timeout")
	}
	if flags.Changed("metrics") {
		cfg.MetricsEnabled = mustGetBool(cmd, "metrics")
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, errors.NewValidationError("port", cfg.Port, "port out of range")
	}
	if cfg.PingPeriod > 0 && cfg.PongWait > 0 && cfg.PingPeriod >= cfg.PongWait {
		return cfg, errors.NewValidationError("ping-period", cfg.PingPeriod.String(), "must be shorter than pong-wait")
	}
	return cfg, nil
}

// mustGetInt retrieves an integer flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}

func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic(fmt.Sprintf("programming error: failed to get flag %q: %v", name, err))
	}
	return val
}
