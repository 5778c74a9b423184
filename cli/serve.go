package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/lingua-labs/linguaflow/config"
	lfotel "github.com/lingua-labs/linguaflow/otel"
	"github.com/lingua-labs/linguaflow/server"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the LinguaFlow API server",
		RunE:  runServe,
	}

	cmd.Flags().String("config", "", "Path to linguaflow.yaml")
	cmd.Flags().IntP("port", "p", 0, "Listen port (overrides config)")
	cmd.Flags().String("host", "", "Listen host (overrides config)")
	cmd.Flags().String("sqlite-path", "", "Path to SQLite database (overrides config)")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 60*time.Second, "HTTP write timeout")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")

	cfg, err := config.Load(configPath)
	if err != nil {
		return exitError(exitConfig, "loading config: %v", err)
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if path, _ := cmd.Flags().GetString("sqlite-path"); path != "" {
		cfg.Database.Path = path
	}
	if cfg.Provider.APIKey == "" {
		return exitError(exitProvider, "provider API key is required (set provider.api_key or LINGUAFLOW_API_KEY)")
	}

	logger := slog.Default()

	shutdownTracing, err := lfotel.SetupTracing(cmd.Context(), lfotel.TracingConfig{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return exitError(exitRuntime, "initializing tracing: %v", err)
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	db, err := sql.Open("sqlite", cfg.Database.Path)
	if err != nil {
		return exitError(exitRuntime, "opening sqlite database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	authStore, err := server.NewAuthSQLiteStore(db)
	if err != nil {
		return exitError(exitRuntime, "opening auth store: %v", err)
	}
	historyStore, err := server.NewHistorySQLiteStore(db)
	if err != nil {
		return exitError(exitRuntime, "opening history store: %v", err)
	}

	translator, err := server.NewLLMTranslator(cfg.Provider.Name, cfg.Provider.APIKey, cfg.Provider.Model)
	if err != nil {
		return exitError(exitProvider, "initializing translator: %v", err)
	}

	apiServer := server.NewServer(server.ServerConfig{
		AuthStore:    authStore,
		HistoryStore: historyStore,
		Translator:   translator,
		CORSOrigin:   cfg.Server.CORSOrigin,
		MaxBody:      cfg.Server.MaxBody,
		Logger:       logger,
	})

	reaper, err := server.NewSessionReaper(server.SessionReaperConfig{
		Store:    authStore,
		Schedule: cfg.Sessions.PurgeSchedule,
		Logger:   logger,
	})
	if err != nil {
		return exitError(exitConfig, "creating session reaper: %v", err)
	}
	reaper.Start()
	defer func() {
		_ = reaper.Stop(context.Background())
	}()

	httpMetrics, err := lfotel.NewHTTPMetrics(otelapi.GetMeterProvider().Meter("linguaflow/server"))
	if err != nil {
		return exitError(exitRuntime, "initializing HTTP metrics: %v", err)
	}
	handler := httpMetrics.Wrap(apiServer.Handler())

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	// Signal handling
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "LinguaFlow listening on %s\n", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}
