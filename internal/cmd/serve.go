package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smart-redact/redactd/internal/cleanup"
	"github.com/smart-redact/redactd/internal/server"
)

var (
	serveAddr  string
	serveRPS   float64
	serveBurst int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the redactd HTTP API with the hourly retention sweep",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: REDACT_LISTEN_ADDR or :8742)")
	serveCmd.Flags().Float64Var(&serveRPS, "upload-rps", 5, "Sustained upload requests per second (0 disables limiting)")
	serveCmd.Flags().IntVar(&serveBurst, "upload-burst", 10, "Upload request burst size")
	rootCmd.AddCommand(serveCmd)
}

// parseAPIKeys splits REDACT_API_KEYS (comma-separated) into a key list.
func parseAPIKeys(env string) []string {
	var keys []string
	for _, part := range strings.Split(env, ",") {
		if part = strings.TrimSpace(part); part != "" {
			keys = append(keys, part)
		}
	}
	return keys
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, store, cfg, err := buildPipeline()
	if err != nil {
		return err
	}
	defer store.Close()

	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	sweeper := cleanup.NewSweeper([]string{cfg.UploadDir(), cfg.OutputDir()}, store, retention)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("starting retention sweep: %w", err)
	}
	defer sweeper.Stop()

	apiKeys := parseAPIKeys(os.Getenv("REDACT_API_KEYS"))
	if len(apiKeys) == 0 {
		log.Warn().Msg("REDACT_API_KEYS not set, API is open; fine for localhost, set keys before exposing it")
	}

	srv := server.NewServer(p, store, cfg,
		server.WithAPIKeys(apiKeys),
		server.WithCORSOrigins([]string{"*"}),
		server.WithRateLimit(serveRPS, serveBurst),
		server.WithVersion(resolvedVersion()),
	)

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("data_dir", cfg.DataDir).
		Int("retention_days", cfg.RetentionDays).
		Interface("methods", p.Methods()).
		Msg("redactd serve started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
