package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/flipbook/internal/logger"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/pdfdoc"
	"github.com/local/flipbook/internal/server"
	"github.com/local/flipbook/internal/session"
	"github.com/local/flipbook/internal/statuscheck"
	"github.com/local/flipbook/internal/store"
	"github.com/local/flipbook/web"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the viewer HTTP server",
	Long: `Start the viewer HTTP server.

The server provides:
  - /             - the browser viewer
  - /api/sessions - viewer sessions (state, input, load, images)
  - /health       - liveness
  - /health/deps  - Redis, S3 and MuPDF readiness
  - /metrics      - Prometheus metrics

Examples:
  flipbook serve                   # listen on PORT (default 8080)
  flipbook serve --port 3000
  flipbook serve --env prod.env`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := setup()
		if err != nil {
			return err
		}
		defer logger.Close()
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		metrics.Init()

		opener := pdfdoc.NewFitzOpener()
		deps := session.Deps{
			Config: cfg,
			Opener: opener,
			Source: newFetcher(cfg),
		}
		checks := statuscheck.Options{
			S3Bucket: cfg.Source.S3Bucket,
			Renderer: func(ctx context.Context) error { return pdfdoc.SelfTest(ctx, opener) },
		}

		// Shared render store (optional)
		if cfg.Cache.RedisURL != "" {
			rs, err := store.NewRenderStore(ctx, cfg.Cache.RedisURL, store.Options{TTL: cfg.Cache.RenderTTL})
			if err != nil {
				log.Warn().Err(err).Msg("render store unavailable, continuing with in-memory cache only")
			} else {
				defer rs.Close()
				deps.Store = store.NewBreaker(rs, 0, 0)
				checks.Redis = rs
			}
		}

		reg := session.NewRegistry(deps)
		defer reg.Close()
		go reg.Run(ctx)

		assets, err := web.DistFS()
		if err != nil {
			return fmt.Errorf("load web assets: %w", err)
		}
		srv := server.New(server.Options{
			Registry:       reg,
			Checker:        statuscheck.New(checks),
			Assets:         assets,
			MaxUploadBytes: cfg.Source.MaxDocumentBytes,
		})

		httpSrv := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			log.Info().Msgf("HTTP server listening on %s", cfg.Addr())
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		log.Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides HOST)")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on (overrides PORT)")
}
