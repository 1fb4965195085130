package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maruel/gallery/internal/server"
	"github.com/maruel/gallery/internal/server/ratelimit"
	"github.com/maruel/gallery/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.withStore(cmd.Context(), func(s *storage.Store) error {
				return a.serve(cmd.Context(), s)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (e.g., localhost:8080, :8080)")
	return cmd
}

// serve runs the HTTP server and the change watcher until ctx is canceled
// or one of them fails.
func (a *app) serve(ctx context.Context, s *storage.Store) error {
	cfg := a.cfg
	var limiter *ratelimit.Limiter
	if rl := cfg.RateLimit; rl.Requests > 0 {
		limiter = ratelimit.NewLimiter(rl.Requests, rl.Window, rl.Burst)
		defer limiter.Close()
	}
	version, _, _, _ := getBuildInfo()
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	httpServer := &http.Server{
		Handler: server.NewRouter(s, server.Options{
			Version:        version,
			Limiter:        limiter,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
		}),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	g.Go(func() error {
		slog.InfoContext(ctx, "Starting server", "addr", ln.Addr().String(), "backend", cfg.Storage.Backend, "version", version)
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
		return nil
	})
	g.Go(func() error {
		err := s.Watch(ctx, func() {
			slog.InfoContext(ctx, "Collection changed by another writer", "key", s.Key())
		})
		if errors.Is(err, storage.ErrWatchUnsupported) {
			slog.DebugContext(ctx, "Backend does not report changes", "backend", cfg.Storage.Backend)
			return nil
		}
		return err
	})
	return g.Wait()
}
