package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/PabloGalante/mermaid-agent/internal/adapters/http"
	"github.com/PabloGalante/mermaid-agent/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(rt *runtime) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API.

Endpoints:
  POST /generate            stream a diagram (server-sent events)
  POST /repair              repair diagram code (server-sent events)
  POST /direction           toggle a flowchart between TD and LR
  GET  /sessions            list sessions, POST to create one
  GET  /usage               daily usage for the calling client
  GET  /diagram-types       selectable diagram types`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := observability.Logger()

			if rt.cfg.EnableOTLP {
				shutdown, err := observability.InitTracing(ctx, "mermaid-agent")
				if err != nil {
					return err
				}
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					if err := shutdown(sctx); err != nil {
						log.Warn("tracing shutdown failed", "error", err)
					}
				}()
			}

			a, err := rt.build(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = ":" + rt.cfg.Port
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           httpadapter.NewServer(a.svc),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("mermaid-agent listening", "addr", addr, "upstream", rt.cfg.Upstream, "storage", rt.cfg.StorageBackend)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info("shutting down")
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(sctx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default \":$MERMAID_PORT\")")
	return cmd
}
