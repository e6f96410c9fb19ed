package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/presentation/tui"
	httpAdapter "github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/aretw0/arbor/pkg/adapters/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	Long: `Starts the relay: a JSON API, a websocket endpoint per map and an SSE feed
for watchers. With --mcp the MCP server is started alongside it over SSE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		metrics, _ := cmd.Flags().GetBool("metrics")
		withMCP, _ := cmd.Flags().GetBool("mcp")
		quiet, _ := cmd.Flags().GetBool("quiet")

		app, err := newApp(cmd, func(cfg *config.Config) {
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("metrics") {
				cfg.Server.Metrics = metrics
			}
		})
		if err != nil {
			return err
		}
		defer app.Close()
		cfg := app.Config

		opts := []httpAdapter.Option{
			httpAdapter.WithLogger(app.Logger),
			httpAdapter.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
			httpAdapter.WithRateLimit(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst),
			httpAdapter.WithPingInterval(cfg.Server.PingInterval),
		}
		if app.Metrics != nil {
			opts = append(opts, httpAdapter.WithMetrics(app.Metrics, app.Registry))
		}
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           httpAdapter.NewHandler(app.Relay, app.Broker, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if f, ok := cmd.OutOrStdout().(*os.File); ok && !quiet && tui.IsTerminal(f) {
			tui.PrintBanner(f)
		}

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()
		g, ctx := errgroup.WithContext(sc)

		g.Go(func() error {
			app.Logger.Info("relay listening", "addr", srv.Addr, "store", cfg.Store.Backend)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
				return srv.Close()
			}
			return nil
		})
		if withMCP {
			g.Go(func() error {
				return mcp.NewServer(app.Relay, mcp.WithLogger(app.Logger)).ServeSSE(ctx, cfg.Server.MCPPort)
			})
		}

		err = g.Wait()
		if sig := sc.Signal(); sig != nil {
			app.Logger.Info("relay stopped", "signal", sig.String())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (default :5000)")
	serveCmd.Flags().Bool("metrics", false, "Expose Prometheus metrics on /metrics")
	serveCmd.Flags().Bool("mcp", false, "Also serve MCP over SSE on server.mcp_port")
	serveCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
}
