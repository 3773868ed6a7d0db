package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/relaysched/orchestrator/internal/config"
)

func newMonitorCmd() *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the supervisor loop in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runMonitor(cmd.Context(), cfg, httpAddr)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve /metrics and /status/stream on this address")
	return cmd
}

// runMonitor builds the supervisor and drives its tick loop until ctx is
// cancelled or SIGTERM/SIGINT arrives, per spec.md §6's exit-code contract:
// 0 on clean stop, non-zero on startup failure.
func runMonitor(ctx context.Context, cfg config.Config, httpAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	sv, err := buildSupervisor(ctx, cfg)
	if err != nil {
		return err
	}

	if httpAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/status/stream", sv.Hub.ServeHTTP)
		srv := &http.Server{Addr: httpAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "http surface exited: %v\n", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	go sv.Hub.Run(ctx)
	sv.Run(ctx)
	return nil
}
