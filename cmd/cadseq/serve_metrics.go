package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/cadseq/pkg/metrics"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var metricsAddr string

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve Prometheus metrics and a health check",
	Args:  cobra.NoArgs,
	RunE:  runServeMetrics,
}

func init() {
	serveMetricsCmd.Flags().StringVar(&metricsAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveMetricsCmd)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func runServeMetrics(cmd *cobra.Command, _ []string) error {
	addr := firstNonEmpty(metricsAddr, cfg.Metrics.Addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           newMetricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
