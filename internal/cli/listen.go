package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gregLibert/nfc-reader/internal/config"
	"github.com/gregLibert/nfc-reader/internal/eventsink"
	"github.com/gregLibert/nfc-reader/pkg/contactless"
	"github.com/gregLibert/nfc-reader/pkg/metrics"
)

func newListenCmd(g *globalOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Report card insertions and removals",
		Long: `Watch the reader and report every card insertion and removal until
interrupted. Edges are logged, published to MQTT when mqtt.host is set, and
counted in Prometheus metrics when metrics are enabled.

The command ends with an error when the PC/SC service or the reader fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Listen = metricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = runListen(ctx, cfg, logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func runListen(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sink, err := eventsink.NewMQTTSink(cfg.MQTT, logger)
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := sink.Connect(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	defer sink.Close()

	var extra []contactless.Option
	if cfg.Metrics.Enabled {
		extra = append(extra, contactless.WithObserver(metrics.NewObserver()))
	}
	s, err := openSession(cfg, logger, extra...)
	if err != nil {
		return err
	}
	defer closeSession(s, logger)

	grp, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		grp.Go(func() error {
			logger.Info("serving metrics", "addr", srv.Addr, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		grp.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	grp.Go(func() error {
		return s.Listen(ctx, eventsink.Handler(logger, eventsink.LogSink{Logger: logger}, sink))
	})

	return grp.Wait()
}
