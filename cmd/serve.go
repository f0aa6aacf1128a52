package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"diabetesdx/diagnosis"
	qhttp "diabetesdx/http"
	"diabetesdx/ml"
	"diabetesdx/monitoring"
	"diabetesdx/report"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the diagnosis form and the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				a.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override server.port")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	cache, err := ml.NewModelCache(cfg.ML.CacheSize)
	if err != nil {
		return err
	}
	model, err := cache.Get(cfg.ML.ModelType, cfg.ML.ModelPath)
	if err != nil {
		return fmt.Errorf("load model (run `diabetesdx train` first): %w", err)
	}
	predictor, err := ml.NewPredictor(model, cfg.ML.Threshold)
	if err != nil {
		return err
	}

	metrics := monitoring.NewMetricsCollector()
	hub := monitoring.NewStatsHub(log)
	h := &qhttp.Handlers{
		Predictor: predictor,
		Hub:       hub,
		Metrics:   metrics,
		Logger:    log,
	}

	// interfaces stay nil without a database
	var store diagnosis.Store
	var stats report.StatsSource
	gateway, err := a.gateway(ctx)
	if err != nil {
		return err
	}
	if gateway != nil {
		store, stats, h.Records = gateway, gateway, gateway
		primeStats(ctx, hub, gateway, log)
	} else {
		log.Warn("no database configured, diagnoses will be scored but not saved")
	}

	exporter := report.NewExporter(cfg.Report, stats, log)
	if cfg.Storage.Enabled() {
		uploader, err := report.NewMinioUploader(ctx, cfg.Storage)
		if err != nil {
			log.Warn("report upload disabled", zap.String("endpoint", cfg.Storage.Endpoint), zap.Error(err))
		} else {
			exporter.WithUploader(uploader)
		}
	}
	h.Reports = exporter
	h.Service = diagnosis.NewService(predictor, store, exporter, log).
		WithPublisher(hub).
		WithMetrics(metrics)

	server := qhttp.NewServer(cfg.Server, qhttp.NewRouter(h, cfg.Server), log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if cfg.ML.Watch {
		watcher := ml.NewModelWatcher(cache, cfg.ML.ModelType, cfg.ML.ModelPath, predictor, log)
		g.Go(func() error {
			if err := watcher.Run(ctx); err != nil {
				log.Warn("model watcher stopped", zap.Error(err))
			}
			return nil
		})
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-watcher.Reloaded():
					metrics.IncrCounter(monitoring.MetricModelReloads, nil)
				}
			}
		})
	}

	log.Info("diabetesdx started",
		zap.String("addr", server.Addr()),
		zap.String("model", model.Name()),
		zap.Float64("threshold", predictor.Threshold()),
		zap.Bool("database", gateway != nil))
	return g.Wait()
}

// primeStats gives the live stats feed the stored counts before the first
// diagnosis of this process.
func primeStats(ctx context.Context, hub *monitoring.StatsHub, source report.StatsSource, log *zap.Logger) {
	current, err := source.Stats(ctx)
	if err != nil {
		log.Warn("initial stats unavailable", zap.Error(err))
		return
	}
	hub.Prime(current)
}
