package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cordum/packedge/core/edge/events"
	"github.com/cordum/packedge/core/edge/packs"
	"github.com/cordum/packedge/core/infra/bus"
	"github.com/cordum/packedge/core/infra/config"
	"github.com/cordum/packedge/core/infra/incidents"
	"github.com/cordum/packedge/core/infra/logging"
	infraMetrics "github.com/cordum/packedge/core/infra/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	metricsNamespace = "packedge"
	shutdownTimeout  = 10 * time.Second
)

// Run starts the public and metrics listeners and blocks until ctx is
// cancelled or a listener fails.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		cfg = config.Load()
	}
	edgeMetrics := infraMetrics.NewEdgeProm(metricsNamespace)

	client := packs.NewClient(cfg.PackStoreURL, cfg.PackStoreAPIKey, cfg.UpstreamTimeout)
	client.SearchURL = cfg.SearchURL()
	client.Metrics = edgeMetrics

	deps := Deps{
		Resolver: packs.NewResolver(client, edgeMetrics),
		Search:   client,
		Metrics:  edgeMetrics,
	}

	if cfg.RedisURL != "" {
		store, err := incidents.NewRedisStore(cfg.RedisURL, cfg.IncidentTTL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer store.Close()
		deps.Incidents = store
	} else {
		logging.Warn("edge", "incident store disabled", "reason", "REDIS_URL not set")
	}

	var publisher events.Publisher
	if cfg.NatsURL != "" {
		natsBus, err := bus.NewNatsBus(cfg.NatsURL, cfg.EventsSubject)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer natsBus.Close()
		publisher = natsBus
	}
	deps.Events = events.NewHub(publisher)

	s, err := New(cfg, deps)
	if err != nil {
		return err
	}

	publicSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", infraMetrics.Handler())
	metricsSrv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Events.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logging.Info("edge", "http listening", "addr", cfg.HTTPAddr, "pack_store", cfg.PackStoreURL)
		return listen(publicSrv)
	})
	g.Go(func() error {
		logging.Info("edge", "metrics listening", "addr", cfg.MetricsAddr+"/metrics")
		return listen(metricsSrv)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logging.Info("edge", "shutting down")
		return errors.Join(publicSrv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return nil
}
