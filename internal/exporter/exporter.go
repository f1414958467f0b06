// Package exporter wires discovery, resolution and publishing together and
// serves them over HTTP.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/developingchet/ip-location-exporter/internal/config"
	"github.com/developingchet/ip-location-exporter/internal/discovery"
	"github.com/developingchet/ip-location-exporter/internal/location"
	"github.com/developingchet/ip-location-exporter/internal/metrics"
	"github.com/developingchet/ip-location-exporter/internal/publisher"
	"github.com/developingchet/ip-location-exporter/internal/resolver"
)

// ErrUnresolved is returned by Lookup when every provider failed.
var ErrUnresolved = errors.New("failed to get location")

// Option customises an Exporter.
type Option func(*Exporter)

// WithHTTPClient sets the client used for Prometheus, provider and
// Pushgateway requests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Exporter) { e.httpClient = c }
}

// WithGatherer sets the registry served on /internal/metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(e *Exporter) { e.gatherer = g }
}

// Exporter answers /metrics scrapes by discovering IPs in Prometheus and
// publishing their locations.
type Exporter struct {
	cfg        *config.Config
	httpClient *http.Client
	gatherer   prometheus.Gatherer
	resolver   *resolver.Resolver
	discoverer *discovery.Discoverer
	publisher  *publisher.Publisher
	httpSrv    *http.Server
}

// New creates an Exporter and initialises all dependencies.
func New(cfg *config.Config, opts ...Option) (*Exporter, error) {
	e := &Exporter{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		gatherer:   prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(e)
	}

	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("exporter: providers: %w", err)
	}
	e.resolver = resolver.FromRegistry(reg, e.httpClient, cfg.ProviderTimeout)

	e.discoverer, err = discovery.New(discovery.Config{
		URL:          cfg.PrometheusURL,
		QueryTimeout: cfg.QueryTimeout,
		HTTPClient:   e.httpClient,
	})
	if err != nil {
		return nil, err
	}

	pubCfg := publisher.Config{Job: cfg.PushJob, Instance: cfg.PushInstance}
	if cfg.PushgatewayURL != "" {
		pubCfg.Pusher = publisher.NewGatewayPusher(cfg.PushgatewayURL, e.httpClient)
	}
	e.publisher = publisher.New(pubCfg)

	e.httpSrv = &http.Server{
		Addr:        cfg.ListenAddr(),
		Handler:     e.Handler(),
		ReadTimeout: 5 * time.Second,
		// No WriteTimeout: a scrape is bounded only by the per-provider timeout.
		IdleTimeout: 30 * time.Second,
	}

	return e, nil
}

// Scrape discovers IPs with the target query, resolves each one and returns
// the ip_location exposition. Only discovery failures are returned; providers
// failing for an IP only drop that IP's sample.
func (e *Exporter) Scrape(ctx context.Context, target, label string) (publisher.Payload, error) {
	timer := prometheus.NewTimer(metrics.ScrapeDuration)
	defer timer.ObserveDuration()

	ips, err := e.discoverer.DiscoverIPs(ctx, target, label)
	if err != nil {
		return publisher.Payload{}, err
	}
	log.Debug().Str("target", target).Str("label", label).Int("ips", len(ips)).Msg("discovered")

	return e.publisher.Publish(ctx, e.resolver.ResolveAll(ctx, ips))
}

// Lookup resolves a single IP through the provider chain.
func (e *Exporter) Lookup(ctx context.Context, ip string) (location.Outcome, error) {
	o := e.resolver.Resolve(ctx, ip)
	if !o.Resolved {
		log.Warn().Str("ip", ip).Msg("failed to get location")
		return o, fmt.Errorf("%w for %s", ErrUnresolved, ip)
	}
	return o, nil
}

// Healthy checks that Prometheus is reachable.
func (e *Exporter) Healthy(ctx context.Context) error {
	return e.discoverer.Healthy(ctx)
}

// Run serves HTTP until ctx is cancelled or the listener fails.
func (e *Exporter) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", e.httpSrv.Addr).Msg("http server listening")
		if err := e.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().
		Str("prometheus_url", e.cfg.PrometheusURL).
		Bool("push", e.cfg.PushgatewayURL != "").
		Str("provider_timeout", e.cfg.ProviderTimeout.String()).
		Str("log_level", e.cfg.LogLevel).
		Msg("exporter started")

	select {
	case <-ctx.Done():
		log.Info().Msg("exporter stopped")
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// Close performs graceful shutdown.
func (e *Exporter) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.httpSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown error")
	}
}
