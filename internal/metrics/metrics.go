// Package metrics defines package-level Prometheus metric variables describing
// the exporter itself. Call Register() once at startup to expose them on the
// default registry, or RegisterWith() to use an isolated registry in tests.
//
// These are separate from the per-scrape ip_location gauges built by the
// publisher package.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ip_location_exporter"

var (
	// ProviderRequests counts lookups sent to each geolocation provider.
	ProviderRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Geolocation lookups sent, by provider.",
	}, []string{"provider"})

	// ProviderFailures counts provider lookups that did not yield a complete
	// record. Valid reasons: transport, timeout, status, decode, schema.
	ProviderFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_failures_total",
		Help:      "Failed geolocation lookups, by provider and reason (transport|timeout|status|decode|schema).",
	}, []string{"provider", "reason"})

	// Resolutions counts IP resolutions by outcome (resolved|unresolved).
	Resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolutions_total",
		Help:      "IP resolutions, by outcome (resolved|unresolved).",
	}, []string{"outcome"})

	// DiscoveryErrors counts failed IP discovery queries.
	DiscoveryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "discovery_errors_total",
		Help:      "Prometheus discovery queries that failed.",
	})

	// DiscoveredIPs is the number of IPs returned by the last discovery query.
	DiscoveredIPs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "discovered_ips",
		Help:      "IPs returned by the most recent discovery query.",
	})

	// PushErrors counts failed Pushgateway calls, labelled by op (delete|push).
	PushErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_errors_total",
		Help:      "Pushgateway errors, by operation (delete|push).",
	}, []string{"op"})

	// ScrapeDuration observes the wall time of a full discovery+resolve+publish cycle.
	ScrapeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scrape_duration_seconds",
		Help:      "Duration of a /metrics request (discovery, resolution and publishing).",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})
)

// Register registers all metrics with prometheus.DefaultRegisterer.
// Call once at process startup.
func Register() {
	RegisterWith(prometheus.DefaultRegisterer)
}

// RegisterWith registers all metrics with the given registerer.
// Use an isolated prometheus.NewRegistry() in tests to avoid conflicts.
func RegisterWith(reg prometheus.Registerer) {
	reg.MustRegister(
		ProviderRequests,
		ProviderFailures,
		Resolutions,
		DiscoveryErrors,
		DiscoveredIPs,
		PushErrors,
		ScrapeDuration,
	)
}
