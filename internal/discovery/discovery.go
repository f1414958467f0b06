// Package discovery turns a PromQL instant query into a list of IP addresses by
// reading one label from every returned series.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"

	"github.com/developingchet/ip-location-exporter/internal/metrics"
)

var (
	// ErrLabelMissing is returned when a result series lacks the requested label.
	ErrLabelMissing = errors.New("series is missing discovery label")

	// ErrUnsupportedResult is returned for scalar and string query results.
	ErrUnsupportedResult = errors.New("query result has no series")
)

// DefaultQueryTimeout is passed to Prometheus as the query evaluation timeout.
const DefaultQueryTimeout = 30 * time.Second

// Config holds Prometheus connection settings.
type Config struct {
	URL          string
	QueryTimeout time.Duration
	HTTPClient   *http.Client // nil uses http.DefaultClient
}

// Discoverer queries a Prometheus server.
type Discoverer struct {
	api          v1.API
	queryTimeout time.Duration
	now          func() time.Time
}

// New builds a Discoverer for the Prometheus server at cfg.URL.
func New(cfg Config) (*Discoverer, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	client, err := api.NewClient(api.Config{
		Address: cfg.URL,
		Client:  httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: prometheus client: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	return &Discoverer{
		api:          v1.NewAPI(client),
		queryTimeout: timeout,
		now:          time.Now,
	}, nil
}

// DiscoverIPs runs expr as an instant query and returns the value of label from
// every result series, in result order. Duplicates are kept. A series without
// the label fails the whole call.
func (d *Discoverer) DiscoverIPs(ctx context.Context, expr, label string) ([]string, error) {
	ips, err := d.discover(ctx, expr, label)
	if err != nil {
		metrics.DiscoveryErrors.Inc()
		return nil, err
	}
	metrics.DiscoveredIPs.Set(float64(len(ips)))
	return ips, nil
}

func (d *Discoverer) discover(ctx context.Context, expr, label string) ([]string, error) {
	value, warnings, err := d.api.Query(ctx, expr, d.now(), v1.WithTimeout(d.queryTimeout))
	if err != nil {
		return nil, fmt.Errorf("discovery: query %q: %w", expr, err)
	}
	for _, w := range warnings {
		log.Warn().Str("query", expr).Str("warning", w).Msg("prometheus query warning")
	}

	name := model.LabelName(label)

	switch v := value.(type) {
	case model.Vector:
		ips := make([]string, 0, len(v))
		for _, sample := range v {
			ip, err := labelValue(sample.Metric, name)
			if err != nil {
				return nil, err
			}
			ips = append(ips, ip)
		}
		return ips, nil

	case model.Matrix:
		ips := make([]string, 0, len(v))
		for _, stream := range v {
			ip, err := labelValue(stream.Metric, name)
			if err != nil {
				return nil, err
			}
			ips = append(ips, ip)
		}
		return ips, nil

	default:
		return nil, fmt.Errorf("discovery: %w: %s", ErrUnsupportedResult, value.Type())
	}
}

func labelValue(m model.Metric, name model.LabelName) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", fmt.Errorf("discovery: %w: %q not in %s", ErrLabelMissing, name, m)
	}
	return string(v), nil
}

// Healthy returns nil if the Prometheus server answers the build info endpoint.
func (d *Discoverer) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := d.api.Buildinfo(ctx); err != nil {
		return fmt.Errorf("prometheus unreachable: %w", err)
	}
	return nil
}
