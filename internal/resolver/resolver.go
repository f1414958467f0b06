// Package resolver walks an ordered provider chain for one IP and returns the
// first complete location record.
package resolver

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/developingchet/ip-location-exporter/internal/location"
	"github.com/developingchet/ip-location-exporter/internal/metrics"
	"github.com/developingchet/ip-location-exporter/internal/provider"
)

// Provider looks up one IP. An error means "try the next provider".
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip string) (location.Record, error)
}

// Compile-time interface check.
var _ Provider = (*provider.Client)(nil)

// Resolver holds an immutable provider chain. It keeps no state between calls
// and is safe for concurrent use.
type Resolver struct {
	providers []Provider
}

// New builds a Resolver over providers in priority order.
func New(providers ...Provider) *Resolver {
	chain := make([]Provider, len(providers))
	copy(chain, providers)
	return &Resolver{providers: chain}
}

// FromRegistry binds every descriptor in reg to httpClient with a per-request
// timeout.
func FromRegistry(reg *provider.Registry, httpClient *http.Client, timeout time.Duration) *Resolver {
	descs := reg.Descriptors()
	chain := make([]Provider, 0, len(descs))
	for _, d := range descs {
		chain = append(chain, provider.NewClient(d, httpClient, timeout))
	}
	return &Resolver{providers: chain}
}

// Resolve tries each provider in order and returns the first complete record.
// Later providers are not consulted once one succeeds. If every provider
// fails, the outcome is Unresolved.
func (r *Resolver) Resolve(ctx context.Context, ip string) location.Outcome {
	for _, p := range r.providers {
		metrics.ProviderRequests.WithLabelValues(p.Name()).Inc()

		rec, err := p.Lookup(ctx, ip)
		if err != nil {
			reason := provider.FailureReason(err)
			metrics.ProviderFailures.WithLabelValues(p.Name(), reason).Inc()
			log.Warn().
				Err(err).
				Str("ip", ip).
				Str("provider", p.Name()).
				Str("reason", reason).
				Msg("provider lookup failed")
			continue
		}

		metrics.Resolutions.WithLabelValues("resolved").Inc()
		log.Debug().
			Str("ip", ip).
			Str("provider", p.Name()).
			Str("country_code", rec.CountryCode).
			Str("city", rec.City).
			Msg("resolved")
		return location.Resolved(ip, p.Name(), rec)
	}

	metrics.Resolutions.WithLabelValues("unresolved").Inc()
	log.Debug().
		Str("ip", ip).
		Int("providers", len(r.providers)).
		Msg("all providers failed")
	return location.Unresolved(ip)
}

// ResolveAll resolves ips one at a time, in order. Duplicates are resolved
// independently.
func (r *Resolver) ResolveAll(ctx context.Context, ips []string) []location.Outcome {
	out := make([]location.Outcome, 0, len(ips))
	for _, ip := range ips {
		out = append(out, r.Resolve(ctx, ip))
	}
	return out
}
