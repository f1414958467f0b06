// Package publisher turns resolution outcomes into the ip_location gauge set,
// serializes it in the Prometheus text format and optionally pushes it to a
// Pushgateway.
package publisher

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog/log"

	"github.com/developingchet/ip-location-exporter/internal/location"
	"github.com/developingchet/ip-location-exporter/internal/metrics"
)

// MetricName is the gauge emitted for every resolved IP.
const MetricName = "ip_location"

// LabelNames is the label set of MetricName, in order.
var LabelNames = []string{"ip", "country_code", "city", "latitude", "longitude"}

// Payload is a serialized exposition body.
type Payload struct {
	Body        []byte
	ContentType string
}

// Config holds optional push settings. A nil Pusher disables pushing.
type Config struct {
	Pusher   Pusher
	Job      string
	Instance string
}

// Publisher builds a fresh gauge set per call. It holds no per-cycle state and
// is safe for concurrent use.
type Publisher struct {
	pusher   Pusher
	job      string
	instance string
}

// New creates a Publisher.
func New(cfg Config) *Publisher {
	return &Publisher{
		pusher:   cfg.Pusher,
		job:      cfg.Job,
		instance: cfg.Instance,
	}
}

// Publish emits one sample with value 1 per resolved outcome. Unresolved
// outcomes emit nothing and are logged. If a Pusher is configured, the prior
// group is deleted and the new set pushed; push failures are logged and do not
// fail the call.
func (p *Publisher) Publish(ctx context.Context, outcomes []location.Outcome) (Payload, error) {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: MetricName,
		Help: "IP Location Metrics",
	}, LabelNames)
	reg.MustRegister(gauge)

	resolved, unresolved := 0, 0
	for _, o := range outcomes {
		if !o.Resolved {
			unresolved++
			log.Warn().Str("ip", o.IP).Msg("failed to get location, no sample emitted")
			continue
		}
		resolved++
		gauge.WithLabelValues(SampleLabels(o)...).Set(1)
	}

	log.Info().
		Int("ips", len(outcomes)).
		Int("resolved", resolved).
		Int("unresolved", unresolved).
		Msg("publish cycle")

	if p.pusher != nil {
		p.push(ctx, reg)
	}

	return Encode(reg)
}

// SampleLabels returns the label values of the sample for a resolved outcome,
// ordered as LabelNames. The ip label is the queried address.
func SampleLabels(o location.Outcome) []string {
	return []string{
		o.IP,
		o.Record.CountryCode,
		o.Record.City,
		strconv.FormatFloat(o.Record.Latitude, 'f', -1, 64),
		strconv.FormatFloat(o.Record.Longitude, 'f', -1, 64),
	}
}

func (p *Publisher) push(ctx context.Context, g prometheus.Gatherer) {
	if err := p.pusher.Delete(ctx, p.job, p.instance); err != nil {
		metrics.PushErrors.WithLabelValues("delete").Inc()
		log.Warn().Err(err).Str("job", p.job).Str("instance", p.instance).Msg("pushgateway delete failed")
	}
	if err := p.pusher.Push(ctx, p.job, p.instance, g); err != nil {
		metrics.PushErrors.WithLabelValues("push").Inc()
		log.Warn().Err(err).Str("job", p.job).Str("instance", p.instance).Msg("pushgateway push failed")
		return
	}
	log.Debug().Str("job", p.job).Str("instance", p.instance).Msg("pushed")
}

// Encode serializes everything g gathers in the text exposition format.
func Encode(g prometheus.Gatherer) (Payload, error) {
	families, err := g.Gather()
	if err != nil {
		return Payload{}, fmt.Errorf("publisher: gather: %w", err)
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return Payload{}, fmt.Errorf("publisher: encode %s: %w", mf.GetName(), err)
		}
	}

	return Payload{Body: buf.Bytes(), ContentType: string(format)}, nil
}
