package publisher

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Pusher replaces a job/instance group on a push aggregation endpoint.
type Pusher interface {
	Delete(ctx context.Context, job, instance string) error
	Push(ctx context.Context, job, instance string, g prometheus.Gatherer) error
}

// Compile-time interface check.
var _ Pusher = (*GatewayPusher)(nil)

// GatewayPusher talks to a Prometheus Pushgateway.
type GatewayPusher struct {
	url    string
	client *http.Client
}

// NewGatewayPusher creates a pusher for the Pushgateway at url. A nil client
// uses http.DefaultClient.
func NewGatewayPusher(url string, client *http.Client) *GatewayPusher {
	if client == nil {
		client = http.DefaultClient
	}
	return &GatewayPusher{url: url, client: client}
}

func (g *GatewayPusher) pusher(job, instance string) *push.Pusher {
	return push.New(g.url, job).
		Grouping("instance", instance).
		Client(g.client)
}

// Delete removes every metric of the job/instance group.
func (g *GatewayPusher) Delete(ctx context.Context, job, instance string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.pusher(job, instance).Delete()
}

// Push replaces the job/instance group with everything gatherer collects.
func (g *GatewayPusher) Push(ctx context.Context, job, instance string, gatherer prometheus.Gatherer) error {
	return g.pusher(job, instance).Gatherer(gatherer).PushContext(ctx)
}
