package publisher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developingchet/ip-location-exporter/internal/location"
	"github.com/developingchet/ip-location-exporter/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterWith(prometheus.NewRegistry())

	orig := log.Logger
	log.Logger = zerolog.New(io.Discard)
	code := m.Run()
	log.Logger = orig
	os.Exit(code)
}

// fakePusher records the order and identity of calls.
type fakePusher struct {
	mu        sync.Mutex
	calls     []string
	deleteErr error
	pushErr   error
	pushed    []*dto.MetricFamily
}

func (f *fakePusher) Delete(_ context.Context, job, instance string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete "+job+"/"+instance)
	return f.deleteErr
}

func (f *fakePusher) Push(_ context.Context, job, instance string, g prometheus.Gatherer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "push "+job+"/"+instance)
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	f.pushed = mfs
	return f.pushErr
}

func parse(t *testing.T, p Payload) map[string]*dto.MetricFamily {
	t.Helper()
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(bytes.NewReader(p.Body))
	require.NoError(t, err)
	return mfs
}

func labels(m *dto.Metric) map[string]string {
	out := map[string]string{}
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

var (
	sydney = location.Resolved("1.1.1.1", "first", location.Record{
		IP: "1.1.1.1", CountryCode: "AU", City: "Sydney", Latitude: -33.8688, Longitude: 151.2093,
	})
	mountainView = location.Resolved("8.8.8.8", "second", location.Record{
		IP: "8.8.8.8", CountryCode: "US", City: "Mountain View", Latitude: 37.751, Longitude: -97.822,
	})
)

func TestPublish_EmitsOneSamplePerResolvedIP(t *testing.T) {
	p := New(Config{})

	payload, err := p.Publish(context.Background(), []location.Outcome{
		sydney,
		location.Unresolved("192.0.2.1"),
		mountainView,
	})
	require.NoError(t, err)
	assert.Equal(t, "text/plain; version=0.0.4; charset=utf-8", payload.ContentType)

	mfs := parse(t, payload)
	require.Contains(t, mfs, MetricName)
	mf := mfs[MetricName]
	assert.Equal(t, dto.MetricType_GAUGE, mf.GetType())
	require.Len(t, mf.GetMetric(), 2)

	byIP := map[string]map[string]string{}
	for _, m := range mf.GetMetric() {
		assert.Equal(t, float64(1), m.GetGauge().GetValue())
		l := labels(m)
		byIP[l["ip"]] = l
	}

	assert.Equal(t, map[string]string{
		"ip": "1.1.1.1", "country_code": "AU", "city": "Sydney", "latitude": "-33.8688", "longitude": "151.2093",
	}, byIP["1.1.1.1"])
	assert.Equal(t, map[string]string{
		"ip": "8.8.8.8", "country_code": "US", "city": "Mountain View", "latitude": "37.751", "longitude": "-97.822",
	}, byIP["8.8.8.8"])
	assert.NotContains(t, byIP, "192.0.2.1")
}

func TestPublish_DuplicateIPsCollapse(t *testing.T) {
	payload, err := New(Config{}).Publish(context.Background(), []location.Outcome{sydney, sydney})
	require.NoError(t, err)

	mfs := parse(t, payload)
	require.Len(t, mfs[MetricName].GetMetric(), 1)
}

func TestPublish_NothingResolved(t *testing.T) {
	payload, err := New(Config{}).Publish(context.Background(), []location.Outcome{location.Unresolved("192.0.2.1")})
	require.NoError(t, err)
	assert.Empty(t, payload.Body)
}

func TestPublish_PushDeletesThenPushes(t *testing.T) {
	fp := &fakePusher{}
	p := New(Config{Pusher: fp, Job: "ip_location_exporter", Instance: "host-a"})

	_, err := p.Publish(context.Background(), []location.Outcome{sydney, mountainView})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"delete ip_location_exporter/host-a",
		"push ip_location_exporter/host-a",
	}, fp.calls)
	require.Len(t, fp.pushed, 1)
	assert.Len(t, fp.pushed[0].GetMetric(), 2)
}

func TestPublish_PushErrorsAreBestEffort(t *testing.T) {
	fp := &fakePusher{deleteErr: errors.New("gateway down"), pushErr: errors.New("gateway down")}
	p := New(Config{Pusher: fp, Job: "j", Instance: "i"})

	beforeDelete := testutil.ToFloat64(metrics.PushErrors.WithLabelValues("delete"))
	beforePush := testutil.ToFloat64(metrics.PushErrors.WithLabelValues("push"))

	payload, err := p.Publish(context.Background(), []location.Outcome{sydney})
	require.NoError(t, err)
	assert.NotEmpty(t, payload.Body)

	assert.Equal(t, []string{"delete j/i", "push j/i"}, fp.calls)
	assert.Equal(t, beforeDelete+1, testutil.ToFloat64(metrics.PushErrors.WithLabelValues("delete")))
	assert.Equal(t, beforePush+1, testutil.ToFloat64(metrics.PushErrors.WithLabelValues("push")))
}

func TestSampleLabels(t *testing.T) {
	assert.Equal(t, []string{"8.8.8.8", "US", "Mountain View", "37.751", "-97.822"}, SampleLabels(mountainView))
}

func TestGatewayPusher_DeleteThenPutSameGroup(t *testing.T) {
	type call struct{ method, path string }
	var (
		mu    sync.Mutex
		calls []call
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.Path})
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := New(Config{
		Pusher:   NewGatewayPusher(srv.URL, srv.Client()),
		Job:      "ip_location_exporter",
		Instance: "host-a",
	})
	_, err := p.Publish(context.Background(), []location.Outcome{sydney})
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, call{http.MethodDelete, "/metrics/job/ip_location_exporter/instance/host-a"}, calls[0])
	assert.Equal(t, call{http.MethodPut, "/metrics/job/ip_location_exporter/instance/host-a"}, calls[1])
}
