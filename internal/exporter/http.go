package exporter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/developingchet/ip-location-exporter/internal/logger"
)

const indexPage = `<html>
<head><title>IP Location Exporter</title></head>
<body>
<h1>IP Location Exporter</h1>
<p>Resolve IP addresses found in Prometheus into ip_location metrics.</p>
<ul>
<li><a href="/metrics?target=up&amp;metrics=instance">/metrics?target=&lt;query&gt;&amp;metrics=&lt;label&gt;</a></li>
<li><a href="/lookup?ip=1.1.1.1">/lookup?ip=&lt;address&gt;</a></li>
<li><a href="/internal/metrics">/internal/metrics</a></li>
</ul>
</body>
</html>
`

// Handler returns the exporter's HTTP routes.
func (e *Exporter) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.AccessLog(log.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/", e.handleIndex)
	r.Get("/metrics", e.handleMetrics)
	r.Get("/lookup", e.handleLookup)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := e.Healthy(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/internal/metrics", promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{}))

	return r
}

func (e *Exporter) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

// handleMetrics serves /metrics?target=<query>&metrics=<label>. The label
// defaults to the target when omitted.
func (e *Exporter) handleMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := q.Get("target")
	if target == "" {
		http.Error(w, "'target' parameter must be specified", http.StatusBadRequest)
		return
	}
	label := q.Get("metrics")
	if label == "" {
		label = target
	}

	start := time.Now()
	payload, err := e.Scrape(r.Context(), target, label)
	if err != nil {
		log.Error().Err(err).Str("target", target).Str("label", label).Msg("scrape failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	log.Debug().Str("target", target).Dur("took", time.Since(start)).Msg("scrape done")

	w.Header().Set("Content-Type", payload.ContentType)
	_, _ = w.Write(payload.Body)
}

// handleLookup serves /lookup?ip=<address>.
func (e *Exporter) handleLookup(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		sendError(w, nil, "'ip' parameter must be specified", http.StatusBadRequest)
		return
	}

	o, err := e.Lookup(r.Context(), ip)
	if err != nil {
		sendError(w, err, "Cannot resolve IP address", http.StatusBadRequest)
		return
	}

	encodeJSON(w, http.StatusOK, o.Record)
}

func encodeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(data)
}
