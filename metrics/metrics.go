// Package metrics holds the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Participants tracks the participant count as seen by this process:
	// seeded from the store at startup, then moved by genuine inserts and deletes.
	Participants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zako_participants",
		Help: "Participants known to this process",
	})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zako_registrations_total",
		Help: "Registration attempts by outcome",
	}, []string{"outcome"})

	Likes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zako_likes_total",
		Help: "Like attempts by outcome",
	}, []string{"outcome"})

	Deletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zako_deletions_total",
		Help: "Deletion attempts by outcome",
	}, []string{"outcome"})

	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zako_geo_lookups_total",
		Help: "Geolocation lookups by outcome",
	}, []string{"outcome"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zako_http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zako_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Unmatched labels requests that reached no route.
const Unmatched = "unmatched"

// ObserveRequest records one finished HTTP request under its route template.
func ObserveRequest(route, method string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RouteTemplate keeps label cardinality bounded by using the mux template.
// Paths no route serves, including wrong verbs on known paths, share one label.
func RouteTemplate(router *mux.Router, r *http.Request) string {
	if router == nil {
		return Unmatched
	}
	var match mux.RouteMatch
	if !router.Match(r, &match) || match.MatchErr != nil || match.Route == nil {
		return Unmatched
	}
	if tpl, err := match.Route.GetPathTemplate(); err == nil {
		return tpl
	}
	return Unmatched
}
