// Package metrics exposes account lifecycle and HTTP metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	auth "github.com/goliatone/go-verified-auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "verified_auth"

// Collector counts lifecycle events and HTTP responses. It is an
// auth.ActivitySink so the controller feeds it directly.
type Collector struct {
	events          *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var _ auth.ActivitySink = (*Collector)(nil)

// NewCollector creates a Collector and registers it on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Account lifecycle events by type.",
		}, []string{"event"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "HTTP responses by route and status code.",
		}, []string{"route", "status_code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.events,
		c.httpStatus,
		c.requestDuration,
	)

	return c
}

// Record implements auth.ActivitySink.
func (c *Collector) Record(_ context.Context, event auth.ActivityEvent) error {
	c.events.WithLabelValues(string(event.EventType)).Inc()
	return nil
}

// RecordHTTP records a finished request
func (c *Collector) RecordHTTP(route string, statusCode int, duration time.Duration) {
	c.httpStatus.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	c.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Middleware records status and latency per matched route
func (c *Collector) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		start := time.Now()
		err := ctx.Next()

		status := ctx.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		c.RecordHTTP(ctx.Route().Path, status, time.Since(start))
		return err
	}
}

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RegisterRoute mounts the scrape endpoint on app at path
func RegisterRoute(app fiber.Router, path string, gatherer prometheus.Gatherer) {
	app.Get(path, adaptor.HTTPHandler(Handler(gatherer)))
}
