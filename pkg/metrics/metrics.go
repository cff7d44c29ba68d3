package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
)

// Collector owns a private Prometheus registry with the billing service metrics.
// It implements billing.Observer, reconcile.Observer and subscription.LimitObserver.
type Collector struct {
	registry *prometheus.Registry

	WebhookEvents       *prometheus.CounterVec
	LimitRejections     *prometheus.CounterVec
	GatewayCalls        *prometheus.CounterVec
	GatewayDuration     *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Collector. namespace prefixes every metric name.
func New(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Billing notifications by normalized type and outcome",
		}, []string{"event_type", "outcome"}),
		LimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_rejections_total",
			Help:      "Requests rejected because a resource limit was reached",
		}, []string{"resource"}),
		GatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_calls_total",
			Help:      "Payment processor API calls by operation and result",
		}, []string{"provider", "operation", "result"}),
		GatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_call_duration_seconds",
			Help:      "Duration of payment processor API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.WebhookEvents,
		c.LimitRejections,
		c.GatewayCalls,
		c.GatewayDuration,
		c.HTTPRequestsTotal,
		c.HTTPRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry, e.g. to add collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveWebhook(eventType billing.EventType, outcome string) {
	c.WebhookEvents.WithLabelValues(string(eventType), outcome).Inc()
}

func (c *Collector) ObserveLimitRejection(r plan.Resource) {
	c.LimitRejections.WithLabelValues(string(r)).Inc()
}

func (c *Collector) ObserveGatewayCall(provider, op string, err error, took time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.GatewayCalls.WithLabelValues(provider, op, result).Inc()
	c.GatewayDuration.WithLabelValues(provider, op).Observe(took.Seconds())
}

// Middleware records request counts and latency per chi route pattern.
// Unmatched requests are grouped under "unmatched" to bound label cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
