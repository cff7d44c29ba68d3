package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/fleetbilling/pkg/clientip"
	"github.com/dmitrymomot/fleetbilling/pkg/environment"
	"github.com/dmitrymomot/fleetbilling/pkg/httpserver"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/requestid"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

type server struct {
	svc  Services
	opts *options
}

// NewRouter mounts the billing HTTP API:
//
//	GET  /health/live, /health/ready, /metrics
//	POST /webhooks/billing
//	GET  /api/v1/plans
//	POST /api/v1/tenants
//	/api/v1/billing/...   tenant-scoped, identified by the tenant header
func NewRouter(svc Services, opts ...Option) http.Handler {
	s := &server{svc: svc, opts: newOptions(opts)}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware())
	r.Use(environment.Middleware(s.opts.env))
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	if s.opts.metrics != nil {
		r.Use(s.opts.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.opts.metrics.Handler())
	}

	r.NotFound(s.wrap(func(*http.Request) (Response, error) { return nil, ErrNotFound }))
	r.MethodNotAllowed(s.wrap(func(*http.Request) (Response, error) { return nil, ErrMethodNotAllowed }))

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(s.opts.logger, 5*time.Second, s.opts.readiness...))

	r.Post("/webhooks/billing", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.requestTimeout))

		r.Get("/plans", s.wrap(s.listPlans))
		r.Post("/tenants", s.wrap(s.registerTenant))

		r.Route("/billing", func(r chi.Router) {
			r.Use(tenant.Middleware(
				tenant.NewHeaderResolver(s.opts.tenantHeader),
				svc.Tenants,
				tenant.WithLogger(s.opts.logger),
				tenant.WithErrorHandler(s.renderError),
			))
			r.Use(tenant.RequireTenant(s.renderError))

			r.Get("/entitlement", s.wrap(s.getEntitlement))
			r.Get("/limits/{resource}", s.wrap(s.checkLimit))
			r.Post("/limits/{resource}/enforce", s.wrap(s.enforceLimit))
			r.Post("/usage/{resource}", s.wrap(s.updateUsage))
			r.Post("/usage/{resource}/reserve", s.wrap(s.reserveUsage))
			r.Put("/plan", s.wrap(s.changePlan))
			r.Post("/portal", s.wrap(s.portal))
			r.Post("/checkout", s.wrap(s.checkout))
			r.Get("/invoices", s.wrap(s.invoices))
			r.Get("/payment-method", s.wrap(s.paymentMethod))
			r.Get("/payments", s.wrap(s.payments))
			r.Post("/cancel", s.wrap(s.cancel))
		})
	})

	return r
}

type handlerFunc func(r *http.Request) (Response, error)

// wrap renders the handler's response, or its error through classify.
func (s *server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h(r)
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		if err := resp.Render(w, r); err != nil {
			s.opts.logger.ErrorContext(r.Context(), "failed to render response", logger.Error(err))
		}
	}
}

func (s *server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err, !s.opts.env.IsProduction())

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.opts.logger.Log(r.Context(), level, "request failed",
		slog.Int("status", status),
		slog.String("code", detail.Code),
		logger.Error(err))

	resp := jsonResponse{status: status, body: JSONResponse{Error: detail}}
	if err := resp.Render(w, r); err != nil {
		s.opts.logger.ErrorContext(r.Context(), "failed to render error", logger.Error(err))
	}
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.opts.logger.InfoContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			logger.Duration(time.Since(start)))
	})
}
