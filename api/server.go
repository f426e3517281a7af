/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind the proxy
  3. Requests:   Request-scoped logger in the context, access log and the
                 http requests counter (by route pattern)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests from the web client
  6. Auth:       Bearer token on every /api route but /api/health

ROUTE GROUPS:
  /api/health               Liveness (public)
  /api/callables/*          authorizeSheet, scheduleEventsReport
  /api/me                   Profile
  /api/organizations/*      Organizations, members, days, events, months,
                            invitations, report runs
  /api/invitations/*        Invitations addressed to the caller
  /api/scenarios/*          Demo data (only when enabled)
  /metrics                  Prometheus (public)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Bearer tokens
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/workhours/overtime/metrics"
)

// RouterConfig are the knobs of NewRouter.
type RouterConfig struct {
	AllowedOrigins  []string
	EnableScenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requests(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Route("/callables", func(r chi.Router) {
				r.Post("/authorizeSheet", h.AuthorizeSheet)
				r.Post("/scheduleEventsReport", h.ScheduleEventsReport)
			})

			r.Get("/me", h.GetMe)
			r.Put("/me", h.SaveMe)

			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", h.ListOrganizations)
				r.Post("/", h.CreateOrganization)

				r.Route("/{org}", func(r chi.Router) {
					r.Post("/default", h.SetDefaultOrganization)
					r.Put("/holidays", h.SetHolidays)
					r.Delete("/membership", h.LeaveOrganization)

					r.Get("/users", h.ListOrganizationUsers)
					r.Put("/users/{uid}/role", h.SetUserRole)
					r.Delete("/users/{uid}", h.RemoveUser)

					r.Get("/vacation-days", h.GetVacationDays)
					r.Put("/vacation-days", h.SetVacationDays)
					r.Get("/illness-days", h.GetIllnessDays)
					r.Put("/illness-days", h.SetIllnessDays)

					r.Get("/events", h.ListEvents)
					r.Post("/events", h.CreateEvent)
					r.Get("/events/{id}", h.GetEvent)
					r.Put("/events/{id}", h.UpdateEvent)
					r.Delete("/events/{id}", h.DeleteEvent)

					r.Get("/months", h.ListMonths)

					r.Get("/invitations", h.ListOrganizationInvitations)
					r.Post("/invitations", h.CreateInvitation)
					r.Delete("/invitations/{id}", h.DeleteInvitation)

					r.Get("/report-runs", h.ListReportRuns)
				})
			})

			r.Route("/invitations", func(r chi.Router) {
				r.Get("/", h.ListMyInvitations)
				r.Post("/{id}/accept", h.AcceptInvitation)
			})

			if cfg.EnableScenarios {
				r.Route("/scenarios", func(r chi.Router) {
					r.Get("/", h.ListScenarios)
					r.Post("/load", h.LoadScenario)
				})
			}
		})
	})

	return r
}

// requests stores a request-scoped logger in the context, logs every
// request and counts it by route pattern.
func requests(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With("req", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(log.WithContext(r.Context(), reqLogger)))

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			reqLogger.Debug("request", "method", r.Method, "route", route, "status", status, "duration", time.Since(start))
		})
	}
}
