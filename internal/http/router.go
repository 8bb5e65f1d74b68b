package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/potholewatch/server/internal/http/handlers"
	"github.com/potholewatch/server/internal/metrics"
	"github.com/potholewatch/server/internal/middleware"
	"github.com/potholewatch/server/internal/pipeline"
)

// Deps bundles everything the router wires into handlers
type Deps struct {
	Auth     *handlers.AuthHandler
	Reports  *handlers.ReportHandler
	Health   *handlers.HealthHandler
	Gate     *pipeline.Gate
	Metrics  *metrics.Metrics
	CodeRate *middleware.RateLimiter // nil or disabled means unlimited

	// TrustProxy enables chi's RealIP; without it clients are keyed on the peer address.
	TrustProxy bool
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if d.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(d.Metrics.Middleware)

	r.Get("/health", d.Health.ServeHTTP)
	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if d.CodeRate != nil {
				r.Use(middleware.RateLimitMiddleware(d.CodeRate, middleware.GetIPKey, handlers.RejectRateLimited))
			}
			r.Post("/send-otp", d.Auth.HandleSendOTP)
			r.Post("/verify-otp", d.Auth.HandleVerifyOTP)
		})

		r.Post("/report", d.Reports.HandleSubmitReport)
		r.Get("/potholes", d.Reports.HandleListReports)
		r.Get("/dashboard", d.Reports.HandleDashboard)

		// Protected routes (require valid JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(d.Gate, handlers.RespondWithError))
			r.Get("/me", d.Auth.HandleMe)
		})
	})

	return r
}
