// Package http assembles the API router: the ambient middleware chain, the
// global and reset limiters, the CSRF guard and session loading, then the
// route table.
package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/diagnosis/cruise-bookings/internal/csrf"
	"github.com/diagnosis/cruise-bookings/internal/http/handlers"
	"github.com/diagnosis/cruise-bookings/internal/http/middleware"
	"github.com/diagnosis/cruise-bookings/internal/session"
	"github.com/diagnosis/cruise-bookings/pkg/kv"
	mw "github.com/diagnosis/cruise-bookings/pkg/middleware"
)

type RouterConfig struct {
	Handlers       *handlers.Handlers
	Sessions       *session.Manager
	CSRF           *csrf.Manager
	Store          kv.Store
	AllowedOrigins []string
	GlobalLimit    middleware.RateLimitConfig
	ResetLimit     middleware.RateLimitConfig
	// Ping backs /healthz; nil reports healthy unconditionally.
	Ping func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handlers

	if cfg.GlobalLimit.Name == "" {
		cfg.GlobalLimit.Name = "global"
	}
	if cfg.ResetLimit.Name == "" {
		cfg.ResetLimit.Name = "reset"
	}
	if cfg.ResetLimit.Message == "" {
		cfg.ResetLimit.Message = "Too many password reset attempts, please try again later"
	}
	global := middleware.NewRateLimiter(cfg.Store, cfg.GlobalLimit).Middleware()
	reset := middleware.NewRateLimiter(cfg.Store, cfg.ResetLimit).Middleware()
	idempotent := mw.Idempotency(cfg.Store, func(r *http.Request) string {
		if u := session.UserFromContext(r.Context()); u != nil {
			return u.Username
		}
		return ""
	})

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("cruise-api"))
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(mw.Health(cfg.Ping))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", csrf.HeaderName, csrf.AltHeaderName, "X-Request-ID", mw.IdempotencyHeader},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(global)
		r.Use(middleware.CSRFGuard(cfg.CSRF))
		r.Use(cfg.Sessions.Load)

		r.Get("/csrf-token", h.CSRFToken)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Get("/user", h.CurrentUser)
			r.With(reset).Post("/reset-request", h.RequestPasswordReset)
			r.With(reset).Post("/reset-password", h.ResetPassword)
		})

		r.Route("/profile", func(r chi.Router) {
			r.Use(session.Require)
			r.Patch("/", h.UpdateProfile)
			r.Post("/change-password", h.ChangePassword)
		})

		r.Route("/destinations", func(r chi.Router) {
			r.Get("/", h.ListDestinations)
			r.Get("/{id}", h.GetDestination)
		})

		r.Get("/amenities", h.ListAmenities)

		r.Route("/cruises", func(r chi.Router) {
			r.Get("/", h.ListCruises)
			r.Post("/search", h.SearchCruises)
			r.Get("/destination/{id}", h.ListCruisesByDestination)
			r.Get("/{id}", h.GetCruise)
			r.Get("/{id}/testimonials", h.ListCruiseTestimonials)
		})

		r.Route("/testimonials", func(r chi.Router) {
			r.Get("/", h.ListTestimonials)
			r.Post("/", h.CreateTestimonial)
			r.With(session.Require).Patch("/{id}/verify", h.VerifyTestimonial)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Use(session.Require)
			r.Get("/", h.ListBookings)
			r.Post("/", h.CreateBooking)
			r.Get("/upcoming", h.ListUpcomingBookings)
			r.Get("/past", h.ListPastBookings)
			r.Get("/{id}", h.GetBooking)
			r.Patch("/{id}/status", h.UpdateBookingStatus)
			r.Post("/{id}/cancel", h.CancelBooking)
			r.Post("/{id}/refund", h.RefundBooking)
			r.Post("/{id}/check-in", h.CheckInBooking)
			r.Get("/{id}/payments", h.ListPayments)
			r.With(idempotent).Post("/{id}/payments", h.CreatePayment)
		})

		r.Route("/enquiries", func(r chi.Router) {
			r.Post("/", h.CreateEnquiry)
			r.Group(func(r chi.Router) {
				r.Use(session.Require)
				r.Get("/", h.ListEnquiries)
				r.Get("/{id}", h.GetEnquiry)
				r.Patch("/{id}/status", h.UpdateEnquiryStatus)
				r.Patch("/{id}/assign", h.AssignEnquiry)
				r.Get("/{id}/responses", h.ListEnquiryResponses)
				r.Post("/{id}/responses", h.CreateEnquiryResponse)
			})
		})
	})

	return r
}
