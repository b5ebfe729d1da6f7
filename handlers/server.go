package handlers

import (
	"context"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"deyn.app/cloud/auth"
	"deyn.app/cloud/internal/email"
	"deyn.app/cloud/internal/logger"
	"deyn.app/cloud/internal/ratelimit"
	"deyn.app/cloud/models"
	"deyn.app/cloud/payment"
	"deyn.app/cloud/repository"
)

// AuthProvider is the part of the hosted auth API the handlers use.
type AuthProvider interface {
	SignUp(ctx context.Context, email, password string) (*auth.Tokens, error)
	SignIn(ctx context.Context, email, password string) (*auth.Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
	SendPasswordReset(ctx context.Context, email, redirectURL string) error
	UpdatePassword(ctx context.Context, accessToken, password string) error
}

type Options struct {
	Version string

	ProtectedPrefix          string
	LoginPath                string
	PasswordResetRedirectURL string
	StripeWebhookSecret      string

	EnforceSubscription bool
	AllowedOrigins      []string
	SecureCookies       bool
	// TrustProxyHeaders rewrites the client address from X-Forwarded-For
	// and X-Real-IP before rate limiting.
	TrustProxyHeaders bool

	// AuthLimit and PaymentLimit are requests per minute per client IP.
	AuthLimit    int
	PaymentLimit int
}

type Deps struct {
	Customers *repository.CustomerRepository
	Debts     *repository.DebtRepository
	Profiles  *repository.ProfileRepository
	Payments  payment.Processor
	Auth      AuthProvider
	Verifier  auth.TokenVerifier
	Mailer    email.Sender
}

type Server struct {
	Router chi.Router
	Deps
	opts Options
}

func NewHttpServer(deps Deps, opts Options) *Server {
	if opts.ProtectedPrefix == "" {
		opts.ProtectedPrefix = "/dashboard"
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.AuthLimit == 0 {
		opts.AuthLimit = 10
	}
	if opts.PaymentLimit == 0 {
		opts.PaymentLimit = 5
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if deps.Mailer == nil {
		deps.Mailer = email.LogSender{}
	}

	s := &Server{
		Router: chi.NewRouter(),
		Deps:   deps,
		opts:   opts,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.Router

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})

	r.Use(middleware.RequestID)
	if s.opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(logger.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(sentryHandler.Handle)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.ProtectPrefix(s.Verifier, s.opts.ProtectedPrefix, s.opts.LoginPath))

	authLimit := ratelimit.Middleware(ratelimit.New(s.opts.AuthLimit, time.Minute), time.Minute)
	paymentLimit := ratelimit.Middleware(ratelimit.New(s.opts.PaymentLimit, time.Minute), time.Minute)
	requireSession := auth.Middleware(s.Verifier, auth.MiddlewareConfig{
		OnAuthenticated: s.ensureProfile,
	})

	r.Get("/health", s.Health)

	r.Route("/auth", func(r chi.Router) {
		r.With(authLimit).Post("/signup", s.SignUp)
		r.With(authLimit).Post("/login", s.Login)
		r.With(authLimit).Post("/forgot-password", s.ForgotPassword)
		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Post("/logout", s.Logout)
			r.Post("/update-password", s.UpdatePassword)
			r.Get("/session", s.Session)
		})
	})

	r.Post("/api/webhooks/stripe", s.StripeWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireSession)
		r.Get("/profile", s.GetProfile)
		r.With(paymentLimit).Post("/evc-payment", s.EVCPayment)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAccess)

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", s.ListCustomers)
				r.Post("/", s.CreateCustomer)
				r.Route("/{customerID}", func(r chi.Router) {
					r.Get("/", s.GetCustomer)
					r.Patch("/", s.UpdateCustomer)
					r.Delete("/", s.DeleteCustomer)
					r.Get("/debts", s.ListDebts)
					r.Post("/debts", s.CreateDebt)
				})
			})

			r.Route("/debts/{debtID}", func(r chi.Router) {
				r.Patch("/", s.UpdateDebt)
				r.Delete("/", s.DeleteDebt)
				r.Put("/status", s.SetDebtStatus)
				r.Post("/payments", s.ApplyPayment)
			})
		})
	})

	r.Route(s.opts.ProtectedPrefix, func(r chi.Router) {
		r.Use(s.requireAccess)
		r.Get("/", s.Dashboard)
		r.Get("/{customerID}", s.CustomerDashboard)
	})
}

func (s *Server) ensureProfile(ctx context.Context, session models.Session) error {
	_, err := s.Profiles.Ensure(ctx, session)
	return err
}

// requireAccess answers 402 once the trial or subscription window is over.
func (s *Server) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := auth.SessionFromContext(r.Context())
		if !ok {
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !s.opts.EnforceSubscription {
			next.ServeHTTP(w, r)
			return
		}

		profile, err := s.Profiles.Ensure(r.Context(), session)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !s.Profiles.HasAccess(profile) {
			logger.Info("Access denied, subscription required", map[string]interface{}{
				"user_id":       session.UserID,
				"trial_ends_at": profile.TrialEndsAt,
			})
			writeErrorResponse(w, http.StatusPaymentRequired, "subscription required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   s.opts.Version,
		Timestamp: time.Now().UTC(),
	})
}
