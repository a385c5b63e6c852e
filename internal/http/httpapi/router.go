package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"vidluxe/internal/http/handlers"
	"vidluxe/internal/middleware"
)

// RouterOptions carries what the router needs beyond the handlers.
type RouterOptions struct {
	JWTSecret            string
	PaymentWebhookSecret string
	RateLimitPerMin      int
	CORSAllowedOrigins   []string
	// StaticDir is served under /static when set.
	StaticDir string
	// Countries, when set, picks a locale from the client IP for requests
	// without language headers.
	Countries middleware.CountryLookup
	Logger    zerolog.Logger
}

// PaymentSecretHeader authenticates the payment provider callback.
const PaymentSecretHeader = "X-Payment-Secret"

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSAllowedOrigins),
		middleware.Locale("en", opts.Countries),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/styles", app.Styles)

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	r.With(middleware.SharedSecret(PaymentSecretHeader, opts.PaymentWebhookSecret)).
		Post("/v1/payments/confirm", app.ConfirmPayment)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Post("/v1/enhance", app.Enhance)
		r.Post("/v1/uploads", app.Upload)
		r.Route("/v1/jobs", func(r chi.Router) {
			r.Get("/", app.ListJobs)
			r.Get("/export", app.ExportJobs)
			r.Get("/{id}", app.JobStatus)
			r.Delete("/{id}", app.DeleteJob)
		})
		r.Get("/v1/credits", app.Credits)
		r.Get("/v1/credits/transactions", app.Transactions)
		r.Post("/v1/invites/redeem", app.RedeemInvite)
	})

	return r
}
