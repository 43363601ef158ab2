package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/go-chi/httprate"
	"github.com/marcelsud/webhook-dispatch/apikey"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/breaker"
)

// Deps are the services mounted by Handlers
type Deps struct {
	ServiceName string
	Webhooks    webhook.UseCase
	APIKeys     apikey.UseCase
	Breaker     *breaker.Breaker
	// Metrics serves the Prometheus scrape, nil leaves /metrics unmounted
	Metrics http.Handler
	// RequireAPIKey turns on the X-API-Key / Bearer check for /webhooks and /auth
	RequireAPIKey bool
	// TriggerRateLimit is requests per minute per client IP, 0 disables it
	TriggerRateLimit int
}

// Handlers sets up the API routes
func Handlers(ctx context.Context, deps Deps) *chi.Mux {
	name := deps.ServiceName
	if name == "" {
		name = "webhook-dispatch"
	}
	logger := httplog.NewLogger(name, httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(requirePermission(deps.APIKeys, deps.RequireAPIKey, apikey.PermissionWebhooks))

		r.Method(http.MethodPost, "/", createWebhook(deps.Webhooks))
		r.Method(http.MethodGet, "/", listWebhooks(deps.Webhooks))
		r.With(triggerLimit(deps.TriggerRateLimit)).Method(http.MethodPost, "/trigger", triggerWebhooks(deps.Webhooks))
		r.Method(http.MethodGet, "/queue", getQueue(deps.Webhooks))
		r.Method(http.MethodPost, "/dead-letter/{id}/retry", retryDeadLetter(deps.Webhooks))
		r.Method(http.MethodGet, "/deliveries", listDeliveries(deps.Webhooks))
		r.Method(http.MethodGet, "/breakers", listBreakers(deps.Breaker))
		r.Method(http.MethodGet, "/{id}", getWebhook(deps.Webhooks))
		r.Method(http.MethodPut, "/{id}", updateWebhook(deps.Webhooks))
		r.Method(http.MethodDelete, "/{id}", deleteWebhook(deps.Webhooks))
	})

	if deps.APIKeys != nil {
		r.Route("/auth/api-keys", func(r chi.Router) {
			r.Use(requirePermission(deps.APIKeys, deps.RequireAPIKey, apikey.PermissionAdmin))

			r.Method(http.MethodPost, "/", createAPIKey(deps.APIKeys))
			r.Method(http.MethodGet, "/", listAPIKeys(deps.APIKeys))
			r.Method(http.MethodGet, "/{id}", getAPIKey(deps.APIKeys))
			r.Method(http.MethodDelete, "/{id}", deleteAPIKey(deps.APIKeys))
		})
	}

	return r
}

// triggerLimit rate limits by client IP and answers in the API envelope
func triggerLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeFailure(w, http.StatusTooManyRequests, errorBody{
				Code:     "RATE_LIMITED",
				Category: "rate_limit",
				Message:  "too many trigger requests",
			})
		}),
	)
}
