package chi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-dispatch/apikey"
)

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// APIKeyFromContext returns the key that authenticated the request, if any
func APIKeyFromContext(ctx context.Context) (apikey.APIKey, bool) {
	key, ok := ctx.Value(apiKeyContextKey).(apikey.APIKey)
	return key, ok
}

// keyValue reads X-API-Key first, then a Bearer token
func keyValue(r *http.Request) string {
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

/* requirePermission authenticates the request and checks the key's scope
 * A disabled auth layer passes everything through
 */
func requirePermission(keys apikey.UseCase, enabled bool, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := keys.Authenticate(r.Context(), keyValue(r))
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !key.Allows(permission) {
				writeError(w, r, errForbidden)
				return
			}
			httplog.LogEntrySetField(r.Context(), "api_key_id", key.ID)
			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
