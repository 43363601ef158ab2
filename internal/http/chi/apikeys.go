package chi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-dispatch/apikey"
)

// apiKeyRequest is the body of POST /auth/api-keys
type apiKeyRequest struct {
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

/* apiKeyResponse never carries the hash
 * Key is only filled in the creation response
 */
type apiKeyResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Key         string     `json:"key,omitempty"`
	KeyPrefix   string     `json:"keyPrefix"`
	Permissions []string   `json:"permissions"`
	Active      bool       `json:"active"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func newAPIKeyResponse(k apikey.APIKey) apiKeyResponse {
	return apiKeyResponse{
		ID:          k.ID,
		Name:        k.Name,
		KeyPrefix:   k.KeyPrefix,
		Permissions: k.Permissions,
		Active:      k.Active,
		ExpiresAt:   k.ExpiresAt,
		LastUsedAt:  k.LastUsedAt,
		CreatedAt:   k.CreatedAt,
	}
}

// createAPIKey handles POST /auth/api-keys
func createAPIKey(keys apikey.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req apiKeyRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		key, value, err := keys.Create(r.Context(), apikey.CreateInput{
			Name:        req.Name,
			Permissions: req.Permissions,
			ExpiresAt:   req.ExpiresAt,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := newAPIKeyResponse(key)
		resp.Key = value
		writeJSON(w, http.StatusCreated, resp)
	})
}

// listAPIKeys handles GET /auth/api-keys
func listAPIKeys(keys apikey.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		all, err := keys.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := make([]apiKeyResponse, 0, len(all))
		for _, k := range all {
			resp = append(resp, newAPIKeyResponse(k))
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// getAPIKey handles GET /auth/api-keys/{id}
func getAPIKey(keys apikey.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := keys.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAPIKeyResponse(key))
	})
}

// deleteAPIKey handles DELETE /auth/api-keys/{id}
func deleteAPIKey(keys apikey.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := keys.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": chi.URLParam(r, "id")})
	})
}
