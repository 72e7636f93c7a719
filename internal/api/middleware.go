package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/storage"
)

type clientKey struct{}

// ClientFromContext returns the authenticated API client, or nil when the
// request passed without authentication
func ClientFromContext(ctx context.Context) *models.ApiClient {
	c, _ := ctx.Value(clientKey{}).(*models.ApiClient)
	return c
}

// apiKeyAuth resolves API keys against the client table
type apiKeyAuth struct {
	repo storage.Repository
}

// authenticate accepts "Bearer cfg_xxx", a raw key in Authorization, or
// the X-API-Key header
func (a *apiKeyAuth) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKeyFrom(r)
		if key == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing api key", "provide Authorization header with Bearer token or X-API-Key header")
			return
		}
		masked := models.MaskKey(key)

		client, err := a.repo.GetClientByApiKey(r.Context(), key)
		switch {
		case err != nil:
			slog.Error("failed to lookup api client", "error", err, "key_prefix", masked)
			writeAuthError(w, http.StatusInternalServerError, "authentication error", "internal server error")
			return
		case client == nil:
			slog.Warn("unknown api key", "key_prefix", masked, "remote_addr", r.RemoteAddr)
			writeAuthError(w, http.StatusUnauthorized, "invalid api key", "the provided api key is not valid")
			return
		case !client.IsActive:
			slog.Warn("inactive api client", "client", client.Name, "key_prefix", masked)
			writeAuthError(w, http.StatusUnauthorized, "client inactive", "this api key has been deactivated")
			return
		}

		go a.touch(client.Name, key)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, client)))
	})
}

// touch records last use off the request path
func (a *apiKeyAuth) touch(name, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.repo.UpdateClientLastUsed(ctx, key); err != nil {
		slog.Error("failed to update client last_used_at", "error", err, "client", name)
	}
}

// permit rejects clients lacking permission
func (a *apiKeyAuth) permit(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientFromContext(r.Context())
			if client == nil {
				writeAuthError(w, http.StatusUnauthorized, "not authenticated", "authentication required")
				return
			}
			if !client.HasPermission(permission) {
				slog.Warn("permission denied", "client", client.Name, "required", permission)
				writeAuthError(w, http.StatusForbidden, "permission denied",
					"client does not have required permission: "+permission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func apiKeyFrom(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// authError is the body of 401/403 responses
type authError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(authError{Error: code, Message: message}); err != nil {
		slog.Error("failed to encode auth error", "error", err)
	}
}
