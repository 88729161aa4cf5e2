package middleware

import (
	"context"
	"net/http"
)

type contextKey string

// MasterUserKey is the request-context key holding the authenticated tenant id.
const MasterUserKey contextKey = "master_user_id"

// KeyResolver maps a presented API key to a tenant id.
type KeyResolver interface {
	Resolve(apiKey string) (string, error)
}

// APIKey authenticates requests by the X-API-Key header and stores the
// resolved tenant id in the request context. A nil resolver disables
// authentication; the tenant then comes from the X-Master-User header
// (development mode).
func APIKey(resolver KeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				masterUserID := r.Header.Get("X-Master-User")
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), MasterUserKey, masterUserID)))
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				http.Error(w, `{"error":"missing API key"}`, http.StatusUnauthorized)
				return
			}
			masterUserID, err := resolver.Resolve(apiKey)
			if err != nil {
				http.Error(w, `{"error":"invalid API key"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), MasterUserKey, masterUserID)))
		})
	}
}

// MasterUser extracts the authenticated tenant id from a request context.
func MasterUser(ctx context.Context) string {
	id, _ := ctx.Value(MasterUserKey).(string)
	return id
}
