package middleware

import (
	"crypto/subtle"
	"net/http"
)

// RequireAPIKey guards operator endpoints with a shared X-Api-Key header.
// With no key configured the guarded routes are disabled outright.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				http.Error(w, `{"success":false,"message":"operator API is disabled"}`, http.StatusForbidden)
				return
			}
			got := r.Header.Get("X-Api-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				http.Error(w, `{"success":false,"message":"invalid api key"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
