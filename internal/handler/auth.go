package handler

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// requireReviewAuth guards the scores endpoints with HTTP basic auth when a
// review password is configured. An empty hash leaves the listing open.
func (h *Handler) requireReviewAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.ReviewPassword == "" {
			next.ServeHTTP(w, r)
			return
		}

		_, password, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword([]byte(h.config.ReviewPassword), []byte(password)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="speakeval review"`)
			h.writeError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
