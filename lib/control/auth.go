package control

import (
	"crypto/hmac"
	"net/http"
	"strings"
)

// requireAuth enforces the static bearer token on /api routes. An empty
// configured token disables authentication; the default localhost binding
// is the protection in that mode.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		presented, ok := bearerToken(r)
		// hmac.Equal compares in constant time regardless of where the
		// strings differ.
		if !ok || !hmac.Equal([]byte(presented), []byte(s.opts.AuthToken)) {
			log.WithField("remote", r.RemoteAddr).Warn("control request with missing or bad token")
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer x" header.
func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(header, prefix)
	return token, token != ""
}
