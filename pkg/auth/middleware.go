package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mizanhq/mizan/pkg/protocol"
)

// Middleware authenticates every request. With verification enabled it
// requires a Bearer token; disabled (local single-user runs) it accepts
// a bare X-Session-ID header. Either way downstream handlers find a
// complete Session in the context or the request never reaches them.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := v.authenticate(r)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

func (v *Verifier) authenticate(r *http.Request) (Session, error) {
	if !v.enabled {
		sid := strings.TrimSpace(r.Header.Get("X-Session-ID"))
		if sid == "" {
			return Session{}, protocol.Unauthorized("missing X-Session-ID header")
		}
		return Session{ID: sid}, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return Session{}, protocol.Unauthorized("missing Authorization header")
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == header {
		return Session{}, protocol.Unauthorized("expected a Bearer token")
	}
	return v.VerifyToken(tokenString)
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	perr, ok := protocol.AsError(err)
	if !ok {
		perr = protocol.Unauthorized(err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(perr)
}
