package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/AbduElrahman2001/BALHA/internal/auth"
	"github.com/AbduElrahman2001/BALHA/internal/models"

	"github.com/pkg/errors"
)

type authContextKey struct{}

// AuthMiddleware lets public endpoints through and requires the admin session
// for everything else.
func AuthMiddleware(gate Gate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		sess, err := gate.Authenticate(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (models.Session, bool) {
	sess, ok := ctx.Value(authContextKey{}).(models.Session)
	return sess, ok
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func deviceIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Device-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/services", "/api/turns/active", "/api/session/turn":
		return r.Method == http.MethodGet
	case "/api/turns", "/api/session/turn/cancel", "/api/auth/login":
		return r.Method == http.MethodPost
	}
	if strings.HasPrefix(r.URL.Path, "/api/turns/") && !strings.Contains(r.URL.Path, "/actions/") {
		return r.Method == http.MethodGet
	}
	return r.Method == http.MethodOptions
}
