package sandbox

import (
	"context"
	"net/http"
	"strings"

	"github.com/IVANFROL/reklama-oleg/internal/models"
)

type contextKey string

const ctxIdentityKey contextKey = "identity"

// requireUser rejects requests without a valid bearer token and puts the
// caller's identity into the request context.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearer(r)
		if raw == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		id, err := s.auth.Authenticate(raw)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next(w, r.WithContext(withIdentity(r.Context(), id)))
	}
}

// requireAdmin is requireUser plus a check against the admin list.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request) {
		id := identityFromCtx(r.Context())
		if !s.isAdmin(id.Username) {
			writeDetail(w, http.StatusForbidden, "Admin access required")
			return
		}
		next(w, r)
	})
}

func withIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, id)
}

func identityFromCtx(ctx context.Context) models.Identity {
	id, _ := ctx.Value(ctxIdentityKey).(models.Identity)
	return id
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
