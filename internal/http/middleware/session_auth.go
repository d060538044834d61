package middleware

import (
	"errors"
	"net/http"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/internal/auth"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// UserResolver resolves the signed-in operator for a request.
type UserResolver interface {
	Authenticate(r *http.Request) (*auth.User, error)
}

// RequireRole admits only signed-in users whose role is at least min. It
// runs before any handler so no data is read for rejected callers.
func RequireRole(resolver UserResolver, min auth.Role, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok {
				u, err := resolver.Authenticate(r)
				if err != nil {
					if !errors.Is(err, auth.ErrNoSession) && !errors.Is(err, auth.ErrInvalidSession) {
						logger.Error("session lookup failed", "error", err)
					}
					apperr.Write(w, apperr.Unauthorized("Please sign in"), "")
					return
				}
				user = u
			}
			if !user.Role.AtLeast(min) {
				logger.Warn("insufficient role", "open_id", user.OpenID, "role", user.Role, "required", min)
				apperr.Write(w, apperr.Forbidden("You do not have permission to perform this action"), "")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}
