package handlers

import (
	"net/http"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/internal/auth"
)

// CurrentUserResponse is the admin panel's view of the signed-in operator.
type CurrentUserResponse struct {
	ID    int64     `json:"id"`
	Name  *string   `json:"name"`
	Email *string   `json:"email"`
	Role  auth.Role `json:"role"`
}

// CurrentUser handles GET /api/admin/me. It runs behind the staff gate, so
// the user is already on the context.
func CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		apperr.Write(w, apperr.Unauthorized("Please sign in"), "")
		return
	}
	apperr.WriteJSON(w, http.StatusOK, CurrentUserResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	})
}
