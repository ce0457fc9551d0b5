package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/aluna-estetica/backend/internal/auth"
	"github.com/aluna-estetica/backend/internal/xano"
)

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	token := auth.TokenFromContext(r.Context())

	users, err := a.caches.Users.GetOrFill(r.Context(), role+"|"+q, func(ctx context.Context) ([]xano.User, error) {
		return a.upstream.ListUsers(ctx, token, role, q)
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, viewUser(u))
	}
	a.writeJSON(w, http.StatusOK, views)
}
