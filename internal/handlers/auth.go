package handlers

import (
	"net/http"
	"strings"

	"github.com/aluna-estetica/backend/internal/auth"
	"github.com/aluna-estetica/backend/internal/xano"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type userView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
}

func viewUser(u xano.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Role: u.Role}
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "email and password are required"})
		return
	}

	token, err := a.upstream.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, err)
		return
	}
	auth.SetSessionCookie(w, token, a.cfg.CookieTTL, a.cfg.SecureCookies)

	user, err := a.upstream.Me(r.Context(), token)
	if err != nil {
		// The session is valid even if the profile read hiccups.
		a.logger.Warn("post-login profile fetch failed", "err", err)
		a.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	a.writeJSON(w, http.StatusOK, viewUser(user))
}

func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		a.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "name, email, and password are required"})
		return
	}

	token, err := a.upstream.Signup(r.Context(), req.Name, req.Email, req.Password, strings.TrimSpace(req.Phone))
	if err != nil {
		a.writeError(w, err)
		return
	}
	auth.SetSessionCookie(w, token, a.cfg.CookieTTL, a.cfg.SecureCookies)

	user, err := a.upstream.Me(r.Context(), token)
	if err != nil {
		a.logger.Warn("post-signup profile fetch failed", "err", err)
		a.writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
		return
	}
	a.writeJSON(w, http.StatusCreated, viewUser(user))
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, a.cfg.SecureCookies)
	a.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		a.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "authentication required"})
		return
	}
	user, err := a.upstream.Me(r.Context(), token)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, viewUser(user))
}
