package auth

import (
	"net/http"
	"strings"

	"vidtube-serverless/internal/httpx"
	"vidtube-serverless/internal/user"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) error {
	var body LoginInput
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		return err
	}

	session, err := h.service.Login(r.Context(), body)
	if err != nil {
		return err
	}

	setSessionCookies(w, TokenPair{AccessToken: session.AccessToken, RefreshToken: session.RefreshToken})
	httpx.Respond(w, http.StatusOK, session, "User logged In Successfully")
	return nil
}

// Refresh reads the refresh token from its cookie, falling back to the JSON body.
// An unreadable body counts as no token presented.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) error {
	incoming := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		incoming = strings.TrimSpace(cookie.Value)
	}
	if incoming == "" {
		var body refreshRequest
		if err := httpx.DecodeJSON(w, r, &body); err != nil {
			return httpx.Unauthorized("Unauthorized request")
		}
		incoming = body.RefreshToken
	}

	pair, err := h.service.Refresh(r.Context(), incoming)
	if err != nil {
		return err
	}

	setSessionCookies(w, pair)
	httpx.Respond(w, http.StatusOK, pair, "Access token refreshed")
	return nil
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) error {
	current, ok := user.ProfileFromContext(r.Context())
	if !ok {
		return httpx.Unauthorized("Unauthorized request")
	}

	if err := h.service.Logout(r.Context(), current.ID); err != nil {
		return err
	}

	clearSessionCookies(w)
	httpx.Respond(w, http.StatusOK, map[string]any{}, "User logged out")
	return nil
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) error {
	current, ok := user.ProfileFromContext(r.Context())
	if !ok {
		return httpx.Unauthorized("Unauthorized request")
	}

	var body ChangePasswordInput
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		return err
	}

	if err := h.service.ChangePassword(r.Context(), current.ID, body); err != nil {
		return err
	}

	httpx.Respond(w, http.StatusOK, map[string]any{}, "Password changed successfully")
	return nil
}
