package readmodel

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vidtube-serverless/internal/httpx"
	"vidtube-serverless/internal/user"
)

type Reader interface {
	ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]HistoryVideo, error)
}

type Handler struct {
	reader Reader
}

func NewHandler(reader Reader) *Handler {
	return &Handler{reader: reader}
}

// ChannelProfile serves GET /c/{username}.
func (h *Handler) ChannelProfile(w http.ResponseWriter, r *http.Request) error {
	viewer, ok := user.ProfileFromContext(r.Context())
	if !ok {
		return httpx.Unauthorized("Unauthorized request")
	}

	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if username == "" {
		return httpx.BadRequest("username is missing")
	}

	channel, err := h.reader.ChannelProfile(r.Context(), username, viewer.ID)
	if err != nil {
		if errors.Is(err, ErrChannelNotFound) {
			return httpx.NotFound("channel does not exists")
		}
		return err
	}

	httpx.Respond(w, http.StatusOK, channel, "User channel fetched successfully")
	return nil
}

func (h *Handler) WatchHistory(w http.ResponseWriter, r *http.Request) error {
	viewer, ok := user.ProfileFromContext(r.Context())
	if !ok {
		return httpx.Unauthorized("Unauthorized request")
	}

	videos, err := h.reader.WatchHistory(r.Context(), viewer.ID)
	if err != nil {
		return err
	}

	httpx.Respond(w, http.StatusOK, videos, "Watch history fetched successfully")
	return nil
}
