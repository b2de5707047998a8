package user

import (
	"net/http"

	"vidtube-serverless/internal/httpx"
	"vidtube-serverless/internal/media"
)

const (
	avatarField     = "avatar"
	coverImageField = "coverImage"
)

type Handler struct {
	service *Service
	intake  *media.Intake
}

func NewHandler(service *Service, intake *media.Intake) *Handler {
	return &Handler{service: service, intake: intake}
}

// Register accepts a multipart form with the account fields plus avatar and
// optional coverImage files.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) error {
	staged, err := h.intake.Stage(w, r, avatarField, coverImageField)
	defer staged.Cleanup()
	if err != nil {
		return err
	}

	created, err := h.service.Register(r.Context(), RegisterInput{
		Username:       r.FormValue("username"),
		FullName:       r.FormValue("fullName"),
		Email:          r.FormValue("email"),
		Password:       r.FormValue("password"),
		AvatarPath:     staged.Path(avatarField),
		CoverImagePath: staged.Path(coverImageField),
	})
	if err != nil {
		return err
	}

	httpx.Respond(w, http.StatusCreated, created, "User registered successfully")
	return nil
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) error {
	current, err := currentProfile(r)
	if err != nil {
		return err
	}

	httpx.Respond(w, http.StatusOK, current, "Current user fetched successfully")
	return nil
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) error {
	current, err := currentProfile(r)
	if err != nil {
		return err
	}

	var body AccountInput
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		return err
	}

	updated, err := h.service.UpdateAccount(r.Context(), current.ID, body)
	if err != nil {
		return err
	}

	httpx.Respond(w, http.StatusOK, updated, "Account details updated successfully")
	return nil
}

func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) error {
	current, err := currentProfile(r)
	if err != nil {
		return err
	}

	staged, err := h.intake.Stage(w, r, avatarField)
	defer staged.Cleanup()
	if err != nil {
		return err
	}

	updated, err := h.service.UpdateAvatar(r.Context(), current, staged.Path(avatarField))
	if err != nil {
		return err
	}

	httpx.Respond(w, http.StatusOK, updated, "Avatar image updated successfully")
	return nil
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) error {
	current, err := currentProfile(r)
	if err != nil {
		return err
	}

	staged, err := h.intake.Stage(w, r, coverImageField)
	defer staged.Cleanup()
	if err != nil {
		return err
	}

	updated, err := h.service.UpdateCoverImage(r.Context(), current, staged.Path(coverImageField))
	if err != nil {
		return err
	}

	httpx.Respond(w, http.StatusOK, updated, "Cover image updated successfully")
	return nil
}

func currentProfile(r *http.Request) (Profile, error) {
	current, ok := ProfileFromContext(r.Context())
	if !ok {
		return Profile{}, httpx.Unauthorized("Unauthorized request")
	}
	return current, nil
}
