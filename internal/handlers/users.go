package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/AnshRaj112/serenify-auth/internal/apperr"
	"github.com/AnshRaj112/serenify-auth/internal/models"
	"github.com/AnshRaj112/serenify-auth/internal/response"
	"github.com/AnshRaj112/serenify-auth/internal/services"
)

// multipart overhead allowed on top of the image itself
const avatarFormSlack = 1 << 20

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.auth.GetMe(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "User retrieved successfully", view)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, apperr.NotFound("User not found"))
		return
	}
	profile, err := h.auth.GetPublicProfile(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "User retrieved successfully", profile)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var patch models.ProfilePatch
	if err := decode(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	profile, err := h.auth.UpdateProfile(r.Context(), userID, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Profile updated successfully", profile)
}

// UploadAvatar takes a multipart form with the image in the "avatar" field.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAvatarBytes+avatarFormSlack)
	if err := r.ParseMultipartForm(services.MaxAvatarBytes + avatarFormSlack); err != nil {
		h.fail(w, r, apperr.Validation("Invalid upload", err.Error()))
		return
	}
	file, _, err := r.FormFile("avatar")
	if err != nil {
		h.fail(w, r, apperr.Validation("Validation failed", "Avatar file is required"))
		return
	}
	defer file.Close()

	profile, err := h.auth.UploadAvatar(r.Context(), userID, file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Avatar uploaded successfully", profile)
}

func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.auth.DeleteAccount(r.Context(), requestMeta(r), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Account deleted successfully", nil)
}
