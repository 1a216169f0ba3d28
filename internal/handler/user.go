package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pulsecheck/internal/service"
)

// UserHandler serves the caller's own profile and the admin user list.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleMe returns the logged-in user's profile.
//
// HTTP: GET /api/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Me(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=100"`
	Email *string `json:"email" validate:"omitempty,email"`
}

// HandleUpdateMe changes name and/or email.
//
// HTTP: PATCH /api/me
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), principal(r), req.Name, req.Email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// HandleChangePassword
//
// HTTP: POST /api/me/password
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.users.ChangePassword(r.Context(), principal(r), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListUsers
//
// HTTP: GET /api/admin/users?q=&limit=&offset=
func (h *UserHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	users, err := h.users.ListUsers(r.Context(), principal(r), r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// Both flags are required so a request cannot clear a role by omission.
type setRolesRequest struct {
	IsAdmin      *bool `json:"isAdmin" validate:"required"`
	IsInstructor *bool `json:"isInstructor" validate:"required"`
}

// HandleSetRoles
//
// HTTP: PATCH /api/admin/users/{userID}/roles
// REQUEST BODY: {"isAdmin": false, "isInstructor": true}
func (h *UserHandler) HandleSetRoles(w http.ResponseWriter, r *http.Request) {
	var req setRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user, err := h.users.SetRoles(r.Context(), principal(r), chi.URLParam(r, "userID"), *req.IsAdmin, *req.IsInstructor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
