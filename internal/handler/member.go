package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pulsecheck/internal/service"
)

// MemberHandler manages a course roster. Every route is limited to admins
// and the owning instructor; anyone else sees 404.
type MemberHandler struct {
	members *service.MembershipService
	logger  *slog.Logger
}

func NewMemberHandler(members *service.MembershipService, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: members, logger: logger}
}

// HandleList
//
// HTTP: GET /api/courses/{courseID}/members
func (h *MemberHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.ListMembers(r.Context(), principal(r), chi.URLParam(r, "courseID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type addMemberRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// HandleAdd enrolls a user directly, without a passkey.
//
// HTTP: POST /api/courses/{courseID}/members
// REQUEST BODY: {"userId": "..."}
func (h *MemberHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	member, err := h.members.AddMember(r.Context(), principal(r), chi.URLParam(r, "courseID"), req.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// HandleRemove
//
// HTTP: DELETE /api/courses/{courseID}/members/{userID}
func (h *MemberHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	err := h.members.RemoveMember(r.Context(), principal(r), chi.URLParam(r, "courseID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}

// HandleSearch backs the add-member typeahead.
//
// HTTP: GET /api/courses/{courseID}/members/search?q=jane&limit=10
func (h *MemberHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	users, err := h.members.SearchCandidates(r.Context(), principal(r), chi.URLParam(r, "courseID"), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
