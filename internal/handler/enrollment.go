package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pulsecheck/internal/service"
)

// EnrollmentHandler serves student self-enrollment.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	logger      *slog.Logger
}

func NewEnrollmentHandler(enrollments *service.EnrollmentService, logger *slog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, logger: logger}
}

// userId is only honoured when there is no session.
type enrollRequest struct {
	UserID   string  `json:"userId"`
	CourseID string  `json:"courseId" validate:"required"`
	PassKey  *string `json:"passKey"`
}

// HandleEnroll
//
// HTTP: POST /api/enrollments
// REQUEST BODY: {"courseId": "...", "passKey": "AB12"}
//
// RESPONSES:
//
//	201 enrollment confirmation
//	400 invalid passkey, or already enrolled
//	401 no session (and the explicit userId path is disabled)
//	404 course does not exist
func (h *EnrollmentHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	enrollment, err := h.enrollments.Enroll(r.Context(), principal(r), service.EnrollRequest{
		UserID:   req.UserID,
		CourseID: req.CourseID,
		PassKey:  req.PassKey,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, enrollment)
}

// HandleUnenroll
//
// HTTP: DELETE /api/enrollments/{courseID}
func (h *EnrollmentHandler) HandleUnenroll(w http.ResponseWriter, r *http.Request) {
	if err := h.enrollments.Unenroll(r.Context(), principal(r), chi.URLParam(r, "courseID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "unenrolled"})
}

// HandleListMine returns the courses the caller is enrolled in.
//
// HTTP: GET /api/enrollments
func (h *EnrollmentHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	courses, err := h.enrollments.ListMyCourses(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}
