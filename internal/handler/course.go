package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/service"
)

// CourseHandler manages course CRUD.
type CourseHandler struct {
	courses     *service.CourseService
	enrollments *service.EnrollmentService
	logger      *slog.Logger
}

func NewCourseHandler(courses *service.CourseService, enrollments *service.EnrollmentService, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{courses: courses, enrollments: enrollments, logger: logger}
}

// HandleList returns the courses the caller's role can see.
//
// HTTP: GET /api/courses
func (h *CourseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.List(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

// HandleListEnrollable returns every course as a public summary. The signup
// page calls it before the visitor has an account.
//
// HTTP: GET /api/courses/enrollable
func (h *CourseHandler) HandleListEnrollable(w http.ResponseWriter, r *http.Request) {
	courses, err := h.enrollments.ListEnrollable(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

type createCourseRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	PassKey      string `json:"passKey" validate:"omitempty,max=6"`
	InstructorID string `json:"instructorId"`
}

// HandleCreate
//
// HTTP: POST /api/courses
// REQUEST BODY: {"name": "Go 101", "passKey": "AB12", "instructorId": "..."}
func (h *CourseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	course, err := h.courses.Create(r.Context(), principal(r), service.CreateCourseInput{
		Name:         req.Name,
		PassKey:      req.PassKey,
		InstructorID: req.InstructorID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, course)
}

// HandleGet
//
// HTTP: GET /api/courses/{courseID}
func (h *CourseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	course, err := h.courses.Get(r.Context(), principal(r), chi.URLParam(r, "courseID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

// Pointer fields distinguish "absent" from "set to empty": an empty passKey
// clears it, an empty instructorId unassigns the course.
type updateCourseRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=100"`
	PassKey      *string `json:"passKey" validate:"omitempty,max=6"`
	InstructorID *string `json:"instructorId"`
}

// HandleUpdate
//
// HTTP: PATCH /api/courses/{courseID}
func (h *CourseHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateCourseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	course, err := h.courses.Update(r.Context(), principal(r), chi.URLParam(r, "courseID"), model.CoursePatch{
		Name:         req.Name,
		PassKey:      req.PassKey,
		InstructorID: req.InstructorID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

// HandleDelete removes the course with its topics, feedback and memberships.
//
// HTTP: DELETE /api/courses/{courseID}
func (h *CourseHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.courses.Delete(r.Context(), principal(r), chi.URLParam(r, "courseID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
