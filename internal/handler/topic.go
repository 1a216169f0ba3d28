package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pulsecheck/internal/service"
)

type TopicHandler struct {
	topics *service.TopicService
	logger *slog.Logger
}

func NewTopicHandler(topics *service.TopicService, logger *slog.Logger) *TopicHandler {
	return &TopicHandler{topics: topics, logger: logger}
}

type topicRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// HandleList
//
// HTTP: GET /api/courses/{courseID}/topics
func (h *TopicHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	topics, err := h.topics.List(r.Context(), principal(r), chi.URLParam(r, "courseID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

// HandleCreate
//
// HTTP: POST /api/courses/{courseID}/topics
func (h *TopicHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req topicRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	topic, err := h.topics.Create(r.Context(), principal(r), chi.URLParam(r, "courseID"), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, topic)
}

// HandleRename
//
// HTTP: PATCH /api/topics/{topicID}
func (h *TopicHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	var req topicRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	topic, err := h.topics.Rename(r.Context(), principal(r), chi.URLParam(r, "topicID"), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

// HandleDelete
//
// HTTP: DELETE /api/topics/{topicID}
func (h *TopicHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.topics.Delete(r.Context(), principal(r), chi.URLParam(r, "topicID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
