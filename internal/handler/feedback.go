package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pulsecheck/internal/service"
)

type FeedbackHandler struct {
	feedback *service.FeedbackService
	logger   *slog.Logger
}

func NewFeedbackHandler(feedback *service.FeedbackService, logger *slog.Logger) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback, logger: logger}
}

type submitFeedbackRequest struct {
	ToUserID  string `json:"toUserId"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Comment   string `json:"comment" validate:"max=2000"`
	Anonymous bool   `json:"anonymous"`
}

// HandleSubmit
//
// HTTP: POST /api/topics/{topicID}/feedback
// REQUEST BODY: {"rating": 4, "comment": "clear examples", "anonymous": false}
func (h *FeedbackHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitFeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	f, err := h.feedback.Submit(r.Context(), principal(r), service.SubmitFeedbackInput{
		TopicID:   chi.URLParam(r, "topicID"),
		ToUserID:  req.ToUserID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		Anonymous: req.Anonymous,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// HandleListForTopic
//
// HTTP: GET /api/topics/{topicID}/feedback
func (h *FeedbackHandler) HandleListForTopic(w http.ResponseWriter, r *http.Request) {
	list, err := h.feedback.ListForTopic(r.Context(), principal(r), chi.URLParam(r, "topicID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleListMine
//
// HTTP: GET /api/feedback/mine
func (h *FeedbackHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.feedback.ListMine(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type updateFeedbackRequest struct {
	Rating  *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

// HandleUpdate
//
// HTTP: PATCH /api/feedback/{feedbackID}
func (h *FeedbackHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateFeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	f, err := h.feedback.Update(r.Context(), principal(r), chi.URLParam(r, "feedbackID"), req.Rating, req.Comment)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// HandleDelete
//
// HTTP: DELETE /api/feedback/{feedbackID}
func (h *FeedbackHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.feedback.Delete(r.Context(), principal(r), chi.URLParam(r, "feedbackID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
