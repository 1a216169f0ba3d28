package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

type SubmitFeedbackInput struct {
	TopicID   string
	ToUserID  string // defaults to the course instructor
	Rating    int
	Comment   string
	Anonymous bool
}

type FeedbackService struct {
	access   courseAccess
	topics   repository.TopicRepository
	feedback repository.FeedbackRepository
	users    repository.UserRepository
	recorder Recorder
	logger   *slog.Logger
}

func NewFeedbackService(
	courses repository.CourseRepository,
	memberships repository.MembershipRepository,
	topics repository.TopicRepository,
	feedback repository.FeedbackRepository,
	users repository.UserRepository,
	recorder Recorder,
	logger *slog.Logger,
) *FeedbackService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &FeedbackService{
		access:   courseAccess{courses: courses, memberships: memberships},
		topics:   topics,
		feedback: feedback,
		users:    users,
		recorder: recorder,
		logger:   logger,
	}
}

func validateRating(rating int) error {
	if rating < model.MinRating || rating > model.MaxRating {
		return apperror.ValidationFailed("rating",
			fmt.Sprintf("rating must be between %d and %d", model.MinRating, model.MaxRating))
	}
	return nil
}

func cleanComment(comment string) (string, error) {
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return "", apperror.ValidationFailed("comment",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}
	return comment, nil
}

// loadTopic returns the topic and its course as seen by actor. Topics in
// courses the actor cannot see are reported missing.
func (s *FeedbackService) loadTopic(ctx context.Context, actor model.Principal, topicID string) (*model.Topic, *model.Course, bool, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, false, err
	}
	if err := validID("topicId", topicID); err != nil {
		return nil, nil, false, err
	}
	topic, err := s.topics.GetTopicByID(ctx, topicID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, false, err
		}
		return nil, nil, false, fmt.Errorf("loading topic %s: %w", topicID, err)
	}
	course, manages, err := s.access.authorizeCourseView(ctx, actor, topic.CourseID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, false, apperror.NotFound("topic", topicID)
		}
		return nil, nil, false, err
	}
	return topic, course, manages, nil
}

// Submit records feedback from an enrolled member (or an admin).
func (s *FeedbackService) Submit(ctx context.Context, actor model.Principal, in SubmitFeedbackInput) (*model.Feedback, error) {
	ctx, span := tracer.Start(ctx, "FeedbackService.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("topic.id", in.TopicID), attribute.Bool("feedback.anonymous", in.Anonymous))

	f, err := s.submit(ctx, actor, in)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return f, nil
}

func (s *FeedbackService) submit(ctx context.Context, actor model.Principal, in SubmitFeedbackInput) (*model.Feedback, error) {
	topic, course, manages, err := s.loadTopic(ctx, actor, in.TopicID)
	if err != nil {
		return nil, err
	}
	// Managing a course is not enrolment: an owning instructor still needs a
	// membership to submit.
	if manages && !actor.IsAdmin {
		if _, err := s.access.memberships.GetMembership(ctx, actor.UserID, course.ID); err != nil {
			if isNotFound(err) {
				return nil, apperror.NotFound("topic", in.TopicID)
			}
			return nil, fmt.Errorf("checking membership: %w", err)
		}
	}

	if err := validateRating(in.Rating); err != nil {
		return nil, err
	}
	comment, err := cleanComment(in.Comment)
	if err != nil {
		return nil, err
	}

	toUserID := strings.TrimSpace(in.ToUserID)
	if toUserID == "" {
		if course.InstructorID == nil {
			return nil, apperror.ValidationFailed("toUserId", "course has no instructor; name a recipient")
		}
		toUserID = *course.InstructorID
	} else {
		if err := validID("toUserId", toUserID); err != nil {
			return nil, err
		}
		if _, err := s.users.GetUserByID(ctx, toUserID); err != nil {
			if isNotFound(err) {
				return nil, apperror.NotFound("user", toUserID)
			}
			return nil, fmt.Errorf("loading recipient %s: %w", toUserID, err)
		}
	}

	f := &model.Feedback{
		Rating:   in.Rating,
		Comment:  comment,
		TopicID:  topic.ID,
		ToUserID: toUserID,
	}
	if !in.Anonymous {
		from := actor.UserID
		f.FromUserID = &from
	}

	if err := s.feedback.CreateFeedback(ctx, f); err != nil {
		s.logger.Error("failed to submit feedback",
			slog.String("topicID", topic.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("submitting feedback: %w", err)
	}

	s.recorder.RecordFeedback(in.Anonymous)
	s.logger.Info("feedback submitted",
		slog.String("id", f.ID),
		slog.String("topicID", topic.ID),
		slog.Bool("anonymous", in.Anonymous),
	)
	return f, nil
}

// loadOwn returns feedback the actor authored. Anonymous feedback has no
// author and is immutable.
func (s *FeedbackService) loadOwn(ctx context.Context, actor model.Principal, id string) (*model.Feedback, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validID("feedbackId", id); err != nil {
		return nil, err
	}
	f, err := s.feedback.GetFeedbackByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("loading feedback %s: %w", id, err)
	}
	if f.Anonymous() {
		return nil, apperror.Forbidden("anonymous feedback cannot be modified")
	}
	if !f.AuthoredBy(actor.UserID) {
		return nil, apperror.Forbidden("only the author can modify this feedback")
	}
	return f, nil
}

// Update changes rating and/or comment. Nil arguments are left untouched.
func (s *FeedbackService) Update(ctx context.Context, actor model.Principal, id string, rating *int, comment *string) (*model.Feedback, error) {
	f, err := s.loadOwn(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if rating != nil {
		if err := validateRating(*rating); err != nil {
			return nil, err
		}
		f.Rating = *rating
	}
	if comment != nil {
		c, err := cleanComment(*comment)
		if err != nil {
			return nil, err
		}
		f.Comment = c
	}

	if err := s.feedback.UpdateFeedback(ctx, f); err != nil {
		if isNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("updating feedback: %w", err)
	}
	s.logger.Info("feedback updated", slog.String("id", id))
	return f, nil
}

func (s *FeedbackService) Delete(ctx context.Context, actor model.Principal, id string) error {
	if _, err := s.loadOwn(ctx, actor, id); err != nil {
		return err
	}
	if err := s.feedback.DeleteFeedback(ctx, id); err != nil {
		if isNotFound(err) {
			return err
		}
		return fmt.Errorf("deleting feedback: %w", err)
	}
	s.logger.Info("feedback deleted", slog.String("id", id))
	return nil
}

// ListForTopic shows managers everything on the topic and members only
// what they wrote themselves.
func (s *FeedbackService) ListForTopic(ctx context.Context, actor model.Principal, topicID string) ([]model.Feedback, error) {
	_, _, manages, err := s.loadTopic(ctx, actor, topicID)
	if err != nil {
		return nil, err
	}
	all, err := s.feedback.ListFeedbackByTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	if manages {
		return all, nil
	}

	mine := make([]model.Feedback, 0, len(all))
	for _, f := range all {
		if f.AuthoredBy(actor.UserID) {
			mine = append(mine, f)
		}
	}
	return mine, nil
}

func (s *FeedbackService) ListMine(ctx context.Context, actor model.Principal) ([]model.Feedback, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	list, err := s.feedback.ListFeedbackByAuthor(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing my feedback: %w", err)
	}
	return list, nil
}
