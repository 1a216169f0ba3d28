package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

type TopicService struct {
	access courseAccess
	topics repository.TopicRepository
	logger *slog.Logger
}

func NewTopicService(
	courses repository.CourseRepository,
	memberships repository.MembershipRepository,
	topics repository.TopicRepository,
	logger *slog.Logger,
) *TopicService {
	return &TopicService{
		access: courseAccess{courses: courses, memberships: memberships},
		topics: topics,
		logger: logger,
	}
}

func (s *TopicService) Create(ctx context.Context, actor model.Principal, courseID, name string) (*model.Topic, error) {
	if err := validID("courseId", courseID); err != nil {
		return nil, err
	}
	if _, err := s.access.authorizeCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}
	name, err := cleanName("name", "topic name", name)
	if err != nil {
		return nil, err
	}

	topic := &model.Topic{Name: name, CourseID: courseID}
	if err := s.topics.CreateTopic(ctx, topic); err != nil {
		if isConflict(err) {
			return nil, err
		}
		s.logger.Error("failed to create topic",
			slog.String("courseID", courseID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating topic: %w", err)
	}

	s.logger.Info("topic created",
		slog.String("id", topic.ID),
		slog.String("courseID", courseID),
	)
	return topic, nil
}

// loadManaged returns the topic when actor manages its course. Denials look
// like a missing topic.
func (s *TopicService) loadManaged(ctx context.Context, actor model.Principal, topicID string) (*model.Topic, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validID("topicId", topicID); err != nil {
		return nil, err
	}
	topic, err := s.topics.GetTopicByID(ctx, topicID)
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("loading topic %s: %w", topicID, err)
	}
	if _, err := s.access.authorizeCourse(ctx, actor, topic.CourseID); err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("topic", topicID)
		}
		return nil, err
	}
	return topic, nil
}

func (s *TopicService) Rename(ctx context.Context, actor model.Principal, topicID, name string) (*model.Topic, error) {
	topic, err := s.loadManaged(ctx, actor, topicID)
	if err != nil {
		return nil, err
	}
	name, err = cleanName("name", "topic name", name)
	if err != nil {
		return nil, err
	}

	topic.Name = name
	if err := s.topics.UpdateTopic(ctx, topic); err != nil {
		if isConflict(err) || isNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("renaming topic: %w", err)
	}

	s.logger.Info("topic renamed", slog.String("id", topicID))
	return topic, nil
}

// Delete removes the topic and its feedback.
func (s *TopicService) Delete(ctx context.Context, actor model.Principal, topicID string) error {
	if _, err := s.loadManaged(ctx, actor, topicID); err != nil {
		return err
	}
	if err := s.topics.DeleteTopicCascade(ctx, topicID); err != nil {
		if isNotFound(err) {
			return err
		}
		s.logger.Error("failed to delete topic",
			slog.String("id", topicID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("deleting topic: %w", err)
	}

	s.logger.Info("topic deleted", slog.String("id", topicID), slog.String("actorID", actor.UserID))
	return nil
}

// List is visible to managers and enrolled members of the course.
func (s *TopicService) List(ctx context.Context, actor model.Principal, courseID string) ([]model.Topic, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validID("courseId", courseID); err != nil {
		return nil, err
	}
	if _, _, err := s.access.authorizeCourseView(ctx, actor, courseID); err != nil {
		return nil, err
	}
	topics, err := s.topics.ListTopicsByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	return topics, nil
}
