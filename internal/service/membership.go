package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

// MembershipService lets admins and owning instructors manage a course roster.
type MembershipService struct {
	access      courseAccess
	memberships repository.MembershipRepository
	users       repository.UserRepository
	recorder    Recorder
	logger      *slog.Logger
}

func NewMembershipService(
	courses repository.CourseRepository,
	memberships repository.MembershipRepository,
	users repository.UserRepository,
	recorder Recorder,
	logger *slog.Logger,
) *MembershipService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &MembershipService{
		access:      courseAccess{courses: courses, memberships: memberships},
		memberships: memberships,
		users:       users,
		recorder:    recorder,
		logger:      logger,
	}
}

// AddMember enrolls targetUserID, bypassing the passkey.
func (s *MembershipService) AddMember(ctx context.Context, actor model.Principal, courseID, targetUserID string) (*model.PublicUser, error) {
	ctx, span := tracer.Start(ctx, "MembershipService.AddMember")
	defer span.End()
	span.SetAttributes(attribute.String("course.id", courseID), attribute.String("user.id", targetUserID))

	member, err := s.addMember(ctx, actor, courseID, targetUserID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return member, nil
}

func (s *MembershipService) addMember(ctx context.Context, actor model.Principal, courseID, targetUserID string) (*model.PublicUser, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validID("courseId", courseID); err != nil {
		return nil, err
	}
	if err := validID("userId", targetUserID); err != nil {
		return nil, err
	}
	if _, err := s.access.authorizeCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}

	target, err := s.users.GetUserByID(ctx, targetUserID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("user", targetUserID)
		}
		return nil, fmt.Errorf("loading user %s: %w", targetUserID, err)
	}

	if err := s.memberships.CreateMembership(ctx, &model.Membership{UserID: target.ID, CourseID: courseID}); err != nil {
		if isConflict(err) {
			return nil, apperror.ConflictMsg("user is already a member of this course")
		}
		s.logger.Error("failed to add member",
			slog.String("courseID", courseID),
			slog.String("userID", target.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("adding member: %w", err)
	}

	s.recorder.RecordMembershipChange("added")
	s.logger.Info("member added",
		slog.String("actorID", actor.UserID),
		slog.String("courseID", courseID),
		slog.String("userID", target.ID),
	)

	public := target.Public()
	return &public, nil
}

// RemoveMember deletes the membership. A user who is not a member yields NotFound.
func (s *MembershipService) RemoveMember(ctx context.Context, actor model.Principal, courseID, targetUserID string) error {
	ctx, span := tracer.Start(ctx, "MembershipService.RemoveMember")
	defer span.End()
	span.SetAttributes(attribute.String("course.id", courseID), attribute.String("user.id", targetUserID))

	if err := s.removeMember(ctx, actor, courseID, targetUserID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *MembershipService) removeMember(ctx context.Context, actor model.Principal, courseID, targetUserID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := validID("courseId", courseID); err != nil {
		return err
	}
	if err := validID("userId", targetUserID); err != nil {
		return err
	}
	if _, err := s.access.authorizeCourse(ctx, actor, courseID); err != nil {
		return err
	}

	if err := s.memberships.DeleteMembership(ctx, targetUserID, courseID); err != nil {
		if isNotFound(err) {
			return apperror.NotFound("membership", targetUserID)
		}
		s.logger.Error("failed to remove member",
			slog.String("courseID", courseID),
			slog.String("userID", targetUserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("removing member: %w", err)
	}

	s.recorder.RecordMembershipChange("removed")
	s.logger.Info("member removed",
		slog.String("actorID", actor.UserID),
		slog.String("courseID", courseID),
		slog.String("userID", targetUserID),
	)
	return nil
}

func (s *MembershipService) ListMembers(ctx context.Context, actor model.Principal, courseID string) ([]model.PublicUser, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validID("courseId", courseID); err != nil {
		return nil, err
	}
	if _, err := s.access.authorizeCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}
	members, err := s.memberships.ListMembers(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return members, nil
}

// SearchCandidates finds users not yet enrolled whose name or email contains
// query. A blank query returns an empty list without touching storage.
func (s *MembershipService) SearchCandidates(ctx context.Context, actor model.Principal, courseID, query string, limit int) ([]model.PublicUser, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validID("courseId", courseID); err != nil {
		return nil, err
	}
	if _, err := s.access.authorizeCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return []model.PublicUser{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	users, err := s.memberships.SearchNonMembers(ctx, courseID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching candidates: %w", err)
	}
	return users, nil
}
