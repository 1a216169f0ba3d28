package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/metrics"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

// EnrollRequest is the self-service enrollment input. UserID is only
// consulted when the caller has no session.
type EnrollRequest struct {
	UserID   string
	CourseID string
	PassKey  *string
}

// EnrollmentService implements student self-enrollment.
type EnrollmentService struct {
	courses     repository.CourseRepository
	memberships repository.MembershipRepository
	users       repository.UserRepository

	// allowExplicitUser enables enrolling a user named in the request body
	// when there is no session (the signup-page flow).
	allowExplicitUser bool

	recorder Recorder
	logger   *slog.Logger
}

func NewEnrollmentService(
	courses repository.CourseRepository,
	memberships repository.MembershipRepository,
	users repository.UserRepository,
	allowExplicitUser bool,
	recorder Recorder,
	logger *slog.Logger,
) *EnrollmentService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &EnrollmentService{
		courses:           courses,
		memberships:       memberships,
		users:             users,
		allowExplicitUser: allowExplicitUser,
		recorder:          recorder,
		logger:            logger,
	}
}

// Enroll enrolls the session user, or the explicitly named user when there
// is no session and the explicit path is enabled.
func (s *EnrollmentService) Enroll(ctx context.Context, actor model.Principal, req EnrollRequest) (*model.Enrollment, error) {
	userID := actor.UserID
	if !actor.Authenticated() {
		if req.UserID == "" || !s.allowExplicitUser {
			return nil, apperror.Unauthorized("sign in to enroll")
		}
		userID = req.UserID
		s.logger.Warn("enrollment using explicit userId without a session",
			slog.String("userID", userID),
			slog.String("courseID", req.CourseID),
		)

		if err := validID("userId", userID); err != nil {
			return nil, err
		}
		if _, err := s.users.GetUserByID(ctx, userID); err != nil {
			if isNotFound(err) {
				return nil, apperror.NotFound("user", userID)
			}
			return nil, fmt.Errorf("loading user %s: %w", userID, err)
		}
	}

	return s.EnrollUser(ctx, userID, req.CourseID, req.PassKey)
}

// EnrollUser runs the enrollment algorithm for an already-identified user.
// Signup calls it directly for the user it just created.
func (s *EnrollmentService) EnrollUser(ctx context.Context, userID, courseID string, passKey *string) (*model.Enrollment, error) {
	ctx, span := tracer.Start(ctx, "EnrollmentService.EnrollUser")
	defer span.End()
	span.SetAttributes(attribute.String("course.id", courseID), attribute.String("user.id", userID))

	enrollment, outcome, err := s.enroll(ctx, userID, courseID, passKey)
	if outcome != "" {
		s.recorder.RecordEnrollment(outcome)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return enrollment, nil
}

func (s *EnrollmentService) enroll(ctx context.Context, userID, courseID string, passKey *string) (*model.Enrollment, string, error) {
	if err := validID("userId", userID); err != nil {
		return nil, "", err
	}
	if err := validID("courseId", courseID); err != nil {
		return nil, "", err
	}

	course, err := s.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		if isNotFound(err) {
			return nil, metrics.OutcomeCourseMissing, courseNotFound(courseID)
		}
		return nil, "", fmt.Errorf("loading course %s: %w", courseID, err)
	}

	if !passKeyMatches(course, passKey) {
		return nil, metrics.OutcomeBadPassKey, apperror.ValidationFailed("passKey", "invalid passkey")
	}

	if _, err := s.memberships.GetMembership(ctx, userID, courseID); err == nil {
		return nil, metrics.OutcomeDuplicate, apperror.ConflictMsg("already enrolled in this course")
	} else if !isNotFound(err) {
		return nil, "", fmt.Errorf("checking membership: %w", err)
	}

	// The pre-check above is a fast path; the primary key is authoritative.
	m := &model.Membership{UserID: userID, CourseID: courseID}
	if err := s.memberships.CreateMembership(ctx, m); err != nil {
		if isConflict(err) {
			return nil, metrics.OutcomeDuplicate, apperror.ConflictMsg("already enrolled in this course")
		}
		s.logger.Error("failed to create membership",
			slog.String("userID", userID),
			slog.String("courseID", courseID),
			slog.String("error", err.Error()),
		)
		return nil, "", fmt.Errorf("creating membership: %w", err)
	}

	summary, err := s.courses.GetCourseSummary(ctx, courseID)
	if err != nil {
		return nil, "", fmt.Errorf("loading course summary %s: %w", courseID, err)
	}

	s.logger.Info("user enrolled",
		slog.String("userID", userID),
		slog.String("courseID", courseID),
	)

	return &model.Enrollment{
		UserID:     userID,
		Course:     *summary,
		EnrolledAt: m.CreatedAt,
	}, metrics.OutcomeEnrolled, nil
}

// passKeyMatches compares trimmed values, case-sensitively. A course without
// a passkey accepts any input, including none.
func passKeyMatches(course *model.Course, input *string) bool {
	if !course.RequiresPassKey() {
		return true
	}
	if input == nil {
		return false
	}
	given := strings.TrimSpace(*input)
	return given != "" && given == strings.TrimSpace(*course.PassKey)
}

// Unenroll removes the session user's membership. There is no explicit-user
// variant.
func (s *EnrollmentService) Unenroll(ctx context.Context, actor model.Principal, courseID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := validID("courseId", courseID); err != nil {
		return err
	}

	notEnrolled := apperror.ConflictMsg("not enrolled in this course")

	if _, err := s.memberships.GetMembership(ctx, actor.UserID, courseID); err != nil {
		if isNotFound(err) {
			return notEnrolled
		}
		return fmt.Errorf("checking membership: %w", err)
	}

	if err := s.memberships.DeleteMembership(ctx, actor.UserID, courseID); err != nil {
		// Lost a race with a concurrent unenroll.
		if isNotFound(err) {
			return notEnrolled
		}
		s.logger.Error("failed to delete membership",
			slog.String("userID", actor.UserID),
			slog.String("courseID", courseID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("deleting membership: %w", err)
	}

	s.recorder.RecordEnrollment(metrics.OutcomeUnenrolled)
	s.logger.Info("user unenrolled",
		slog.String("userID", actor.UserID),
		slog.String("courseID", courseID),
	)
	return nil
}

func (s *EnrollmentService) ListMyCourses(ctx context.Context, actor model.Principal) ([]model.CourseSummary, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	courses, err := s.courses.ListCoursesByMember(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing enrolled courses: %w", err)
	}
	return courses, nil
}

// ListEnrollable returns every course as a public summary. Anonymous callers
// are allowed; the signup page uses it.
func (s *EnrollmentService) ListEnrollable(ctx context.Context) ([]model.CourseSummary, error) {
	courses, err := s.courses.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	return courses, nil
}
