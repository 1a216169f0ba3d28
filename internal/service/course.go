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

type CreateCourseInput struct {
	Name         string
	PassKey      string
	InstructorID string // admins only; instructors always own what they create
}

type CourseService struct {
	access  courseAccess
	courses repository.CourseRepository
	users   repository.UserRepository
	logger  *slog.Logger
}

func NewCourseService(
	courses repository.CourseRepository,
	memberships repository.MembershipRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *CourseService {
	return &CourseService{
		access:  courseAccess{courses: courses, memberships: memberships},
		courses: courses,
		users:   users,
		logger:  logger,
	}
}

func (s *CourseService) Create(ctx context.Context, actor model.Principal, in CreateCourseInput) (*model.Course, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !actor.IsInstructor {
		return nil, apperror.Forbidden("only instructors and admins can create courses")
	}

	name, err := cleanName("name", "course name", in.Name)
	if err != nil {
		return nil, err
	}
	passKey, err := cleanPassKey(in.PassKey)
	if err != nil {
		return nil, err
	}

	course := &model.Course{Name: name, PassKey: passKey}

	switch {
	case actor.IsAdmin && strings.TrimSpace(in.InstructorID) != "":
		instructorID, err := s.instructorRef(ctx, strings.TrimSpace(in.InstructorID))
		if err != nil {
			return nil, err
		}
		course.InstructorID = instructorID
	case actor.IsInstructor:
		owner := actor.UserID
		course.InstructorID = &owner
	}

	if err := s.courses.CreateCourse(ctx, course); err != nil {
		if isConflict(err) {
			return nil, err
		}
		s.logger.Error("failed to create course",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating course: %w", err)
	}

	s.logger.Info("course created",
		slog.String("id", course.ID),
		slog.String("name", course.Name),
		slog.String("actorID", actor.UserID),
	)
	return course, nil
}

// instructorRef validates that id names an instructor.
func (s *CourseService) instructorRef(ctx context.Context, id string) (*string, error) {
	if err := validID("instructorId", id); err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("loading instructor %s: %w", id, err)
	}
	if !user.IsInstructor {
		return nil, apperror.ValidationFailed("instructorId", "user is not an instructor")
	}
	return &user.ID, nil
}

// Get returns the course. Managers see the passkey; everyone else gets the
// public summary fields only.
func (s *CourseService) Get(ctx context.Context, actor model.Principal, id string) (*model.CourseDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validID("courseId", id); err != nil {
		return nil, err
	}

	summary, err := s.courses.GetCourseSummary(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, courseNotFound(id)
		}
		return nil, fmt.Errorf("loading course %s: %w", id, err)
	}
	course, err := s.courses.GetCourseByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading course %s: %w", id, err)
	}

	detail := &model.CourseDetail{
		CourseSummary: *summary,
		CreatedAt:     course.CreatedAt,
		UpdatedAt:     course.UpdatedAt,
	}
	if actor.IsAdmin || (actor.IsInstructor && course.OwnedBy(actor.UserID)) {
		detail.PassKey = course.PassKey
	}
	return detail, nil
}

// Update applies a partial update. Only admins may change the instructor;
// an empty InstructorID unassigns it and an empty PassKey clears it.
func (s *CourseService) Update(ctx context.Context, actor model.Principal, id string, patch model.CoursePatch) (*model.Course, error) {
	if err := validID("courseId", id); err != nil {
		return nil, err
	}
	course, err := s.access.authorizeCourse(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name, err := cleanName("name", "course name", *patch.Name)
		if err != nil {
			return nil, err
		}
		course.Name = name
	}
	if patch.PassKey != nil {
		passKey, err := cleanPassKey(*patch.PassKey)
		if err != nil {
			return nil, err
		}
		course.PassKey = passKey
	}
	if patch.InstructorID != nil {
		if !actor.IsAdmin {
			return nil, apperror.Forbidden("only admins can reassign a course's instructor")
		}
		if instructorID := strings.TrimSpace(*patch.InstructorID); instructorID == "" {
			course.InstructorID = nil
		} else {
			ref, err := s.instructorRef(ctx, instructorID)
			if err != nil {
				return nil, err
			}
			course.InstructorID = ref
		}
	}

	if err := s.courses.UpdateCourse(ctx, course); err != nil {
		if isConflict(err) || isNotFound(err) {
			return nil, err
		}
		s.logger.Error("failed to update course",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating course: %w", err)
	}

	s.logger.Info("course updated", slog.String("id", id), slog.String("actorID", actor.UserID))
	return course, nil
}

// Delete removes the course with its topics, feedback and memberships.
func (s *CourseService) Delete(ctx context.Context, actor model.Principal, id string) error {
	ctx, span := tracer.Start(ctx, "CourseService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("course.id", id))

	if err := s.deleteCourse(ctx, actor, id); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *CourseService) deleteCourse(ctx context.Context, actor model.Principal, id string) error {
	if err := validID("courseId", id); err != nil {
		return err
	}
	if _, err := s.access.authorizeCourse(ctx, actor, id); err != nil {
		return err
	}

	if err := s.courses.DeleteCourseCascade(ctx, id); err != nil {
		if isNotFound(err) {
			return err
		}
		s.logger.Error("failed to delete course",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("deleting course: %w", err)
	}

	s.logger.Info("course deleted", slog.String("id", id), slog.String("actorID", actor.UserID))
	return nil
}

// List is role-scoped: admins see every course, instructors the ones they
// own, students the ones they are enrolled in.
func (s *CourseService) List(ctx context.Context, actor model.Principal) ([]model.CourseSummary, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var (
		courses []model.CourseSummary
		err     error
	)
	switch {
	case actor.IsAdmin:
		courses, err = s.courses.ListCourses(ctx)
	case actor.IsInstructor:
		courses, err = s.courses.ListCoursesByInstructor(ctx, actor.UserID)
	default:
		courses, err = s.courses.ListCoursesByMember(ctx, actor.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	return courses, nil
}
