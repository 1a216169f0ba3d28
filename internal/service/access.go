package service

import (
	"context"
	"fmt"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

// courseAccess answers "may this actor see or manage this course". Every
// denial is indistinguishable from a missing course so callers cannot learn
// which course ids exist.
type courseAccess struct {
	courses     repository.CourseRepository
	memberships repository.MembershipRepository
}

func courseNotFound(courseID string) error {
	return apperror.NotFound("course", courseID)
}

// authorizeCourse returns the course when actor is an admin or its owning
// instructor.
func (a courseAccess) authorizeCourse(ctx context.Context, actor model.Principal, courseID string) (*model.Course, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	course, err := a.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		if isNotFound(err) {
			return nil, courseNotFound(courseID)
		}
		return nil, fmt.Errorf("loading course %s: %w", courseID, err)
	}
	if actor.IsAdmin {
		return course, nil
	}
	if actor.IsInstructor && course.OwnedBy(actor.UserID) {
		return course, nil
	}
	return nil, courseNotFound(courseID)
}

// authorizeCourseView widens authorizeCourse to enrolled members. The bool
// reports whether the actor manages the course (admin or owner).
func (a courseAccess) authorizeCourseView(ctx context.Context, actor model.Principal, courseID string) (*model.Course, bool, error) {
	course, err := a.authorizeCourse(ctx, actor, courseID)
	if err == nil {
		return course, true, nil
	}
	if !isNotFound(err) {
		return nil, false, err
	}

	course, err = a.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		if isNotFound(err) {
			return nil, false, courseNotFound(courseID)
		}
		return nil, false, fmt.Errorf("loading course %s: %w", courseID, err)
	}
	if _, err := a.memberships.GetMembership(ctx, actor.UserID, courseID); err != nil {
		if isNotFound(err) {
			return nil, false, courseNotFound(courseID)
		}
		return nil, false, fmt.Errorf("checking membership in %s: %w", courseID, err)
	}
	return course, false, nil
}
