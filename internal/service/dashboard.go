package service

import (
	"context"
	"fmt"

	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

type DashboardService struct {
	stats repository.DashboardRepository
}

func NewDashboardService(stats repository.DashboardRepository) *DashboardService {
	return &DashboardService{stats: stats}
}

// Dashboard returns the richest view the actor qualifies for.
func (s *DashboardService) Dashboard(ctx context.Context, actor model.Principal) (*model.Dashboard, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	d := &model.Dashboard{Role: actor.Role()}
	var err error
	switch d.Role {
	case model.RoleAdmin:
		d.Admin, err = s.admin(ctx)
	case model.RoleInstructor:
		d.Instructor, err = s.instructor(ctx, actor.UserID)
	default:
		d.Student, err = s.student(ctx, actor.UserID)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DashboardService) student(ctx context.Context, userID string) (*model.StudentDashboard, error) {
	courses, err := s.stats.StudentActivity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("student dashboard: %w", err)
	}
	submitted, err := s.stats.CountFeedbackByAuthor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("student dashboard: %w", err)
	}
	return &model.StudentDashboard{
		EnrolledCourses:   len(courses),
		FeedbackSubmitted: submitted,
		Courses:           courses,
	}, nil
}

func (s *DashboardService) instructor(ctx context.Context, userID string) (*model.InstructorDashboard, error) {
	courses, err := s.stats.InstructorCourseStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("instructor dashboard: %w", err)
	}
	for i := range courses {
		topics, err := s.stats.TopicStats(ctx, courses[i].CourseID)
		if err != nil {
			return nil, fmt.Errorf("instructor dashboard: %w", err)
		}
		courses[i].Topics = topics
	}
	return &model.InstructorDashboard{Courses: courses}, nil
}

func (s *DashboardService) admin(ctx context.Context) (*model.AdminDashboard, error) {
	totals, err := s.stats.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin dashboard: %w", err)
	}
	courses, err := s.stats.AllCourseStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin dashboard: %w", err)
	}
	return &model.AdminDashboard{Totals: totals, Courses: courses}, nil
}
