// Package repository declares the persistence contracts the service layer
// depends on. The sqlite subpackage implements all of them on one *DB.
//
// Conventions shared by every implementation:
//   - a missing row is reported as apperror.ErrNotFound
//   - a unique-constraint violation is reported as apperror.ErrConflict
//   - anything else is a plain wrapped error (treated as Internal upstream)
package repository

import (
	"context"

	"github.com/sakif/pulsecheck/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	GetUserByResetToken(ctx context.Context, token string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	ListUsers(ctx context.Context, query string, opts ListOptions) ([]model.User, error)
}

type CourseRepository interface {
	CreateCourse(ctx context.Context, course *model.Course) error
	GetCourseByID(ctx context.Context, id string) (*model.Course, error)
	GetCourseSummary(ctx context.Context, id string) (*model.CourseSummary, error)
	UpdateCourse(ctx context.Context, course *model.Course) error
	// DeleteCourseCascade removes the course's feedback, topics, memberships
	// and the course itself in one transaction.
	DeleteCourseCascade(ctx context.Context, id string) error
	ListCourses(ctx context.Context) ([]model.CourseSummary, error)
	ListCoursesByInstructor(ctx context.Context, instructorID string) ([]model.CourseSummary, error)
	ListCoursesByMember(ctx context.Context, userID string) ([]model.CourseSummary, error)
}

type TopicRepository interface {
	CreateTopic(ctx context.Context, topic *model.Topic) error
	GetTopicByID(ctx context.Context, id string) (*model.Topic, error)
	UpdateTopic(ctx context.Context, topic *model.Topic) error
	// DeleteTopicCascade removes the topic's feedback and the topic in one transaction.
	DeleteTopicCascade(ctx context.Context, id string) error
	ListTopicsByCourse(ctx context.Context, courseID string) ([]model.Topic, error)
}

type MembershipRepository interface {
	GetMembership(ctx context.Context, userID, courseID string) (*model.Membership, error)
	CreateMembership(ctx context.Context, m *model.Membership) error
	DeleteMembership(ctx context.Context, userID, courseID string) error
	ListMembers(ctx context.Context, courseID string) ([]model.PublicUser, error)
	// SearchNonMembers matches name or email by case-folded substring and
	// excludes users already enrolled in courseID.
	SearchNonMembers(ctx context.Context, courseID, query string, limit int) ([]model.PublicUser, error)
}

type FeedbackRepository interface {
	CreateFeedback(ctx context.Context, f *model.Feedback) error
	GetFeedbackByID(ctx context.Context, id string) (*model.Feedback, error)
	UpdateFeedback(ctx context.Context, f *model.Feedback) error
	DeleteFeedback(ctx context.Context, id string) error
	ListFeedbackByTopic(ctx context.Context, topicID string) ([]model.Feedback, error)
	ListFeedbackByAuthor(ctx context.Context, userID string) ([]model.Feedback, error)
}

type DashboardRepository interface {
	StudentActivity(ctx context.Context, userID string) ([]model.CourseActivity, error)
	CountFeedbackByAuthor(ctx context.Context, userID string) (int, error)
	InstructorCourseStats(ctx context.Context, instructorID string) ([]model.CourseStats, error)
	TopicStats(ctx context.Context, courseID string) ([]model.TopicStats, error)
	AllCourseStats(ctx context.Context) ([]model.CourseStats, error)
	Totals(ctx context.Context) (model.Totals, error)
}
