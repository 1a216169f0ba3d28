package model

import "time"

// Membership is the join fact that a user is enrolled in a course.
// It has no identity beyond the (UserID, CourseID) pair.
type Membership struct {
	UserID    string    `json:"userId"`
	CourseID  string    `json:"courseId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Enrollment is the confirmation returned to a student after enrolling.
type Enrollment struct {
	UserID     string        `json:"userId"`
	Course     CourseSummary `json:"course"`
	EnrolledAt time.Time     `json:"enrolledAt"`
}
