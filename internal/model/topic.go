package model

import "time"

// Topic groups feedback inside a course. Names are unique per course.
type Topic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CourseID  string    `json:"courseId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
