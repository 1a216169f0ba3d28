package model

import "time"

// Course is a unit of teaching that students enroll in.
//
// PassKey gates self-service enrollment; nil means anyone may enroll.
// InstructorID is nil for courses without an owning instructor, which only
// admins can manage.
type Course struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PassKey      *string   `json:"passKey,omitempty"`
	InstructorID *string   `json:"instructorId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// OwnedBy reports whether userID is the course's instructor.
func (c *Course) OwnedBy(userID string) bool {
	return c.InstructorID != nil && userID != "" && *c.InstructorID == userID
}

// RequiresPassKey reports whether enrollment needs a passkey.
func (c *Course) RequiresPassKey() bool {
	return c.PassKey != nil && *c.PassKey != ""
}

// CourseSummary is the public view of a course: safe to show to anyone,
// including unauthenticated visitors on the signup page.
type CourseSummary struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	InstructorID    *string `json:"instructorId,omitempty"`
	InstructorName  string  `json:"instructorName,omitempty"`
	RequiresPassKey bool    `json:"requiresPassKey"`
}

// Summary builds the public view. instructorName may be empty.
func (c *Course) Summary(instructorName string) CourseSummary {
	return CourseSummary{
		ID:              c.ID,
		Name:            c.Name,
		InstructorID:    c.InstructorID,
		InstructorName:  instructorName,
		RequiresPassKey: c.RequiresPassKey(),
	}
}

// CoursePatch carries a partial update. Nil fields are left untouched.
// A non-nil PassKey pointing at "" clears the passkey.
type CoursePatch struct {
	Name         *string
	PassKey      *string
	InstructorID *string
}

// CourseDetail is what GET /api/courses/{id} returns. PassKey is only set
// for admins and the owning instructor.
type CourseDetail struct {
	CourseSummary
	PassKey   *string   `json:"passKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
