package model

// Dashboard roles, richest first.
const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleStudent    = "student"
)

// Dashboard is the role-dependent summary returned by GET /api/dashboard.
// Exactly one of the embedded views is set, matching Role.
type Dashboard struct {
	Role       string               `json:"role"`
	Student    *StudentDashboard    `json:"student,omitempty"`
	Instructor *InstructorDashboard `json:"instructor,omitempty"`
	Admin      *AdminDashboard      `json:"admin,omitempty"`
}

type StudentDashboard struct {
	EnrolledCourses   int              `json:"enrolledCourses"`
	FeedbackSubmitted int              `json:"feedbackSubmitted"`
	Courses           []CourseActivity `json:"courses"`
}

// CourseActivity is one enrolled course with the student's own activity.
type CourseActivity struct {
	CourseID          string `json:"courseId"`
	CourseName        string `json:"courseName"`
	FeedbackSubmitted int    `json:"feedbackSubmitted"`
}

type InstructorDashboard struct {
	Courses []CourseStats `json:"courses"`
}

// CourseStats aggregates one course. AverageRating is 0 when there is no
// feedback yet; check FeedbackCount before displaying it.
type CourseStats struct {
	CourseID      string       `json:"courseId"`
	CourseName    string       `json:"courseName"`
	TopicCount    int          `json:"topicCount"`
	MemberCount   int          `json:"memberCount"`
	FeedbackCount int          `json:"feedbackCount"`
	AverageRating float64      `json:"averageRating"`
	Topics        []TopicStats `json:"topics,omitempty"`
}

// TopicStats aggregates one topic. Histogram[i] counts ratings of i+1.
type TopicStats struct {
	TopicID       string  `json:"topicId"`
	TopicName     string  `json:"topicName"`
	FeedbackCount int     `json:"feedbackCount"`
	AverageRating float64 `json:"averageRating"`
	Histogram     [5]int  `json:"histogram"`
}

type AdminDashboard struct {
	Totals  Totals        `json:"totals"`
	Courses []CourseStats `json:"courses"`
}

type Totals struct {
	Users       int `json:"users"`
	Instructors int `json:"instructors"`
	Admins      int `json:"admins"`
	Courses     int `json:"courses"`
	Topics      int `json:"topics"`
	Memberships int `json:"memberships"`
	Feedback    int `json:"feedback"`
}
