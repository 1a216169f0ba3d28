package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================

// fakeStore is an in-memory implementation of the user, course, topic,
// membership and feedback repositories. It mirrors the sqlite conventions:
// missing rows are apperror.ErrNotFound and duplicates apperror.ErrConflict.
type fakeStore struct {
	users       map[string]*model.User
	courses     map[string]*model.Course
	topics      map[string]*model.Topic
	memberships map[membershipKey]time.Time
	feedback    map[string]*model.Feedback

	// set to simulate a storage failure on the next call that checks it
	failErr error
	// counts SearchNonMembers calls
	searches int
}

type membershipKey struct{ userID, courseID string }

var (
	_ repository.UserRepository       = (*fakeStore)(nil)
	_ repository.CourseRepository     = (*fakeStore)(nil)
	_ repository.TopicRepository      = (*fakeStore)(nil)
	_ repository.MembershipRepository = (*fakeStore)(nil)
	_ repository.FeedbackRepository   = (*fakeStore)(nil)
)

func fieldConflict(field, message string) error {
	return &apperror.AppError{Err: apperror.ErrConflict, Message: message, Field: field}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[string]*model.User),
		courses:     make(map[string]*model.Course),
		topics:      make(map[string]*model.Topic),
		memberships: make(map[membershipKey]time.Time),
		feedback:    make(map[string]*model.Feedback),
	}
}

func (f *fakeStore) fail() error {
	err := f.failErr
	f.failErr = nil
	return err
}

// --- users ---

func (f *fakeStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := f.fail(); err != nil {
		return err
	}
	u.Email = strings.ToLower(u.Email)
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return fieldConflict("email", "an account with this email already exists")
		}
	}
	u.ID = xid.New().String()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	for _, u := range f.users {
		if u.GitHubID != nil && *u.GitHubID == githubID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", "github")
}

func (f *fakeStore) GetUserByResetToken(ctx context.Context, token string) (*model.User, error) {
	for _, u := range f.users {
		if u.ResetToken != nil && *u.ResetToken == token {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", "reset token")
}

func (f *fakeStore) UpdateUser(ctx context.Context, u *model.User) error {
	if err := f.fail(); err != nil {
		return err
	}
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	for id, existing := range f.users {
		if id != u.ID && existing.Email == u.Email {
			return fieldConflict("email", "an account with this email already exists")
		}
	}
	u.UpdatedAt = time.Now().UTC()
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeStore) ListUsers(ctx context.Context, query string, opts repository.ListOptions) ([]model.User, error) {
	q := strings.ToLower(query)
	var out []model.User
	for _, u := range f.users {
		if q == "" || strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(u.Email, q) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if opts.Offset >= len(out) {
		return []model.User{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// --- courses ---

func (f *fakeStore) CreateCourse(ctx context.Context, c *model.Course) error {
	if err := f.fail(); err != nil {
		return err
	}
	for _, existing := range f.courses {
		if existing.Name == c.Name {
			return fieldConflict("name", "a course with this name already exists")
		}
	}
	c.ID = xid.New().String()
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	copied := *c
	f.courses[c.ID] = &copied
	return nil
}

func (f *fakeStore) GetCourseByID(ctx context.Context, id string) (*model.Course, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	c, ok := f.courses[id]
	if !ok {
		return nil, apperror.NotFound("course", id)
	}
	copied := *c
	return &copied, nil
}

func (f *fakeStore) summary(c *model.Course) model.CourseSummary {
	name := ""
	if c.InstructorID != nil {
		if u, ok := f.users[*c.InstructorID]; ok {
			name = u.Name
		}
	}
	return c.Summary(name)
}

func (f *fakeStore) GetCourseSummary(ctx context.Context, id string) (*model.CourseSummary, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, apperror.NotFound("course", id)
	}
	s := f.summary(c)
	return &s, nil
}

func (f *fakeStore) UpdateCourse(ctx context.Context, c *model.Course) error {
	if _, ok := f.courses[c.ID]; !ok {
		return apperror.NotFound("course", c.ID)
	}
	for id, existing := range f.courses {
		if id != c.ID && existing.Name == c.Name {
			return fieldConflict("name", "a course with this name already exists")
		}
	}
	c.UpdatedAt = time.Now().UTC()
	copied := *c
	f.courses[c.ID] = &copied
	return nil
}

func (f *fakeStore) DeleteCourseCascade(ctx context.Context, id string) error {
	if _, ok := f.courses[id]; !ok {
		return apperror.NotFound("course", id)
	}
	for tid, t := range f.topics {
		if t.CourseID != id {
			continue
		}
		for fid, fb := range f.feedback {
			if fb.TopicID == tid {
				delete(f.feedback, fid)
			}
		}
		delete(f.topics, tid)
	}
	for k := range f.memberships {
		if k.courseID == id {
			delete(f.memberships, k)
		}
	}
	delete(f.courses, id)
	return nil
}

func (f *fakeStore) listCourses(keep func(*model.Course) bool) []model.CourseSummary {
	out := []model.CourseSummary{}
	for _, c := range f.courses {
		if keep(c) {
			out = append(out, f.summary(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *fakeStore) ListCourses(ctx context.Context) ([]model.CourseSummary, error) {
	return f.listCourses(func(*model.Course) bool { return true }), nil
}

func (f *fakeStore) ListCoursesByInstructor(ctx context.Context, instructorID string) ([]model.CourseSummary, error) {
	return f.listCourses(func(c *model.Course) bool { return c.OwnedBy(instructorID) }), nil
}

func (f *fakeStore) ListCoursesByMember(ctx context.Context, userID string) ([]model.CourseSummary, error) {
	return f.listCourses(func(c *model.Course) bool {
		_, ok := f.memberships[membershipKey{userID, c.ID}]
		return ok
	}), nil
}

// --- topics ---

func (f *fakeStore) CreateTopic(ctx context.Context, t *model.Topic) error {
	for _, existing := range f.topics {
		if existing.CourseID == t.CourseID && existing.Name == t.Name {
			return fieldConflict("name", "a topic with this name already exists in this course")
		}
	}
	t.ID = xid.New().String()
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	copied := *t
	f.topics[t.ID] = &copied
	return nil
}

func (f *fakeStore) GetTopicByID(ctx context.Context, id string) (*model.Topic, error) {
	t, ok := f.topics[id]
	if !ok {
		return nil, apperror.NotFound("topic", id)
	}
	copied := *t
	return &copied, nil
}

func (f *fakeStore) UpdateTopic(ctx context.Context, t *model.Topic) error {
	if _, ok := f.topics[t.ID]; !ok {
		return apperror.NotFound("topic", t.ID)
	}
	copied := *t
	f.topics[t.ID] = &copied
	return nil
}

func (f *fakeStore) DeleteTopicCascade(ctx context.Context, id string) error {
	if _, ok := f.topics[id]; !ok {
		return apperror.NotFound("topic", id)
	}
	for fid, fb := range f.feedback {
		if fb.TopicID == id {
			delete(f.feedback, fid)
		}
	}
	delete(f.topics, id)
	return nil
}

func (f *fakeStore) ListTopicsByCourse(ctx context.Context, courseID string) ([]model.Topic, error) {
	out := []model.Topic{}
	for _, t := range f.topics {
		if t.CourseID == courseID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- memberships ---

func (f *fakeStore) GetMembership(ctx context.Context, userID, courseID string) (*model.Membership, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	at, ok := f.memberships[membershipKey{userID, courseID}]
	if !ok {
		return nil, apperror.NotFound("membership", userID)
	}
	return &model.Membership{UserID: userID, CourseID: courseID, CreatedAt: at}, nil
}

func (f *fakeStore) CreateMembership(ctx context.Context, m *model.Membership) error {
	if err := f.fail(); err != nil {
		return err
	}
	key := membershipKey{m.UserID, m.CourseID}
	if _, ok := f.memberships[key]; ok {
		return apperror.ConflictMsg("already enrolled in this course")
	}
	m.CreatedAt = time.Now().UTC()
	f.memberships[key] = m.CreatedAt
	return nil
}

func (f *fakeStore) DeleteMembership(ctx context.Context, userID, courseID string) error {
	key := membershipKey{userID, courseID}
	if _, ok := f.memberships[key]; !ok {
		return apperror.NotFound("membership", userID)
	}
	delete(f.memberships, key)
	return nil
}

func (f *fakeStore) ListMembers(ctx context.Context, courseID string) ([]model.PublicUser, error) {
	out := []model.PublicUser{}
	for k := range f.memberships {
		if k.courseID == courseID {
			out = append(out, f.users[k.userID].Public())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) SearchNonMembers(ctx context.Context, courseID, query string, limit int) ([]model.PublicUser, error) {
	f.searches++
	q := strings.ToLower(query)
	out := []model.PublicUser{}
	for _, u := range f.users {
		if _, member := f.memberships[membershipKey{u.ID, courseID}]; member {
			continue
		}
		if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(u.Email, q) {
			out = append(out, u.Public())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- feedback ---

func (f *fakeStore) CreateFeedback(ctx context.Context, fb *model.Feedback) error {
	fb.ID = xid.New().String()
	fb.CreatedAt = time.Now().UTC()
	fb.UpdatedAt = fb.CreatedAt
	copied := *fb
	f.feedback[fb.ID] = &copied
	return nil
}

func (f *fakeStore) GetFeedbackByID(ctx context.Context, id string) (*model.Feedback, error) {
	fb, ok := f.feedback[id]
	if !ok {
		return nil, apperror.NotFound("feedback", id)
	}
	copied := *fb
	return &copied, nil
}

func (f *fakeStore) UpdateFeedback(ctx context.Context, fb *model.Feedback) error {
	if _, ok := f.feedback[fb.ID]; !ok {
		return apperror.NotFound("feedback", fb.ID)
	}
	copied := *fb
	f.feedback[fb.ID] = &copied
	return nil
}

func (f *fakeStore) DeleteFeedback(ctx context.Context, id string) error {
	if _, ok := f.feedback[id]; !ok {
		return apperror.NotFound("feedback", id)
	}
	delete(f.feedback, id)
	return nil
}

func (f *fakeStore) listFeedback(keep func(*model.Feedback) bool) []model.Feedback {
	out := []model.Feedback{}
	for _, fb := range f.feedback {
		if keep(fb) {
			out = append(out, *fb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) ListFeedbackByTopic(ctx context.Context, topicID string) ([]model.Feedback, error) {
	return f.listFeedback(func(fb *model.Feedback) bool { return fb.TopicID == topicID }), nil
}

func (f *fakeStore) ListFeedbackByAuthor(ctx context.Context, userID string) ([]model.Feedback, error) {
	return f.listFeedback(func(fb *model.Feedback) bool { return fb.AuthoredBy(userID) }), nil
}

// =========================================================================
// FIXTURES
// =========================================================================

// fakeRecorder counts the business events services report.
type fakeRecorder struct {
	enrollments map[string]int
	changes     map[string]int
	feedback    map[bool]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		enrollments: make(map[string]int),
		changes:     make(map[string]int),
		feedback:    make(map[bool]int),
	}
}

func (r *fakeRecorder) RecordEnrollment(outcome string)     { r.enrollments[outcome]++ }
func (r *fakeRecorder) RecordMembershipChange(action string) { r.changes[action]++ }
func (r *fakeRecorder) RecordFeedback(anonymous bool)        { r.feedback[anonymous]++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (f *fakeStore) addUser(t *testing.T, name string, admin, instructor bool) model.Principal {
	t.Helper()
	u := &model.User{
		Name:         name,
		Email:        strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		IsAdmin:      admin,
		IsInstructor: instructor,
	}
	if err := f.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return model.PrincipalFor(u)
}

func (f *fakeStore) addCourse(t *testing.T, name string, passKey string, instructor model.Principal) *model.Course {
	t.Helper()
	c := &model.Course{Name: name}
	if passKey != "" {
		c.PassKey = &passKey
	}
	if instructor.UserID != "" {
		owner := instructor.UserID
		c.InstructorID = &owner
	}
	if err := f.CreateCourse(context.Background(), c); err != nil {
		t.Fatalf("CreateCourse(%s): %v", name, err)
	}
	return c
}

func (f *fakeStore) addTopic(t *testing.T, courseID, name string) *model.Topic {
	t.Helper()
	topic := &model.Topic{Name: name, CourseID: courseID}
	if err := f.CreateTopic(context.Background(), topic); err != nil {
		t.Fatalf("CreateTopic(%s): %v", name, err)
	}
	return topic
}

func (f *fakeStore) enroll(t *testing.T, p model.Principal, courseID string) {
	t.Helper()
	if err := f.CreateMembership(context.Background(), &model.Membership{UserID: p.UserID, CourseID: courseID}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
}

func (f *fakeStore) isMember(p model.Principal, courseID string) bool {
	_, ok := f.memberships[membershipKey{p.UserID, courseID}]
	return ok
}

func ptr[T any](v T) *T {
	return &v
}
