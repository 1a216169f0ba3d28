package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/model"
)

func TestCourseCreate(t *testing.T) {
	store := newFakeStore()
	svc := NewCourseService(store, store, store, testLogger())
	admin := store.addUser(t, "Ada Admin", true, false)
	instructor := store.addUser(t, "Ian Instructor", false, true)
	student := store.addUser(t, "Sam Student", false, false)
	ctx := context.Background()

	t.Run("instructor owns what they create", func(t *testing.T) {
		c, err := svc.Create(ctx, instructor, CreateCourseInput{Name: "  Go 101 ", PassKey: "AB12"})
		require.NoError(t, err)
		assert.Equal(t, "Go 101", c.Name)
		require.NotNil(t, c.InstructorID)
		assert.Equal(t, instructor.UserID, *c.InstructorID)
		require.NotNil(t, c.PassKey)
		assert.Equal(t, "AB12", *c.PassKey)
	})

	t.Run("instructor cannot assign someone else", func(t *testing.T) {
		c, err := svc.Create(ctx, instructor, CreateCourseInput{Name: "Go 102", InstructorID: admin.UserID})
		require.NoError(t, err)
		assert.Equal(t, instructor.UserID, *c.InstructorID)
	})

	t.Run("admin assigns an instructor", func(t *testing.T) {
		c, err := svc.Create(ctx, admin, CreateCourseInput{Name: "Rust 101", InstructorID: instructor.UserID})
		require.NoError(t, err)
		assert.Equal(t, instructor.UserID, *c.InstructorID)
		assert.Nil(t, c.PassKey)
	})

	t.Run("admin without instructor leaves it unowned", func(t *testing.T) {
		c, err := svc.Create(ctx, admin, CreateCourseInput{Name: "Orphan"})
		require.NoError(t, err)
		assert.Nil(t, c.InstructorID)
	})

	t.Run("assigned user must be an instructor", func(t *testing.T) {
		_, err := svc.Create(ctx, admin, CreateCourseInput{Name: "Nope", InstructorID: student.UserID})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("student is forbidden", func(t *testing.T) {
		_, err := svc.Create(ctx, student, CreateCourseInput{Name: "Mine"})
		assert.ErrorIs(t, err, apperror.ErrForbidden)
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := svc.Create(ctx, admin, CreateCourseInput{Name: "Go 101"})
		assert.ErrorIs(t, err, apperror.ErrConflict)
	})

	t.Run("invalid input", func(t *testing.T) {
		cases := map[string]CreateCourseInput{
			"blank name":          {Name: "   "},
			"passkey too long":    {Name: "Long Key", PassKey: "ABCDEFG"},
			"passkey punctuation": {Name: "Punct", PassKey: "AB-1"},
		}
		for name, in := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := svc.Create(ctx, admin, in)
				assert.ErrorIs(t, err, apperror.ErrValidation)
			})
		}
	})
}

func TestCourseGet_PassKeyVisibility(t *testing.T) {
	store := newFakeStore()
	svc := NewCourseService(store, store, store, testLogger())
	admin := store.addUser(t, "Ada Admin", true, false)
	owner := store.addUser(t, "Ian Instructor", false, true)
	other := store.addUser(t, "Nora Other", false, true)
	student := store.addUser(t, "Sam Student", false, false)
	course := store.addCourse(t, "Go 101", "AB12", owner)

	tests := []struct {
		name        string
		actor       model.Principal
		wantPassKey bool
	}{
		{"admin", admin, true},
		{"owner", owner, true},
		{"other instructor", other, false},
		{"student", student, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Get(context.Background(), tt.actor, course.ID)
			require.NoError(t, err)
			assert.Equal(t, "Ian Instructor", got.InstructorName)
			assert.True(t, got.RequiresPassKey)
			if tt.wantPassKey {
				require.NotNil(t, got.PassKey)
				assert.Equal(t, "AB12", *got.PassKey)
			} else {
				assert.Nil(t, got.PassKey)
			}
		})
	}
}

func TestCourseUpdate(t *testing.T) {
	store := newFakeStore()
	svc := NewCourseService(store, store, store, testLogger())
	admin := store.addUser(t, "Ada Admin", true, false)
	owner := store.addUser(t, "Ian Instructor", false, true)
	other := store.addUser(t, "Nora Other", false, true)
	course := store.addCourse(t, "Go 101", "AB12", owner)
	ctx := context.Background()

	t.Run("owner renames and clears the passkey", func(t *testing.T) {
		got, err := svc.Update(ctx, owner, course.ID, model.CoursePatch{Name: ptr("Go 201"), PassKey: ptr("")})
		require.NoError(t, err)
		assert.Equal(t, "Go 201", got.Name)
		assert.Nil(t, got.PassKey)
		assert.False(t, store.courses[course.ID].RequiresPassKey())
	})

	t.Run("owner cannot reassign", func(t *testing.T) {
		_, err := svc.Update(ctx, owner, course.ID, model.CoursePatch{InstructorID: ptr(other.UserID)})
		assert.ErrorIs(t, err, apperror.ErrForbidden)
	})

	t.Run("admin reassigns then unassigns", func(t *testing.T) {
		got, err := svc.Update(ctx, admin, course.ID, model.CoursePatch{InstructorID: ptr(other.UserID)})
		require.NoError(t, err)
		assert.Equal(t, other.UserID, *got.InstructorID)

		got, err = svc.Update(ctx, admin, course.ID, model.CoursePatch{InstructorID: ptr("")})
		require.NoError(t, err)
		assert.Nil(t, got.InstructorID)
	})

	t.Run("former owner loses access", func(t *testing.T) {
		_, err := svc.Update(ctx, owner, course.ID, model.CoursePatch{Name: ptr("Mine again")})
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})
}

func TestCourseDelete_Cascades(t *testing.T) {
	store := newFakeStore()
	svc := NewCourseService(store, store, store, testLogger())
	owner := store.addUser(t, "Ian Instructor", false, true)
	other := store.addUser(t, "Nora Other", false, true)
	student := store.addUser(t, "Sam Student", false, false)
	course := store.addCourse(t, "Go 101", "", owner)
	topic := store.addTopic(t, course.ID, "Week 1")
	store.enroll(t, student, course.ID)
	require.NoError(t, store.CreateFeedback(context.Background(), &model.Feedback{
		Rating: 4, TopicID: topic.ID, ToUserID: owner.UserID, FromUserID: ptr(student.UserID),
	}))

	err := svc.Delete(context.Background(), other, course.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Len(t, store.courses, 1)

	require.NoError(t, svc.Delete(context.Background(), owner, course.ID))
	assert.Empty(t, store.courses)
	assert.Empty(t, store.topics)
	assert.Empty(t, store.memberships)
	assert.Empty(t, store.feedback)
}

func TestCourseList_RoleScoped(t *testing.T) {
	store := newFakeStore()
	svc := NewCourseService(store, store, store, testLogger())
	admin := store.addUser(t, "Ada Admin", true, false)
	owner := store.addUser(t, "Ian Instructor", false, true)
	student := store.addUser(t, "Sam Student", false, false)
	a := store.addCourse(t, "Algebra", "", owner)
	store.addCourse(t, "Biology", "", model.Principal{})
	store.addCourse(t, "Chemistry", "", admin)
	store.enroll(t, student, a.ID)

	tests := []struct {
		name  string
		actor model.Principal
		want  []string
	}{
		{"admin sees all", admin, []string{"Algebra", "Biology", "Chemistry"}},
		{"instructor sees owned", owner, []string{"Algebra"}},
		{"student sees enrolled", student, []string{"Algebra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(context.Background(), tt.actor)
			require.NoError(t, err)
			names := make([]string, 0, len(got))
			for _, c := range got {
				names = append(names, c.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}
