package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pulsecheck/internal/auth"
	"github.com/sakif/pulsecheck/internal/config"
)

const missingID = "cn9ar5ue0e8s3f2v4l8g"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		Port:                    8080,
		DBPath:                  ":memory:",
		PublicURL:               "http://localhost:8080",
		LogLevel:                "error",
		LogFormat:               "text",
		JWTSecret:               "test-secret-at-least-16-chars",
		BcryptCost:              4,
		AllowExplicitEnrollUser: true,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	s, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type apiResponse struct {
	*httptest.ResponseRecorder
}

func (r apiResponse) decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body.Bytes(), dst), r.Body.String())
}

func (r apiResponse) errorBody(t *testing.T) map[string]string {
	t.Helper()
	var body map[string]string
	r.decode(t, &body)
	return body
}

func (r apiResponse) session() *http.Cookie {
	for _, c := range r.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func call(t *testing.T, s *Server, method, path string, body any, session *http.Cookie) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if session != nil {
		req.AddCookie(session)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return apiResponse{rr}
}

type account struct {
	ID      string
	Email   string
	Session *http.Cookie
}

func signup(t *testing.T, s *Server, name, email string) account {
	t.Helper()
	res := call(t, s, http.MethodPost, "/auth/signup", map[string]string{
		"name": name, "email": email, "password": "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var body struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	res.decode(t, &body)
	require.NotNil(t, res.session())
	return account{ID: body.User.ID, Email: email, Session: res.session()}
}

// grant sets role flags directly in storage and logs in again, since roles
// are read into the token at login.
func grant(t *testing.T, s *Server, a account, admin, instructor bool) account {
	t.Helper()
	ctx := context.Background()
	u, err := s.db.GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	u.IsAdmin, u.IsInstructor = admin, instructor
	require.NoError(t, s.db.UpdateUser(ctx, u))

	res := call(t, s, http.MethodPost, "/auth/login", map[string]string{
		"email": a.Email, "password": "password123",
	}, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	a.Session = res.session()
	return a
}

func createCourse(t *testing.T, s *Server, owner account, name, passKey string) string {
	t.Helper()
	res := call(t, s, http.MethodPost, "/api/courses", map[string]string{
		"name": name, "passKey": passKey,
	}, owner.Session)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var course struct {
		ID string `json:"id"`
	}
	res.decode(t, &course)
	return course.ID
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	res := call(t, s, http.MethodGet, "/healthz", nil, nil)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
}

func TestMetrics_ExposeRequestsAndEnrollments(t *testing.T) {
	s := newTestServer(t)
	student := signup(t, s, "Sam Student", "sam@example.com")
	call(t, s, http.MethodGet, "/healthz", nil, nil)
	call(t, s, http.MethodPost, "/api/enrollments", map[string]string{"courseId": missingID}, student.Session)

	res := call(t, s, http.MethodGet, "/metrics", nil, nil)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `pulsecheck_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, res.Body.String(), `pulsecheck_enrollments_total{outcome="course_missing"} 1`)
}

func TestAPI_RequiresSession(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/me", "/api/dashboard", "/api/courses", "/api/enrollments"} {
		t.Run(path, func(t *testing.T) {
			res := call(t, s, http.MethodGet, path, nil, nil)
			assert.Equal(t, http.StatusUnauthorized, res.Code)
			assert.Equal(t, "unauthorized", res.errorBody(t)["error"])
		})
	}

	t.Run("garbage cookie", func(t *testing.T) {
		res := call(t, s, http.MethodGet, "/api/me", nil, &http.Cookie{Name: auth.CookieName, Value: "not-a-jwt"})
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	student := signup(t, s, "Sam Student", "sam@example.com")
	admin := grant(t, s, signup(t, s, "Ada Admin", "ada@example.com"), true, false)

	t.Run("student is forbidden", func(t *testing.T) {
		res := call(t, s, http.MethodGet, "/api/admin/users", nil, student.Session)
		assert.Equal(t, http.StatusForbidden, res.Code)
		assert.Equal(t, "forbidden", res.errorBody(t)["error"])
	})

	t.Run("admin lists and promotes", func(t *testing.T) {
		res := call(t, s, http.MethodGet, "/api/admin/users?q=sam", nil, admin.Session)
		require.Equal(t, http.StatusOK, res.Code)
		var users []map[string]any
		res.decode(t, &users)
		require.Len(t, users, 1)
		assert.Equal(t, student.ID, users[0]["id"])

		res = call(t, s, http.MethodPatch, "/api/admin/users/"+student.ID+"/roles",
			map[string]bool{"isAdmin": false, "isInstructor": true}, admin.Session)
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
		var updated map[string]any
		res.decode(t, &updated)
		assert.Equal(t, true, updated["isInstructor"])
	})

	t.Run("roles body must name both flags", func(t *testing.T) {
		res := call(t, s, http.MethodPatch, "/api/admin/users/"+student.ID+"/roles",
			map[string]bool{"isAdmin": true}, admin.Session)
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "isInstructor", res.errorBody(t)["field"])
	})
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t)

	res := call(t, s, http.MethodPost, "/auth/signup", map[string]string{
		"name": "Sam", "email": "sam@example.com", "password": "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, res.Code)
	cookie := res.session()
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.NotContains(t, res.Body.String(), "password")

	t.Run("duplicate email", func(t *testing.T) {
		res := call(t, s, http.MethodPost, "/auth/signup", map[string]string{
			"name": "Sam Again", "email": "SAM@example.com", "password": "password123",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, res.Code)
		body := res.errorBody(t)
		assert.Equal(t, "conflict", body["error"])
		assert.Equal(t, "email", body["field"])
	})

	t.Run("short password", func(t *testing.T) {
		res := call(t, s, http.MethodPost, "/auth/signup", map[string]string{
			"name": "Kim", "email": "kim@example.com", "password": "short",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "password", res.errorBody(t)["field"])
	})

	t.Run("wrong password", func(t *testing.T) {
		res := call(t, s, http.MethodPost, "/auth/login", map[string]string{
			"email": "sam@example.com", "password": "wrong-password",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assert.Nil(t, res.session())
	})

	t.Run("session reaches /api/me", func(t *testing.T) {
		res := call(t, s, http.MethodGet, "/api/me", nil, cookie)
		require.Equal(t, http.StatusOK, res.Code)
		var me map[string]any
		res.decode(t, &me)
		assert.Equal(t, "sam@example.com", me["email"])
	})

	t.Run("logout clears cookie", func(t *testing.T) {
		res := call(t, s, http.MethodPost, "/auth/logout", nil, cookie)
		assert.Equal(t, http.StatusNoContent, res.Code)
		cleared := res.session()
		require.NotNil(t, cleared)
		assert.Empty(t, cleared.Value)
		assert.Negative(t, cleared.MaxAge)
	})
}

func TestEnrollmentFlow(t *testing.T) {
	s := newTestServer(t)
	instructor := grant(t, s, signup(t, s, "Ian Instructor", "ian@example.com"), false, true)
	student := signup(t, s, "Sam Student", "sam@example.com")
	courseID := createCourse(t, s, instructor, "Intro to Go", "AB12")

	enroll := func(passKey *string) apiResponse {
		body := map[string]any{"courseId": courseID}
		if passKey != nil {
			body["passKey"] = *passKey
		}
		return call(t, s, http.MethodPost, "/api/enrollments", body, student.Session)
	}
	key := func(s string) *string { return &s }

	t.Run("enrollable list hides the passkey", func(t *testing.T) {
		res := call(t, s, http.MethodGet, "/api/courses/enrollable", nil, nil)
		require.Equal(t, http.StatusOK, res.Code)
		assert.NotContains(t, res.Body.String(), "AB12")
		assert.Contains(t, res.Body.String(), `"requiresPassKey":true`)
	})

	for _, tt := range []struct {
		name    string
		passKey *string
	}{
		{name: "missing passkey", passKey: nil},
		{name: "empty passkey", passKey: key("")},
		{name: "case differs", passKey: key("ab12 ")},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res := enroll(tt.passKey)
			assert.Equal(t, http.StatusBadRequest, res.Code)
			body := res.errorBody(t)
			assert.Equal(t, "validation_error", body["error"])
			assert.Equal(t, "passKey", body["field"])
		})
	}

	t.Run("exact trimmed match enrolls", func(t *testing.T) {
		res := enroll(key("  AB12 "))
		require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
		var got map[string]any
		res.decode(t, &got)
		assert.Equal(t, student.ID, got["userId"])
	})

	t.Run("second enroll conflicts", func(t *testing.T) {
		res := enroll(key("AB12"))
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "conflict", res.errorBody(t)["error"])
	})

	t.Run("my courses", func(t *testing.T) {
		res := call(t, s, http.MethodGet, "/api/enrollments", nil, student.Session)
		require.Equal(t, http.StatusOK, res.Code)
		assert.Contains(t, res.Body.String(), courseID)
	})

	t.Run("unenroll then unenroll again", func(t *testing.T) {
		res := call(t, s, http.MethodDelete, "/api/enrollments/"+courseID, nil, student.Session)
		require.Equal(t, http.StatusOK, res.Code)
		assert.NotEmpty(t, res.errorBody(t)["message"])

		res = call(t, s, http.MethodDelete, "/api/enrollments/"+courseID, nil, student.Session)
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "conflict", res.errorBody(t)["error"])
	})

	t.Run("missing course", func(t *testing.T) {
		res := call(t, s, http.MethodPost, "/api/enrollments", map[string]string{"courseId": missingID}, student.Session)
		assert.Equal(t, http.StatusNotFound, res.Code)
	})

	t.Run("malformed course id", func(t *testing.T) {
		res := call(t, s, http.MethodPost, "/api/enrollments", map[string]string{"courseId": "42"}, student.Session)
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "courseId", res.errorBody(t)["field"])
	})

	t.Run("anonymous without userId", func(t *testing.T) {
		res := call(t, s, http.MethodPost, "/api/enrollments", map[string]string{"courseId": courseID}, nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})

	t.Run("anonymous with explicit userId", func(t *testing.T) {
		res := call(t, s, http.MethodPost, "/api/enrollments", map[string]string{
			"courseId": courseID, "userId": student.ID, "passKey": "AB12",
		}, nil)
		assert.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	})
}

func TestSignupWithEnrollment(t *testing.T) {
	s := newTestServer(t)
	instructor := grant(t, s, signup(t, s, "Ian Instructor", "ian@example.com"), false, true)
	courseID := createCourse(t, s, instructor, "Intro to Go", "GO101")

	t.Run("wrong passkey still creates the account", func(t *testing.T) {
		res := call(t, s, http.MethodPost, "/auth/signup", map[string]string{
			"name": "Sam", "email": "sam@example.com", "password": "password123",
			"courseId": courseID, "passKey": "nope",
		}, nil)
		require.Equal(t, http.StatusCreated, res.Code)
		var body struct {
			Enrollment      *json.RawMessage  `json:"enrollment"`
			EnrollmentError map[string]string `json:"enrollmentError"`
		}
		res.decode(t, &body)
		assert.Nil(t, body.Enrollment)
		assert.Equal(t, "validation_error", body.EnrollmentError["error"])
		assert.Equal(t, "passKey", body.EnrollmentError["field"])
	})

	t.Run("right passkey enrolls", func(t *testing.T) {
		res := call(t, s, http.MethodPost, "/auth/signup", map[string]string{
			"name": "Kim", "email": "kim@example.com", "password": "password123",
			"courseId": courseID, "passKey": "GO101",
		}, nil)
		require.Equal(t, http.StatusCreated, res.Code)
		var body struct {
			Enrollment struct {
				Course struct {
					ID string `json:"id"`
				} `json:"course"`
			} `json:"enrollment"`
		}
		res.decode(t, &body)
		assert.Equal(t, courseID, body.Enrollment.Course.ID)
	})
}

func TestMembers_OwnershipIsMasked(t *testing.T) {
	s := newTestServer(t)
	owner := grant(t, s, signup(t, s, "Olive Owner", "olive@example.com"), false, true)
	other := grant(t, s, signup(t, s, "Oscar Other", "oscar@example.com"), false, true)
	student := signup(t, s, "Sam Student", "sam@example.com")
	courseID := createCourse(t, s, owner, "Databases", "")

	add := func(session *http.Cookie, course string) apiResponse {
		return call(t, s, http.MethodPost, "/api/courses/"+course+"/members",
			map[string]string{"userId": student.ID}, session)
	}

	denied := add(other.Session, courseID)
	missing := add(other.Session, missingID)

	assert.Equal(t, http.StatusNotFound, denied.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "course not found with id "+courseID, denied.errorBody(t)["message"])
	assert.Equal(t, "course not found with id "+missingID, missing.errorBody(t)["message"])

	t.Run("owner adds, searches and removes", func(t *testing.T) {
		res := call(t, s, http.MethodGet, "/api/courses/"+courseID+"/members/search?q=SAM", nil, owner.Session)
		require.Equal(t, http.StatusOK, res.Code)
		assert.Contains(t, res.Body.String(), student.ID)

		res = add(owner.Session, courseID)
		require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
		var member map[string]any
		res.decode(t, &member)
		assert.ElementsMatch(t, []string{"id", "name", "email"}, keys(member))

		res = add(owner.Session, courseID)
		assert.Equal(t, http.StatusBadRequest, res.Code)

		res = call(t, s, http.MethodGet, "/api/courses/"+courseID+"/members/search?q=sam", nil, owner.Session)
		require.Equal(t, http.StatusOK, res.Code)
		assert.NotContains(t, res.Body.String(), student.ID)

		res = call(t, s, http.MethodDelete, "/api/courses/"+courseID+"/members/"+student.ID, nil, owner.Session)
		assert.Equal(t, http.StatusOK, res.Code)

		res = call(t, s, http.MethodDelete, "/api/courses/"+courseID+"/members/"+student.ID, nil, owner.Session)
		assert.Equal(t, http.StatusNotFound, res.Code)
	})

	t.Run("students see 404 on the roster", func(t *testing.T) {
		res := call(t, s, http.MethodGet, "/api/courses/"+courseID+"/members", nil, student.Session)
		assert.Equal(t, http.StatusNotFound, res.Code)
	})
}

func TestCourseDelete_CascadesThroughHTTP(t *testing.T) {
	s := newTestServer(t)
	instructor := grant(t, s, signup(t, s, "Ian Instructor", "ian@example.com"), false, true)
	student := signup(t, s, "Sam Student", "sam@example.com")
	courseID := createCourse(t, s, instructor, "Compilers", "")

	res := call(t, s, http.MethodPost, "/api/enrollments", map[string]string{"courseId": courseID}, student.Session)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	topicIDs := make([]string, 0, 2)
	for _, name := range []string{"Lexing", "Parsing"} {
		res := call(t, s, http.MethodPost, "/api/courses/"+courseID+"/topics", map[string]string{"name": name}, instructor.Session)
		require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
		var topic struct {
			ID string `json:"id"`
		}
		res.decode(t, &topic)
		topicIDs = append(topicIDs, topic.ID)
	}

	res = call(t, s, http.MethodPost, "/api/topics/"+topicIDs[0]+"/feedback",
		map[string]any{"rating": 4, "comment": "clear examples"}, student.Session)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = call(t, s, http.MethodDelete, "/api/courses/"+courseID, nil, instructor.Session)
	require.Equal(t, http.StatusNoContent, res.Code, res.Body.String())

	assert.Equal(t, http.StatusNotFound, call(t, s, http.MethodGet, "/api/courses/"+courseID, nil, instructor.Session).Code)
	for _, id := range topicIDs {
		_, err := s.db.GetTopicByID(context.Background(), id)
		assert.Error(t, err, "topic %s should be gone", id)
	}

	res = call(t, s, http.MethodGet, "/api/feedback/mine", nil, student.Session)
	require.Equal(t, http.StatusOK, res.Code)
	var mine []any
	res.decode(t, &mine)
	assert.Empty(t, mine)

	res = call(t, s, http.MethodGet, "/api/enrollments", nil, student.Session)
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotContains(t, res.Body.String(), courseID)
}

func TestUnknownFieldsRejected(t *testing.T) {
	s := newTestServer(t)

	res := call(t, s, http.MethodPost, "/auth/signup", map[string]any{
		"name": "Sam", "email": "sam@example.com", "password": "password123", "isAdmin": true,
	}, nil)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "validation_error", res.errorBody(t)["error"])
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
