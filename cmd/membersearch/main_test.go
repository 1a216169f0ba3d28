package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pulsecheck/internal/auth"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/typeahead"
)

type fakeAPI struct {
	searches atomic.Int32
	queries  chan string
}

// newFakeAPI serves login, the member list (Maya is already enrolled) and a
// candidate search that returns Maya alongside Jane.
func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{queries: make(chan string, 16)}

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(auth.CookieName); err != nil || c.Value != "session-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"authentication required"}`))
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "ian@example.com" || body["password"] != "instructor123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"invalid email or password"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: auth.CookieName, Value: "session-1", Path: "/"})
		_, _ = w.Write([]byte(`{"user":{"id":"ian"}}`))
	})
	mux.HandleFunc("GET /api/courses/c1/members", authed(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]model.PublicUser{{ID: "maya", Name: "Maya Member", Email: "maya@example.com"}})
	}))
	mux.HandleFunc("GET /api/courses/c1/members/search", authed(func(w http.ResponseWriter, r *http.Request) {
		api.searches.Add(1)
		api.queries <- r.URL.Query().Get("q")
		_ = json.NewEncoder(w).Encode([]model.PublicUser{
			{ID: "jane", Name: "Jane Doe", Email: "jane@example.com"},
			{ID: "maya", Name: "Maya Member", Email: "maya@example.com"},
		})
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, srv
}

func testOptions(baseURL string) options {
	return options{
		baseURL:  baseURL,
		courseID: "c1",
		email:    "ian@example.com",
		password: "instructor123",
		delay:    50 * time.Millisecond,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_DebouncesAndFiltersMembers(t *testing.T) {
	api, srv := newFakeAPI(t)
	var out bytes.Buffer

	err := run(context.Background(), testOptions(srv.URL), strings.NewReader("J\nJa\nJane\n"), &out, discard())
	require.NoError(t, err)

	assert.Equal(t, int32(1), api.searches.Load())
	assert.Equal(t, "Jane", <-api.queries)
	assert.Equal(t, "1 candidates for \"Jane\":\n  Jane Doe <jane@example.com> jane\n", out.String())
}

func TestRun_BlankLineClears(t *testing.T) {
	api, srv := newFakeAPI(t)
	var out bytes.Buffer

	err := run(context.Background(), testOptions(srv.URL), strings.NewReader("Jane\n   \n"), &out, discard())
	require.NoError(t, err)

	assert.Equal(t, "(cleared)\n", out.String())
	assert.Zero(t, api.searches.Load())
}

func TestRun_NoInput(t *testing.T) {
	api, srv := newFakeAPI(t)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), testOptions(srv.URL), strings.NewReader(""), &out, discard()))
	assert.Empty(t, out.String())
	assert.Zero(t, api.searches.Load())
}

func TestRun_Errors(t *testing.T) {
	_, srv := newFakeAPI(t)

	tests := []struct {
		name    string
		mutate  func(*options)
		wantErr string
	}{
		{"missing course", func(o *options) { o.courseID = "" }, "-course"},
		{"missing password", func(o *options) { o.password = "" }, "password"},
		{"bad credentials", func(o *options) { o.password = "wrong-password" }, "invalid email or password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOptions(srv.URL)
			tt.mutate(&o)

			err := run(context.Background(), o, strings.NewReader("Jane\n"), io.Discard, discard())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_LoginErrorIsAPIError(t *testing.T) {
	_, srv := newFakeAPI(t)
	o := testOptions(srv.URL)
	o.email = "nobody@example.com"

	err := run(context.Background(), o, strings.NewReader("Jane\n"), io.Discard, discard())

	var apiErr *typeahead.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "unauthorized", apiErr.Kind)
}

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name string
		res  typeahead.Result
		want string
	}{
		{"cleared", typeahead.Result{Users: []model.PublicUser{}}, "(cleared)\n"},
		{"empty", typeahead.Result{Query: "zz"}, "no candidates for \"zz\"\n"},
		{"failed", typeahead.Result{Query: "zz", Err: &typeahead.APIError{Status: 500}}, "search \"zz\" failed: typeahead: server returned 500\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printResult(&buf, tt.res)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
