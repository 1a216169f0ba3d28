package typeahead

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/pulsecheck/internal/model"
)

// HTTPSearcher calls GET /api/courses/{courseID}/members/search. The client
// must carry the session cookie (for example through a cookie jar).
type HTTPSearcher struct {
	client   *http.Client
	baseURL  string
	courseID string
	limit    int
}

// NewHTTPSearcher targets baseURL (e.g. http://localhost:8080). A nil client
// uses http.DefaultClient; limit <= 0 lets the server pick its default.
func NewHTTPSearcher(client *http.Client, baseURL, courseID string, limit int) *HTTPSearcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSearcher{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		courseID: courseID,
		limit:    limit,
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Kind    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("typeahead: server returned %d", e.Status)
	}
	return fmt.Sprintf("typeahead: %s (%d)", e.Message, e.Status)
}

func (s *HTTPSearcher) Search(ctx context.Context, query string) ([]model.PublicUser, error) {
	params := url.Values{"q": {query}}
	if s.limit > 0 {
		params.Set("limit", strconv.Itoa(s.limit))
	}
	endpoint := fmt.Sprintf("%s/api/courses/%s/members/search?%s",
		s.baseURL, url.PathEscape(s.courseID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("typeahead: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("typeahead: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(body, apiErr)
		return nil, apiErr
	}

	var users []model.PublicUser
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("typeahead: decoding response: %w", err)
	}
	return users, nil
}
