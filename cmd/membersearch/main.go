// Command membersearch is a terminal front end for course member search.
// Each line read from stdin is the current contents of the search box; the
// candidates for the latest line are printed once typing pauses. A blank
// line clears the results.
//
// Usage:
//
//	PULSECHECK_PASSWORD=instructor123 go run ./cmd/membersearch \
//	    -url http://localhost:8080 -course <courseID> -email instructor@example.com
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/typeahead"
)

const requestTimeout = 10 * time.Second

type options struct {
	baseURL  string
	courseID string
	email    string
	password string
	limit    int
	delay    time.Duration
}

func main() {
	var o options
	flag.StringVar(&o.baseURL, "url", "http://localhost:8080", "PulseCheck base URL")
	flag.StringVar(&o.courseID, "course", "", "course id to search candidates for")
	flag.StringVar(&o.email, "email", "", "login email of the course instructor or an admin")
	flag.StringVar(&o.password, "password", os.Getenv("PULSECHECK_PASSWORD"), "login password (default $PULSECHECK_PASSWORD)")
	flag.IntVar(&o.limit, "limit", 0, "maximum candidates per search (0 = server default)")
	flag.DurationVar(&o.delay, "delay", typeahead.DefaultDelay, "quiet period before a search is issued")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o, os.Stdin, os.Stdout, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("member search failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if o.courseID == "" || o.email == "" || o.password == "" {
		return errors.New("-course, -email and a password are required")
	}
	base := strings.TrimRight(o.baseURL, "/")

	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Timeout: requestTimeout}

	if err := login(ctx, client, base, o.email, o.password); err != nil {
		return err
	}
	var members []model.PublicUser
	if err := getJSON(ctx, client, base+"/api/courses/"+url.PathEscape(o.courseID)+"/members", &members); err != nil {
		return fmt.Errorf("listing members: %w", err)
	}
	logger.Info("signed in", slog.String("email", o.email), slog.Int("members", len(members)))

	done := make(chan struct{})
	defer close(done)
	results := make(chan typeahead.Result)
	d := typeahead.New(
		typeahead.NewHTTPSearcher(client, base, o.courseID, o.limit),
		func(r typeahead.Result) {
			select {
			case results <- r:
			case <-done:
			}
		},
		typeahead.WithDelay(o.delay),
	)
	defer d.Close()

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	d.SetMembers(ids)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		if err := sc.Err(); err != nil {
			logger.Warn("reading input", slog.String("error", err.Error()))
		}
	}()

	var (
		last     string
		typed    bool
		finished bool
		deadline <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if !typed {
					return nil
				}
				lines = nil
				finished = true
				deadline = time.After(o.delay + requestTimeout)
				continue
			}
			typed = true
			last = strings.TrimSpace(line)
			d.Input(line)
		case r := <-results:
			printResult(out, r)
			if finished && r.Query == last {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("no answer for %q", last)
		}
	}
}

func printResult(w io.Writer, r typeahead.Result) {
	switch {
	case r.Err != nil:
		fmt.Fprintf(w, "search %q failed: %v\n", r.Query, r.Err)
	case r.Query == "":
		fmt.Fprintln(w, "(cleared)")
	case len(r.Users) == 0:
		fmt.Fprintf(w, "no candidates for %q\n", r.Query)
	default:
		fmt.Fprintf(w, "%d candidates for %q:\n", len(r.Users), r.Query)
		for _, u := range r.Users {
			fmt.Fprintf(w, "  %s <%s> %s\n", u.Name, u.Email, u.ID)
		}
	}
}

// login posts the credentials; the session cookie lands in the client's jar.
func login(ctx context.Context, client *http.Client, base, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("login: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login: %w", apiError(resp))
	}
	return nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func apiError(resp *http.Response) error {
	apiErr := &typeahead.APIError{Status: resp.StatusCode}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
	return apiErr
}
