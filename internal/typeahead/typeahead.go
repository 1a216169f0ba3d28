// Package typeahead is the client half of member search: it debounces
// keystrokes, issues at most one search per pause, and drops responses that
// a newer search has overtaken.
//
// TIMELINE FOR "J", "Ja", "Jane" TYPED QUICKLY:
//
//	Input("J")    → timer armed
//	Input("Ja")   → timer reset
//	Input("Jane") → timer reset
//	...500ms of quiet...
//	search #1 for "Jane"
//
// Each issued search gets a sequence number and its own context. Issuing
// search #n cancels search #n-1; if #n-1 answers anyway, its result is
// discarded because n is now the latest sequence.
package typeahead

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sakif/pulsecheck/internal/model"
)

// DefaultDelay is the quiet period before a search is issued.
const DefaultDelay = 500 * time.Millisecond

// Searcher runs one candidate search. HTTPSearcher is the production one.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.PublicUser, error)
}

// Result is delivered once per search that was still the latest when it
// finished.
type Result struct {
	Seq   uint64
	Query string
	Users []model.PublicUser
	Err   error
}

type Option func(*Debouncer)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(db *Debouncer) {
		if d > 0 {
			db.delay = d
		}
	}
}

type Debouncer struct {
	searcher Searcher
	onResult func(Result)
	delay    time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending uint64 // bumps on every Input; a firing timer must still match it
	seq     uint64 // last issued search
	cancel  context.CancelFunc
	members map[string]struct{}
	closed  bool

	// deliverMu serialises onResult so results arrive in issue order.
	deliverMu sync.Mutex
}

// New returns a Debouncer that reports results through onResult. onResult
// runs on a background goroutine and must not block for long.
func New(searcher Searcher, onResult func(Result), opts ...Option) *Debouncer {
	d := &Debouncer{
		searcher: searcher,
		onResult: onResult,
		delay:    DefaultDelay,
		members:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetMembers replaces the ids filtered out of every result. The server
// already excludes members; this catches ones added since the page loaded.
func (d *Debouncer) SetMembers(ids []string) {
	members := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		members[id] = struct{}{}
	}
	d.mu.Lock()
	d.members = members
	d.mu.Unlock()
}

// AddMember marks one more user as a member.
func (d *Debouncer) AddMember(id string) {
	d.mu.Lock()
	d.members[id] = struct{}{}
	d.mu.Unlock()
}

// Input records a keystroke. It restarts the quiet period; a blank query
// cancels everything and reports an empty result without waiting. Input never
// blocks on delivery, so onResult may call it.
func (d *Debouncer) Input(query string) {
	query = strings.TrimSpace(query)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending++
	gen := d.pending

	if query == "" {
		d.seq++
		seq := d.seq
		if d.cancel != nil {
			d.cancel()
			d.cancel = nil
		}
		d.mu.Unlock()
		go d.deliver(seq, Result{Seq: seq, Users: []model.PublicUser{}})
		return
	}

	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen, query) })
	d.mu.Unlock()
}

// fire issues the search if no Input arrived since the timer was armed.
func (d *Debouncer) fire(gen uint64, query string) {
	d.mu.Lock()
	if d.closed || gen != d.pending {
		d.mu.Unlock()
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.seq++
	seq := d.seq
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mu.Unlock()

	users, err := d.searcher.Search(ctx, query)
	cancel()

	d.deliver(seq, Result{Seq: seq, Query: query, Users: users, Err: err})
}

// deliver hands res to onResult unless a newer search has been issued.
func (d *Debouncer) deliver(seq uint64, res Result) {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	if d.closed || seq != d.seq {
		d.mu.Unlock()
		return
	}
	if res.Err == nil {
		res.Users = d.withoutMembers(res.Users)
	}
	d.mu.Unlock()

	d.onResult(res)
}

// withoutMembers must be called with d.mu held.
func (d *Debouncer) withoutMembers(users []model.PublicUser) []model.PublicUser {
	out := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		if _, member := d.members[u.ID]; !member {
			out = append(out, u)
		}
	}
	return out
}

// Close stops the timer and cancels any in-flight search. No results are
// delivered after Close returns.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
