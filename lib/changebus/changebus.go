// Package changebus aggregates filesystem change notifications emitted by
// the fswatch watchers and matches them against the set of requests that are
// long-polling on a SUBSCRIBE verb.
package changebus

import (
	"errors"
	"strings"
	"time"

	"tdserver/lib/logger"
	"tdserver/lib/sync"
)

var l = logger.DefaultLogger.NewFacility("changebus", "Change notification aggregation")

// DebounceDelay is how long the bus waits for the stream of changes to go
// quiet before matching them against waiting subscribers.
const DebounceDelay = 500 * time.Millisecond

// ErrCancelled is delivered to a Subscription's result when its owning
// request is cancelled before a match or timeout occurs.
var ErrCancelled = errors.New("changebus: subscription cancelled")

// Change is a root-relative, slash-separated path that was created,
// modified, or removed.
type Change = string

// Result is what a Subscription resolves to: either a non-empty set of
// matched relative paths, or an error (currently only ErrCancelled).
type Result struct {
	Matched []string
	Err     error
}

// Subscription represents one SUBSCRIBE request's interest in a subtree. It
// lives only for the duration of that request.
type Subscription struct {
	Path  string // root-relative, normalized; "." means the whole tree
	Depth int    // 0 = Path itself only, >=1 = Path and descendants

	result chan Result
	done   bool
}

// NewSubscription creates a Subscription ready to Register with a Bus.
func NewSubscription(path string, depth int) *Subscription {
	return &Subscription{
		Path:   path,
		Depth:  depth,
		result: make(chan Result, 1),
	}
}

// C returns the channel the Subscription resolves on. Exactly one Result is
// ever sent, then the channel is never written to again until Reset.
func (s *Subscription) C() <-chan Result {
	return s.result
}

// Reset rearms the Subscription for another round of waiting, used by the
// meta-only suppression loop in the SUBSCRIBE handler: a resolution that
// turned out to be uninteresting re-enters the wait with a fresh channel.
func (s *Subscription) Reset() {
	s.done = false
	s.result = make(chan Result, 1)
}

// Bus is the process-wide change aggregator: a set of pending changes
// accumulated since the last flush, the set of currently waiting
// Subscriptions, and the debounce timer that ties them together. A single
// mutex guards Post, Register, Cancel and the timer-driven flush, per the
// concurrency model: no operation here ever blocks on anything but that
// mutex.
type Bus struct {
	changes       map[Change]struct{}
	subs          []*Subscription
	debounceTimer *time.Timer
	mut           sync.Mutex
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		changes: make(map[Change]struct{}),
		mut:     sync.NewMutex(),
	}
}

// Post records a change and (re)arms the debounce timer. A burst of posts
// within one DebounceDelay window collapses into a single flush.
func (b *Bus) Post(change Change) {
	b.mut.Lock()
	defer b.mut.Unlock()
	l.Debugln("post", change)
	b.changes[change] = struct{}{}
	if b.debounceTimer == nil {
		b.debounceTimer = time.AfterFunc(DebounceDelay, b.flush)
	} else {
		b.debounceTimer.Reset(DebounceDelay)
	}
}

// Register adds s to the set of waiting subscribers. The caller is
// responsible for calling Cancel if it gives up on s (e.g. the request's
// context is done) before it resolves on its own.
func (b *Bus) Register(s *Subscription) {
	b.mut.Lock()
	defer b.mut.Unlock()
	l.Debugln("register", s.Path, "depth", s.Depth)
	b.subs = append(b.subs, s)
}

// Cancel resolves s with ErrCancelled, if it has not already resolved, and
// removes it from the waiting set. Safe to call even if s already resolved.
func (b *Bus) Cancel(s *Subscription) {
	b.mut.Lock()
	defer b.mut.Unlock()
	b.remove(s)
	b.resolve(s, Result{Err: ErrCancelled})
}

// MatchPending reports, synchronously and without waiting for the
// debounce timer, which of the changes posted since the last flush match
// s. Unlike flush, it does not clear b.changes or resolve s: other
// subscribers still need to see these changes once the timer fires. It
// exists for the zero-timeout SUBSCRIBE case, where the caller must
// return immediately with whatever is already pending instead of racing
// a zero-duration timer against the debounce window.
func (b *Bus) MatchPending(s *Subscription) []string {
	b.mut.Lock()
	defer b.mut.Unlock()
	return matchAll(s, b.changes)
}

func (b *Bus) remove(s *Subscription) {
	for i, ss := range b.subs {
		if ss == s {
			last := len(b.subs) - 1
			b.subs[i] = b.subs[last]
			b.subs[last] = nil
			b.subs = b.subs[:last]
			return
		}
	}
}

func (b *Bus) resolve(s *Subscription, r Result) {
	if s.done {
		return
	}
	s.done = true
	s.result <- r
}

// flush runs when the debounce timer fires. It is the only place that reads
// and clears b.changes, so every waiting subscriber observes one consistent
// snapshot of what changed since the previous flush.
func (b *Bus) flush() {
	b.mut.Lock()
	defer b.mut.Unlock()

	if len(b.changes) == 0 {
		return
	}
	l.Debugf("flush: %d changes, %d waiting subscribers", len(b.changes), len(b.subs))

	remaining := b.subs[:0]
	for _, s := range b.subs {
		matched := matchAll(s, b.changes)
		if len(matched) == 0 {
			remaining = append(remaining, s)
			continue
		}
		b.resolve(s, Result{Matched: matched})
	}
	b.subs = remaining
	b.changes = make(map[Change]struct{})
}

func matchAll(s *Subscription, changes map[Change]struct{}) []string {
	var matched []string
	for c := range changes {
		if matches(s, c) {
			matched = append(matched, c)
		}
	}
	return matched
}

// matches implements the depth-aware path filter from the design: depth 0
// only ever fires for the subscribed path itself, depth >=1 also fires for
// anything at or below it (the whole tree, when Path is ".").
func matches(s *Subscription, c string) bool {
	if s.Depth == 0 {
		return c == s.Path
	}
	if s.Path == "." {
		return true
	}
	return c == s.Path || strings.HasPrefix(c, s.Path+"/")
}
