// Package core holds the process-wide state the HTTP handlers share: the
// change bus, the watcher registry, the path mapper, and the
// client-compatibility rate limiter. It exists so that nothing in this
// server lives in a package-level var; every handler is a method on, or
// takes, a *Core.
package core

import (
	"time"

	"tdserver/lib/changebus"
	"tdserver/lib/fswatch"
	"tdserver/lib/pathmap"
	"tdserver/lib/sync"
)

// initialVoidBudget is how many consecutive SUBSCRIBE requests after
// startup (or after a real change) are forced to return immediately, to
// absorb the client's habit of firing several near-simultaneous
// SUBSCRIBEs on every PROPFIND/GET burst.
const initialVoidBudget = 4

const (
	idleGap      = 11 * time.Second
	clampCeiling = 10 * time.Second
)

// Core bundles the shared, mutable state a running server needs, in place
// of package-level globals.
type Core struct {
	Bus     *changebus.Bus
	Watcher *fswatch.Watcher
	Paths   *pathmap.Mapper

	MetaTouch    bool
	Username     string
	Password     string
	OpenInEditor bool

	mut             sync.Mutex
	voidBudget      int
	lastSubscribeAt time.Time
}

// New builds a Core rooted at root, ready to serve.
func New(root string, metaTouch bool, username, password string) *Core {
	bus := changebus.NewBus()
	return &Core{
		Bus:        bus,
		Watcher:    fswatch.New(root, bus),
		Paths:      pathmap.New(root),
		MetaTouch:  metaTouch,
		Username:   username,
		Password:   password,
		mut:        sync.NewMutex(),
		voidBudget: initialVoidBudget,
	}
}

// WithOpenInEditor enables the EDITOR verb's redirect response. Returns c
// for chaining at construction time.
func (c *Core) WithOpenInEditor(enabled bool) *Core {
	c.OpenInEditor = enabled
	return c
}

// AuthEnabled reports whether basic auth credentials are configured.
func (c *Core) AuthEnabled() bool {
	return c.Username != "" || c.Password != ""
}

// SubscribeOutcome is how the rate limiter wants the SUBSCRIBE handler to
// proceed for one incoming request.
type SubscribeOutcome struct {
	// TreatAsPropfind is set when the client has been idle long enough
	// that this SUBSCRIBE should instead be answered like a PROPFIND.
	TreatAsPropfind bool
	// Timeout is the clamped wait time to actually use.
	Timeout time.Duration
}

// RecordSubscribe applies the void-budget rate limiter described in the
// design for one incoming SUBSCRIBE. The client's own requested timeout
// plays no part in any of the three branches below; the limiter always
// has the final say.
func (c *Core) RecordSubscribe(now time.Time) SubscribeOutcome {
	c.mut.Lock()
	defer c.mut.Unlock()

	gap := now.Sub(c.lastSubscribeAt)
	c.lastSubscribeAt = now

	switch {
	case c.voidBudget > 0:
		c.voidBudget--
		return SubscribeOutcome{Timeout: 0}
	case gap >= idleGap:
		return SubscribeOutcome{TreatAsPropfind: true}
	default:
		clamp := clampCeiling - gap
		if clamp < 0 {
			clamp = 0
		}
		if clamp > clampCeiling {
			clamp = clampCeiling
		}
		return SubscribeOutcome{Timeout: clamp}
	}
}

// RestoreVoidBudget is called whenever a SUBSCRIBE resolves with a
// non-empty result: a real change is evidence the client isn't storming,
// so the budget is replenished.
func (c *Core) RestoreVoidBudget() {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.voidBudget = initialVoidBudget
}

// NoteGet is called by the GET handler: a real content fetch is also
// evidence the client is alive rather than mid-storm.
func (c *Core) NoteGet() {
	c.mut.Lock()
	defer c.mut.Unlock()
	if next := c.voidBudget - 1; next > initialVoidBudget {
		c.voidBudget = next
	} else {
		c.voidBudget = initialVoidBudget
	}
}
