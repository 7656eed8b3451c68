// Package ax resolves screen coordinates to the UI element beneath them
// through the accessibility tree.
//
// The query crosses the process boundary to the window server, so the
// probe applies a hard deadline and a short coordinate cache to keep
// click bursts cheap. It must never be called from the input-tap
// thread.
package ax

import (
	"time"
)

const (
	// DefaultDeadline bounds one element query.
	DefaultDeadline = 50 * time.Millisecond
	// cacheTTL suppresses repeat probes at the same coordinate.
	cacheTTL = 100 * time.Millisecond
)

// Element describes the UI element under a point.
type Element struct {
	Role  string
	Name  string
	Value string
}

// Probe caches and deadlines element-at-position queries. It is used
// from a single goroutine (the normalizer); the cache needs no lock.
type Probe struct {
	deadline time.Duration
	query    func(x, y int32) (Element, bool)

	lastX, lastY int32
	lastEl       Element
	lastOK       bool
	lastAt       time.Time
}

// New returns a probe backed by the platform accessibility API, or nil
// when the platform has none (callers treat a nil probe as "context
// capture off").
func New() *Probe {
	q := elementAt
	if q == nil {
		return nil
	}
	return &Probe{deadline: DefaultDeadline, query: q}
}

// At resolves (x,y) to the element beneath it. Returns ok=false on
// timeout or when the element cannot be resolved; both fail silently.
func (p *Probe) At(x, y int32) (Element, bool) {
	now := time.Now()
	if x == p.lastX && y == p.lastY && now.Sub(p.lastAt) < cacheTTL {
		return p.lastEl, p.lastOK
	}

	type result struct {
		el Element
		ok bool
	}
	ch := make(chan result, 1)
	go func() {
		el, ok := p.query(x, y)
		ch <- result{el, ok}
	}()

	var el Element
	var ok bool
	timer := time.NewTimer(p.deadline)
	defer timer.Stop()
	select {
	case r := <-ch:
		el, ok = r.el, r.ok
	case <-timer.C:
		// Deadline hit: the in-flight query is abandoned; its result
		// is discarded when it eventually lands on the buffered chan.
	}

	p.lastX, p.lastY = x, y
	p.lastEl, p.lastOK = el, ok
	p.lastAt = now
	return el, ok
}
