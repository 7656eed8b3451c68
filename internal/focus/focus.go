// Package focus watches the frontmost application and its focused
// window title.
//
// Polling is deliberate: window-title changes are not reliably
// notified, and a 100 ms cadence bounds detection latency to roughly
// one human reaction time.
package focus

import (
	"context"
	"errors"
	"time"

	"github.com/ehrlich-b/mimic/internal/clock"
	"github.com/ehrlich-b/mimic/internal/event"
)

// ErrUnsupported is returned when the platform has no frontmost query.
var ErrUnsupported = errors.New("focus observation not supported on this platform")

// DefaultInterval is the poll cadence.
const DefaultInterval = 100 * time.Millisecond

// Snapshot is one reading of the frontmost application.
type Snapshot struct {
	Name  string
	PID   int32
	Title string
}

// Observer polls the frontmost query and emits app/window events.
type Observer struct {
	clk      *clock.Clock
	interval time.Duration
	front    func() (Snapshot, bool)
	ch       chan event.Event
}

// New returns an observer backed by the platform frontmost query.
func New(clk *clock.Clock, interval time.Duration) (*Observer, error) {
	if frontmost == nil {
		return nil, ErrUnsupported
	}
	return newObserver(clk, interval, frontmost), nil
}

func newObserver(clk *clock.Clock, interval time.Duration, front func() (Snapshot, bool)) *Observer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Observer{
		clk:      clk,
		interval: interval,
		front:    front,
		ch:       make(chan event.Event, 64),
	}
}

// Events carries app and window changes; closed when the observer stops.
func (o *Observer) Events() <-chan event.Event {
	return o.ch
}

// Run polls until the context is cancelled, then closes the event
// channel. The initial snapshot emits both an app and a window event.
func (o *Observer) Run(ctx context.Context) {
	defer close(o.ch)

	var last Snapshot
	var seeded bool
	emit := func(e event.Event) {
		select {
		case o.ch <- e:
		case <-ctx.Done():
		}
	}

	check := func() {
		snap, ok := o.front()
		if !ok {
			return
		}
		switch {
		case !seeded:
			seeded = true
			emit(event.NewApp(o.clk.Now(), snap.Name, snap.PID))
			emit(event.NewWindow(o.clk.Now(), snap.Name, snap.Title))
		case snap.PID != last.PID:
			// App switch: the window focus necessarily moved with it.
			emit(event.NewApp(o.clk.Now(), snap.Name, snap.PID))
			emit(event.NewWindow(o.clk.Now(), snap.Name, snap.Title))
		case snap.Title != last.Title:
			// Same app, new window title; no app re-emit on pid match.
			emit(event.NewWindow(o.clk.Now(), snap.Name, snap.Title))
		}
		last = snap
	}

	check()
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
