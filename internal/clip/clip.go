// Package clip detects clipboard activity by fusing pasteboard
// sequence-number bumps with recently observed keyboard chords.
//
// The pasteboard API cannot distinguish copy from cut, and paste does
// not bump the sequence number at all, so neither signal is sufficient
// alone: a bump is classified by the chord that preceded it, and a
// paste chord is reported directly.
package clip

import (
	"context"
	"errors"
	"time"

	"github.com/ehrlich-b/mimic/internal/clock"
	"github.com/ehrlich-b/mimic/internal/event"
)

// ErrUnsupported is returned when the platform has no pasteboard access.
var ErrUnsupported = errors.New("clipboard observation not supported on this platform")

const (
	// DefaultInterval is the sequence-number sample cadence.
	DefaultInterval = 100 * time.Millisecond
	// chordWindow is how far back a chord may correlate with a bump.
	chordWindow = 500 * time.Millisecond
)

// pasteboard is the platform seam.
type pasteboard interface {
	// ChangeCount returns the OS sequence number, which increments on
	// every pasteboard write.
	ChangeCount() int
	// ReadString returns the current text content; ok is false for
	// binary or empty contents.
	ReadString() (string, bool)
}

type chord struct {
	op string
	at time.Time
}

// Observer samples the pasteboard and owns the recent-chord ring. The
// normalizer reports copy/cut/paste chords through NoteChord; all ring
// state is confined to the Run goroutine.
type Observer struct {
	clk      *clock.Clock
	interval time.Duration
	pb       pasteboard
	chords   chan chord
	ch       chan event.Event
}

// New returns an observer over the platform pasteboard.
func New(clk *clock.Clock, interval time.Duration) (*Observer, error) {
	pb := newPasteboard()
	if pb == nil {
		return nil, ErrUnsupported
	}
	return newObserver(clk, interval, pb), nil
}

func newObserver(clk *clock.Clock, interval time.Duration, pb pasteboard) *Observer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Observer{
		clk:      clk,
		interval: interval,
		pb:       pb,
		chords:   make(chan chord, 16),
		ch:       make(chan event.Event, 64),
	}
}

// NoteChord records a cmd+C/X/V key-down. Non-blocking: a full queue
// simply forgets the chord, which degrades a later bump to op=c.
func (o *Observer) NoteChord(op string) {
	select {
	case o.chords <- chord{op: op, at: time.Now()}:
	default:
	}
}

// Events carries clipboard events; closed when the observer stops.
func (o *Observer) Events() <-chan event.Event {
	return o.ch
}

// Run samples until the context is cancelled, then closes the event
// channel.
func (o *Observer) Run(ctx context.Context) {
	defer close(o.ch)

	lastSeq := o.pb.ChangeCount()
	var ring []chord

	emit := func(op, preview string) {
		e := event.NewClipboard(o.clk.Now(), op, event.TruncateScalars(preview, event.MaxStringScalars))
		select {
		case o.ch <- e:
		case <-ctx.Done():
		}
	}

	preview := func() string {
		s, ok := o.pb.ReadString()
		if !ok {
			return ""
		}
		return s
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-o.chords:
			if c.op == event.OpPaste {
				// Paste never bumps the sequence number; the chord is
				// the whole signal.
				emit(event.OpPaste, preview())
				continue
			}
			ring = append(ring, c)
		case <-ticker.C:
			seq := o.pb.ChangeCount()
			if seq == lastSeq {
				ring = prune(ring, time.Now())
				continue
			}
			lastSeq = seq

			ring = prune(ring, time.Now())
			op := event.OpCopy
			matched := false
			for i := len(ring) - 1; i >= 0; i-- {
				if ring[i].op == event.OpCopy || ring[i].op == event.OpCut {
					op = ring[i].op
					ring = append(ring[:i], ring[i+1:]...)
					matched = true
					break
				}
			}
			if matched {
				emit(op, preview())
			} else {
				// External mutation: best effort, no preview.
				emit(event.OpCopy, "")
			}
		}
	}
}

func prune(ring []chord, now time.Time) []chord {
	keep := ring[:0]
	for _, c := range ring {
		if now.Sub(c.at) <= chordWindow {
			keep = append(keep, c)
		}
	}
	return keep
}
