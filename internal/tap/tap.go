// Package tap installs the low-level input tap and forwards raw
// pointer, scroll, and keyboard activity as bounded messages.
//
// The OS invokes the tap callback at elevated priority inside its own
// run loop; the callback builds exactly one Message and hands it off
// with a non-blocking send. When the channel is full the message is
// dropped and counted — the callback never blocks and never fails.
package tap

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ehrlich-b/mimic/internal/clock"
	"github.com/ehrlich-b/mimic/internal/event"
)

// ErrUnsupported is returned when the platform has no input tap.
var ErrUnsupported = errors.New("input tap not supported on this platform")

// ErrTapCreate is returned when the OS refuses the tap, usually for a
// missing input-monitoring grant.
var ErrTapCreate = errors.New("event tap could not be installed")

// Kind tags a raw message.
type Kind uint8

const (
	// MouseUp carries the press-release pair: the OS supplies the
	// multi-click count on the release, so clicks are reported then.
	MouseUp Kind = iota
	// MouseMove covers both free motion and drags.
	MouseMove
	// Wheel is a scroll impulse at a pointer position.
	Wheel
	// KeyDown carries the keycode, masked modifiers, and the
	// characters the current layout maps the key to (empty when the
	// key produces none).
	KeyDown
	// FlagsChanged reports a modifier state transition.
	FlagsChanged
)

// Message is the single bounded allocation a tap callback may make.
type Message struct {
	T      uint64 // session-relative ms, stamped in the callback
	Kind   Kind
	X, Y   int32
	Button event.Button
	Clicks uint8
	DX, DY int32
	Code   uint16
	Chars  string
	Mods   event.Mod
}

// Tap owns the dedicated run-loop thread and the raw message channel.
type Tap struct {
	clk     *clock.Clock
	ch      chan Message
	dropped atomic.Uint64
	stop    func()
}

// New prepares a tap delivering into a channel of the given depth.
func New(clk *clock.Clock, depth int) *Tap {
	if depth <= 0 {
		depth = 1024
	}
	return &Tap{clk: clk, ch: make(chan Message, depth)}
}

// Messages is the raw stream consumed by the normalizer. It is closed
// after Stop once the run loop has wound down.
func (t *Tap) Messages() <-chan Message {
	return t.ch
}

// Dropped reports messages discarded because the channel was full.
func (t *Tap) Dropped() uint64 {
	return t.dropped.Load()
}

// send is the only path out of the callback.
func (t *Tap) send(m Message) {
	select {
	case t.ch <- m:
	default:
		t.dropped.Add(1)
	}
}

// Start installs the tap on its own run-loop thread. It returns once
// the tap is live; the context cancels it, as does Stop.
func (t *Tap) Start(ctx context.Context) error {
	return t.start(ctx)
}

// Stop uninstalls the tap and closes the message channel. Safe to call
// more than once; returns after the run loop has exited.
func (t *Tap) Stop() {
	if t.stop != nil {
		t.stop()
	}
}
