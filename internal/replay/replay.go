// Package replay re-synthesizes a recorded workflow as OS input,
// preserving inter-event spacing scaled by a speed factor.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ehrlich-b/mimic/internal/event"
)

// ErrBadSpeed rejects a non-positive speed factor.
var ErrBadSpeed = errors.New("replay speed must be strictly positive")

// Synthesizer posts equivalent input events to the OS. Implementations
// live per platform; tests substitute a recorder mock.
type Synthesizer interface {
	// Warp moves the pointer to (x,y).
	Warp(x, y int32) error
	// Click posts a down+up pair with the given button, multi-click
	// count, and modifiers.
	Click(x, y int32, button event.Button, clicks uint8, mods event.Mod) error
	// Scroll posts a wheel impulse at (x,y).
	Scroll(x, y, dx, dy int32) error
	// Key posts a key down+up with modifiers.
	Key(code uint16, mods event.Mod) error
	// Text types a string, scalar by scalar, through the current
	// layout (with whatever fallback the platform supports).
	Text(s string) error
}

// Options configures a replay run.
type Options struct {
	// Speed scales playback; 1.0 is real time, 2.0 twice as fast.
	// Zero means the default of 1.0.
	Speed float64
}

// Run plays the events against the synthesizer. Each event is due at
// P0 + t/speed on the monotonic clock; the loop sleeps until then,
// checking the context before every sleep. Synthesis failures are
// logged (throttled) and playback continues; cancellation returns the
// context's error.
func Run(ctx context.Context, events []event.Event, syn Synthesizer, opts Options) error {
	speed := opts.Speed
	if speed == 0 {
		speed = 1.0
	}
	if speed < 0 {
		return fmt.Errorf("%w: %v", ErrBadSpeed, opts.Speed)
	}

	start := time.Now()
	errLog := rate.NewLimiter(rate.Every(time.Second), 1)

	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		due := start.Add(time.Duration(float64(e.T) / speed * float64(time.Millisecond)))
		if d := time.Until(due); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if err := synthesize(syn, e); err != nil {
			if errLog.Allow() {
				log.Warn().Err(err).Str("event", string(e.Type)).Uint64("t", e.T).
					Msg("synthesis failed, continuing")
			}
		}
	}
	return nil
}

// synthesize posts one event. Observational tags (app, window,
// clipboard, context) have no synthesis: a recorded paste was already
// expressed as its chord.
func synthesize(syn Synthesizer, e event.Event) error {
	switch e.Type {
	case event.Move:
		return syn.Warp(e.X, e.Y)
	case event.Click:
		return syn.Click(e.X, e.Y, e.Button, e.Clicks, e.Mods)
	case event.Scroll:
		return syn.Scroll(e.X, e.Y, e.DX, e.DY)
	case event.Key:
		return syn.Key(e.Keycode, e.Mods)
	case event.Text:
		return syn.Text(e.Text)
	default:
		return nil
	}
}
