package normalize

import (
	"testing"
	"time"

	"github.com/ehrlich-b/mimic/internal/ax"
	"github.com/ehrlich-b/mimic/internal/bus"
	"github.com/ehrlich-b/mimic/internal/event"
	"github.com/ehrlich-b/mimic/internal/tap"
)

// run feeds the tap messages through a normalizer and returns the full
// published stream.
func run(t *testing.T, opts Options, msgs []tap.Message) []event.Event {
	t.Helper()
	taps := make(chan tap.Message, len(msgs))
	for _, m := range msgs {
		taps <- m
	}
	close(taps)
	opts.Taps = taps

	b := bus.New(256)
	opts.Out = b
	sink := make(chan []event.Event)
	go func() {
		var got []event.Event
		for e := range b.Sink() {
			got = append(got, e)
		}
		sink <- got
	}()

	n := New(opts)
	go n.Run()
	select {
	case <-n.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("normalizer never finished")
	}
	b.Close()
	return <-sink
}

func key(t uint64, code uint16, chars string, mods event.Mod) tap.Message {
	return tap.Message{T: t, Kind: tap.KeyDown, Code: code, Chars: chars, Mods: mods}
}

func TestDoubleClick(t *testing.T) {
	got := run(t, Options{}, []tap.Message{
		{T: 10, Kind: tap.MouseUp, X: 100, Y: 100, Button: event.ButtonLeft, Clicks: 1},
		{T: 180, Kind: tap.MouseUp, X: 100, Y: 100, Button: event.ButtonLeft, Clicks: 2},
	})
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	for i, want := range []uint8{1, 2} {
		e := got[i]
		if e.Type != event.Click || e.X != 100 || e.Y != 100 || e.Button != event.ButtonLeft || e.Clicks != want || e.Mods != 0 {
			t.Errorf("event %d = %+v, want click clicks=%d", i, e, want)
		}
	}
}

func TestTextAggregation(t *testing.T) {
	got := run(t, Options{}, []tap.Message{
		key(0, 4, "h", 0),
		key(10, 34, "i", 0),
		key(20, 49, " ", 0),
		key(30, 16, "y", 0),
		key(40, 31, "o", 0),
		key(50, 32, "u", 0),
		{T: 60, Kind: tap.MouseMove, X: 200, Y: 200},
	})
	if len(got) != 2 {
		t.Fatalf("got %d events, want text+move: %+v", len(got), got)
	}
	if got[0].Type != event.Text || got[0].Text != "hi you" {
		t.Errorf("first = %+v, want text %q", got[0], "hi you")
	}
	if got[1].Type != event.Move || got[1].X != 200 || got[1].Y != 200 {
		t.Errorf("second = %+v, want move 200,200", got[1])
	}
}

func TestShortcutProducesKeyNotText(t *testing.T) {
	var chords []string
	got := run(t, Options{
		NoteChord: func(op string) { chords = append(chords, op) },
	}, []tap.Message{
		{T: 0, Kind: tap.FlagsChanged, Mods: event.ModCommand},
		key(5, 8, "c", event.ModCommand),
		{T: 20, Kind: tap.FlagsChanged, Mods: 0},
	})
	if len(got) != 1 || got[0].Type != event.Key || got[0].Keycode != 8 || got[0].Mods != event.ModCommand {
		t.Fatalf("got %+v, want a single key event for cmd+c", got)
	}
	for _, e := range got {
		if e.Type == event.Text {
			t.Errorf("text event leaked from shortcut: %+v", e)
		}
	}
	if len(chords) != 1 || chords[0] != event.OpCopy {
		t.Errorf("chords = %v, want [c]", chords)
	}
}

func TestMoveCoalescing(t *testing.T) {
	msgs := make([]tap.Message, 0, 100)
	for i := 0; i < 100; i++ {
		msgs = append(msgs, tap.Message{T: uint64(i / 10), Kind: tap.MouseMove, X: int32(400 + i), Y: int32(400 + i)})
	}
	msgs[99].X, msgs[99].Y = 500, 500
	got := run(t, Options{}, msgs)

	if len(got) != 1 {
		t.Fatalf("got %d move events, want 1", len(got))
	}
	if got[0].X != 500 || got[0].Y != 500 {
		t.Errorf("move = (%d,%d), want the latest position (500,500)", got[0].X, got[0].Y)
	}
}

func TestBackspaceEditsBuffer(t *testing.T) {
	got := run(t, Options{}, []tap.Message{
		key(0, 4, "h", 0),
		key(10, 34, "i", 0),
		key(20, 51, "", 0), // backspace removes "i"
		{T: 30, Kind: tap.MouseUp, X: 1, Y: 1, Button: event.ButtonLeft, Clicks: 1},
	})
	if len(got) != 2 {
		t.Fatalf("got %d events, want text+click: %+v", len(got), got)
	}
	if got[0].Type != event.Text || got[0].Text != "h" {
		t.Errorf("text = %+v, want %q", got[0], "h")
	}
}

func TestBackspaceOnEmptyBufferIsKey(t *testing.T) {
	got := run(t, Options{}, []tap.Message{
		key(5, 51, "", 0),
	})
	if len(got) != 1 || got[0].Type != event.Key || got[0].Keycode != 51 {
		t.Fatalf("got %+v, want a single backspace key event", got)
	}
}

func TestTextFlushOnStop(t *testing.T) {
	got := run(t, Options{}, []tap.Message{
		key(0, 4, "h", 0),
		key(10, 34, "i", 0),
	})
	if len(got) != 1 || got[0].Type != event.Text || got[0].Text != "hi" {
		t.Fatalf("got %+v, want residual text flushed at stop", got)
	}
}

func TestTextFlushOnIdle(t *testing.T) {
	taps := make(chan tap.Message)
	b := bus.New(16)
	sink := make(chan event.Event, 16)
	go func() {
		for e := range b.Sink() {
			sink <- e
		}
	}()
	n := New(Options{Taps: taps, Out: b})
	go n.Run()

	taps <- key(0, 4, "h", 0)
	select {
	case e := <-sink:
		if e.Type != event.Text || e.Text != "h" {
			t.Errorf("idle flush = %+v, want text %q", e, "h")
		}
	case <-time.After(3 * time.Second):
		t.Error("idle timer never flushed the text run")
	}
	close(taps)
	<-n.Done()
	b.Close()
}

func TestMonotonicTimestamps(t *testing.T) {
	got := run(t, Options{}, []tap.Message{
		{T: 100, Kind: tap.MouseUp, X: 1, Y: 1, Button: event.ButtonLeft, Clicks: 1},
		{T: 100, Kind: tap.MouseUp, X: 2, Y: 2, Button: event.ButtonLeft, Clicks: 1},
		{T: 50, Kind: tap.Wheel, X: 3, Y: 3, DY: 1}, // raw clock tie/regression
	})
	var last uint64
	for i, e := range got {
		if i > 0 && e.T <= last {
			t.Fatalf("event %d t=%d not strictly after %d", i, e.T, last)
		}
		last = e.T
	}
}

func TestContextFollowsClick(t *testing.T) {
	probe := ax.NewForTest(func(x, y int32) (ax.Element, bool) {
		return ax.Element{Role: "AXButton", Name: "OK"}, true
	})
	got := run(t, Options{Probe: probe}, []tap.Message{
		{T: 10, Kind: tap.MouseUp, X: 30, Y: 40, Button: event.ButtonLeft, Clicks: 1},
		{T: 50, Kind: tap.Wheel, X: 0, Y: 0, DY: -1},
	})
	if len(got) != 3 {
		t.Fatalf("got %d events, want click+context+scroll: %+v", len(got), got)
	}
	if got[0].Type != event.Click {
		t.Fatalf("first = %+v, want click", got[0])
	}
	ctx := got[1]
	if ctx.Type != event.Context || ctx.Role != "AXButton" {
		t.Fatalf("second = %+v, want context", ctx)
	}
	if ctx.T != got[0].T+1 {
		t.Errorf("context t=%d, want click t+1=%d", ctx.T, got[0].T+1)
	}
}

func TestProbeTimeoutOmitsContext(t *testing.T) {
	probe := ax.NewForTest(func(x, y int32) (ax.Element, bool) {
		time.Sleep(200 * time.Millisecond)
		return ax.Element{}, true
	})
	got := run(t, Options{Probe: probe}, []tap.Message{
		{T: 10, Kind: tap.MouseUp, X: 30, Y: 40, Button: event.ButtonLeft, Clicks: 1},
	})
	if len(got) != 1 || got[0].Type != event.Click {
		t.Fatalf("got %+v, want the bare click", got)
	}
}
