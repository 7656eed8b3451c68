package recorder

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ehrlich-b/mimic/internal/clock"
	"github.com/ehrlich-b/mimic/internal/event"
	"github.com/ehrlich-b/mimic/internal/perm"
	"github.com/ehrlich-b/mimic/internal/tap"
)

// fakeTap pumps scripted messages through; like the real tap, its
// message channel only closes once input has quiesced, so tests call
// finish before Stop.
type fakeTap struct {
	in   chan tap.Message
	out  chan tap.Message
	once sync.Once
}

func newFakeTap() *fakeTap {
	return &fakeTap{in: make(chan tap.Message, 4096), out: make(chan tap.Message, 64)}
}

func (f *fakeTap) Start(ctx context.Context) error {
	go func() {
		defer close(f.out)
		for m := range f.in {
			f.out <- m
		}
	}()
	return nil
}

func (f *fakeTap) Stop()                        {}
func (f *fakeTap) Messages() <-chan tap.Message { return f.out }
func (f *fakeTap) Dropped() uint64              { return 0 }

func (f *fakeTap) send(m tap.Message) { f.in <- m }

func (f *fakeTap) finish() { f.once.Do(func() { close(f.in) }) }

type fakeObserver struct {
	ch chan event.Event
}

func (f *fakeObserver) Run(ctx context.Context) {
	<-ctx.Done()
	close(f.ch)
}
func (f *fakeObserver) Events() <-chan event.Event { return f.ch }
func (f *fakeObserver) NoteChord(op string)        {}

// newTestRecorder wires fakes in place of the OS-backed producers.
func newTestRecorder(opts Options) (*Recorder, *fakeTap) {
	ft := newFakeTap()
	r := New(opts)
	r.checkPerm = func() perm.Report {
		return perm.Report{Accessibility: true, InputMonitoring: true}
	}
	r.newTap = func(clk *clock.Clock) inputTap { return ft }
	r.newFocus = func(clk *clock.Clock) (focusObserver, error) {
		return &fakeObserver{ch: make(chan event.Event)}, nil
	}
	r.newClip = func(clk *clock.Clock) (clipObserver, error) {
		return &fakeObserver{ch: make(chan event.Event)}, nil
	}
	r.newProbe = nil
	return r, ft
}

func TestStartStopLifecycle(t *testing.T) {
	var sink bytes.Buffer
	r, ft := newTestRecorder(Options{Name: "demo", Sink: &sink})

	w, err := r.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if w.Name != "demo" || w.ID == "" {
		t.Errorf("workflow = %+v", w)
	}

	if _, err := r.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	ft.send(tap.Message{T: 5, Kind: tap.MouseUp, X: 1, Y: 2, Button: event.ButtonLeft, Clicks: 1})
	ft.send(tap.Message{T: 20, Kind: tap.KeyDown, Code: 4, Chars: "h"})
	ft.finish()

	stats, err := r.Stop(w)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// The click plus the text run flushed at stop.
	if stats.Events != 2 {
		t.Errorf("stats.Events = %d, want 2", stats.Events)
	}
	if len(w.Events) != 2 {
		t.Fatalf("workflow has %d events, want 2: %+v", len(w.Events), w.Events)
	}
	if w.Events[0].Type != event.Click || w.Events[1].Type != event.Text {
		t.Errorf("sequence = %v, %v", w.Events[0].Type, w.Events[1].Type)
	}

	// The sink holds one encoded line per event.
	lines := strings.Split(strings.TrimRight(sink.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("sink has %d lines, want 2:\n%s", len(lines), sink.String())
	}

	// Idempotent stop returns the same stats.
	again, err := r.Stop(w)
	if err != nil || again != stats {
		t.Errorf("second Stop = %+v, %v; want identical result", again, err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	r, _ := newTestRecorder(Options{Sink: &bytes.Buffer{}})
	if _, err := r.Stop(&Workflow{}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop = %v, want ErrNotRunning", err)
	}
}

func TestPermissionDenied(t *testing.T) {
	r, _ := newTestRecorder(Options{Sink: &bytes.Buffer{}})
	r.checkPerm = func() perm.Report { return perm.Report{} }
	if _, err := r.Start(); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Start = %v, want ErrPermissionDenied", err)
	}
}

func TestStreamObservesEndAfterStop(t *testing.T) {
	r, ft := newTestRecorder(Options{Sink: &bytes.Buffer{}})
	sub := r.Stream() // subscribed before start

	w, err := r.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ft.send(tap.Message{T: 1, Kind: tap.MouseUp, X: 0, Y: 0, Button: event.ButtonLeft, Clicks: 1})
	ft.finish()
	if _, err := r.Stop(w); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	var got []event.Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				if len(got) != 1 {
					t.Errorf("stream saw %d events, want 1", len(got))
				}
				return
			}
			got = append(got, e)
		case <-deadline:
			t.Fatal("stream never observed end-of-stream after Stop")
		}
	}
}

func TestDrainIsIncremental(t *testing.T) {
	r, ft := newTestRecorder(Options{Sink: &bytes.Buffer{}})
	w, err := r.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	ft.send(tap.Message{T: 1, Kind: tap.MouseUp, X: 0, Y: 0, Button: event.ButtonLeft, Clicks: 1})
	waitFor(t, func() bool {
		r.Drain(w)
		return len(w.Events) == 1
	})

	ft.send(tap.Message{T: 9, Kind: tap.Wheel, X: 0, Y: 0, DY: 3})
	ft.finish()
	if _, err := r.Stop(w); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(w.Events) != 2 {
		t.Errorf("workflow has %d events after stop, want 2", len(w.Events))
	}
}

func TestSinkErrorSurfacesFromStop(t *testing.T) {
	r, ft := newTestRecorder(Options{Sink: failWriter{}})
	w, err := r.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Enough events to push the buffered writer through to the
	// failing disk.
	for i := 0; i < 2000; i++ {
		ft.send(tap.Message{T: uint64(i), Kind: tap.MouseUp, X: 1, Y: 1, Button: event.ButtonLeft, Clicks: 1})
	}
	ft.finish()
	if _, err := r.Stop(w); err == nil {
		t.Error("Stop should surface the sink write failure")
	}
}

func TestSinkKeepsEveryEventUnderLoad(t *testing.T) {
	var sink bytes.Buffer
	r, ft := newTestRecorder(Options{Name: "burst", Sink: &sink})
	w, err := r.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 1000
	for i := 0; i < n; i++ {
		ft.send(tap.Message{T: uint64(i), Kind: tap.Wheel, X: int32(i), Y: 0, DY: 1})
	}
	ft.finish()
	stats, err := r.Stop(w)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stats.Events != n {
		t.Errorf("stats.Events = %d, want %d", stats.Events, n)
	}

	lines := strings.Split(strings.TrimRight(sink.String(), "\n"), "\n")
	if len(lines) != n {
		t.Fatalf("sink holds %d lines, want %d", len(lines), n)
	}
	// The file is exactly the concatenation of the encoded lines.
	size := 0
	for _, l := range lines {
		size += len(l) + 1
	}
	if size != sink.Len() {
		t.Errorf("sink size %d != sum of line lengths %d", sink.Len(), size)
	}
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never reached")
}
