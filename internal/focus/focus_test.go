package focus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ehrlich-b/mimic/internal/clock"
	"github.com/ehrlich-b/mimic/internal/event"
)

// fakeFront serves scripted snapshots, then repeats the last one.
type fakeFront struct {
	mu    sync.Mutex
	snaps []Snapshot
	i     int
}

func (f *fakeFront) next() (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snaps) == 0 {
		return Snapshot{}, false
	}
	s := f.snaps[f.i]
	if f.i < len(f.snaps)-1 {
		f.i++
	}
	return s, true
}

func collect(t *testing.T, o *Observer, want int) []event.Event {
	t.Helper()
	var got []event.Event
	deadline := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case e, ok := <-o.Events():
			if !ok {
				t.Fatalf("stream ended after %d events, want %d", len(got), want)
			}
			got = append(got, e)
		case <-deadline:
			t.Fatalf("timed out after %d events, want %d", len(got), want)
		}
	}
	return got
}

func TestInitialSnapshotEmitsBoth(t *testing.T) {
	f := &fakeFront{snaps: []Snapshot{{Name: "Safari", PID: 7, Title: "Start"}}}
	o := newObserver(clock.New(), time.Millisecond, f.next)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	got := collect(t, o, 2)
	if got[0].Type != event.App || got[0].App != "Safari" || got[0].PID != 7 {
		t.Errorf("first event = %+v, want app Safari/7", got[0])
	}
	if got[1].Type != event.Window || got[1].Title != "Start" {
		t.Errorf("second event = %+v, want window Start", got[1])
	}
}

func TestAppChangeEmitsAppAndWindow(t *testing.T) {
	f := &fakeFront{snaps: []Snapshot{
		{Name: "Safari", PID: 7, Title: "Start"},
		{Name: "Terminal", PID: 9, Title: "zsh"},
	}}
	o := newObserver(clock.New(), time.Millisecond, f.next)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	got := collect(t, o, 4)
	if got[2].Type != event.App || got[2].PID != 9 {
		t.Errorf("event 2 = %+v, want app Terminal/9", got[2])
	}
	if got[3].Type != event.Window || got[3].Title != "zsh" {
		t.Errorf("event 3 = %+v, want window zsh", got[3])
	}
}

func TestTitleChangeEmitsWindowOnly(t *testing.T) {
	f := &fakeFront{snaps: []Snapshot{
		{Name: "Safari", PID: 7, Title: "Start"},
		{Name: "Safari", PID: 7, Title: "Docs"},
	}}
	o := newObserver(clock.New(), time.Millisecond, f.next)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	got := collect(t, o, 3)
	if got[2].Type != event.Window || got[2].Title != "Docs" {
		t.Errorf("event 2 = %+v, want window Docs", got[2])
	}

	// No app event may follow for a same-pid title change.
	select {
	case e, ok := <-o.Events():
		if ok && e.Type == event.App {
			t.Errorf("unexpected app event %+v for same-pid title change", e)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunClosesChannelOnCancel(t *testing.T) {
	f := &fakeFront{snaps: []Snapshot{{Name: "Safari", PID: 7}}}
	o := newObserver(clock.New(), time.Millisecond, f.next)
	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	collect(t, o, 2)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-o.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after cancel")
		}
	}
}
