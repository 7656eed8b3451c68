package clip

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ehrlich-b/mimic/internal/clock"
	"github.com/ehrlich-b/mimic/internal/event"
)

type fakePasteboard struct {
	mu   sync.Mutex
	seq  int
	text string
	ok   bool
}

func (f *fakePasteboard) ChangeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

func (f *fakePasteboard) ReadString() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, f.ok
}

func (f *fakePasteboard) write(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.text = s
	f.ok = true
}

func (f *fakePasteboard) writeBinary() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.text = ""
	f.ok = false
}

func startObserver(t *testing.T, pb pasteboard) (*Observer, context.CancelFunc) {
	t.Helper()
	o := newObserver(clock.New(), time.Millisecond, pb)
	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	return o, cancel
}

func nextEvent(t *testing.T, o *Observer) event.Event {
	t.Helper()
	select {
	case e := <-o.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no clipboard event")
		return event.Event{}
	}
}

func TestCopyChordClassifiesBump(t *testing.T) {
	pb := &fakePasteboard{}
	o, cancel := startObserver(t, pb)
	defer cancel()

	o.NoteChord(event.OpCopy)
	time.Sleep(10 * time.Millisecond) // let the chord reach the ring
	pb.write("copied text")

	e := nextEvent(t, o)
	if e.Op != event.OpCopy || e.Preview != "copied text" {
		t.Errorf("event = %+v, want copy with preview", e)
	}
}

func TestCutChordClassifiesBump(t *testing.T) {
	pb := &fakePasteboard{}
	o, cancel := startObserver(t, pb)
	defer cancel()

	o.NoteChord(event.OpCut)
	time.Sleep(10 * time.Millisecond)
	pb.write("cut text")

	e := nextEvent(t, o)
	if e.Op != event.OpCut {
		t.Errorf("op = %q, want %q", e.Op, event.OpCut)
	}
}

func TestPasteChordEmitsWithoutBump(t *testing.T) {
	pb := &fakePasteboard{text: "stored", ok: true}
	o, cancel := startObserver(t, pb)
	defer cancel()

	o.NoteChord(event.OpPaste)

	e := nextEvent(t, o)
	if e.Op != event.OpPaste || e.Preview != "stored" {
		t.Errorf("event = %+v, want paste of stored contents", e)
	}
}

func TestExternalBumpIsCopyWithEmptyPreview(t *testing.T) {
	pb := &fakePasteboard{}
	o, cancel := startObserver(t, pb)
	defer cancel()

	time.Sleep(10 * time.Millisecond) // let Run take its baseline sequence number
	pb.write("someone else wrote this")

	e := nextEvent(t, o)
	if e.Op != event.OpCopy || e.Preview != "" {
		t.Errorf("event = %+v, want copy with empty preview", e)
	}
}

func TestBinaryContentEmptyPreview(t *testing.T) {
	pb := &fakePasteboard{}
	o, cancel := startObserver(t, pb)
	defer cancel()

	o.NoteChord(event.OpCopy)
	time.Sleep(10 * time.Millisecond)
	pb.writeBinary()

	e := nextEvent(t, o)
	if e.Preview != "" {
		t.Errorf("preview = %q, want empty for binary contents", e.Preview)
	}
}

func TestPreviewTruncated(t *testing.T) {
	pb := &fakePasteboard{}
	o, cancel := startObserver(t, pb)
	defer cancel()

	o.NoteChord(event.OpCopy)
	time.Sleep(10 * time.Millisecond)
	pb.write(strings.Repeat("a", 1000))

	e := nextEvent(t, o)
	if len(e.Preview) != event.MaxStringScalars {
		t.Errorf("preview length = %d, want %d", len(e.Preview), event.MaxStringScalars)
	}
}
