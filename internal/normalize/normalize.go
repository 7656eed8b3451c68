// Package normalize fuses the raw producer streams into the single
// typed event stream.
//
// The normalizer is the stream's only writer: it aggregates printable
// keystrokes into text runs, coalesces pointer motion, attaches UI
// context to clicks, and bumps timestamps so the output is strictly
// monotonic even when raw events share a millisecond.
package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/ehrlich-b/mimic/internal/ax"
	"github.com/ehrlich-b/mimic/internal/bus"
	"github.com/ehrlich-b/mimic/internal/event"
	"github.com/ehrlich-b/mimic/internal/tap"
)

const (
	// textIdleFlush ends a text run after this much keyboard quiet.
	textIdleFlush = 500 * time.Millisecond
	// textMaxScalars caps a single text run.
	textMaxScalars = 1024
	// moveWindow is the pointer-motion coalescing window.
	moveWindow = 16 * time.Millisecond

	// backspaceKeycode is the hardware delete key.
	backspaceKeycode = 51
)

// textMods are the modifiers that still produce text: shift and caps
// shape characters, anything else makes the press a shortcut.
const textMods = event.ModShift | event.ModCaps

// Normalizer drains the producers and publishes to the bus.
type Normalizer struct {
	taps  <-chan tap.Message
	focus <-chan event.Event
	clips <-chan event.Event

	probe     *ax.Probe
	noteChord func(op string)
	out       *bus.Bus

	lastT   uint64
	emitted bool

	textBuf []rune
	textT   uint64

	pending *event.Event

	done chan struct{}
}

// Options wires a normalizer. Probe and NoteChord may be nil.
type Options struct {
	Taps      <-chan tap.Message
	Focus     <-chan event.Event
	Clips     <-chan event.Event
	Probe     *ax.Probe
	NoteChord func(op string)
	Out       *bus.Bus
}

func New(opts Options) *Normalizer {
	return &Normalizer{
		taps:      opts.Taps,
		focus:     opts.Focus,
		clips:     opts.Clips,
		probe:     opts.Probe,
		noteChord: opts.NoteChord,
		out:       opts.Out,
		done:      make(chan struct{}),
	}
}

// Done is closed once Run has flushed and returned.
func (n *Normalizer) Done() <-chan struct{} {
	return n.done
}

// Run consumes until every input channel has closed, flushes the
// residual text buffer and parked motion, and returns.
func (n *Normalizer) Run() {
	defer close(n.done)

	idle := time.NewTimer(textIdleFlush)
	idle.Stop()
	moveT := time.NewTimer(moveWindow)
	moveT.Stop()
	defer idle.Stop()
	defer moveT.Stop()

	taps, focus, clips := n.taps, n.focus, n.clips
	for taps != nil || focus != nil || clips != nil {
		select {
		case m, ok := <-taps:
			if !ok {
				taps = nil
				continue
			}
			n.handleTap(m, idle, moveT)
		case e, ok := <-focus:
			if !ok {
				focus = nil
				continue
			}
			n.interrupt()
			n.emit(e)
		case e, ok := <-clips:
			if !ok {
				clips = nil
				continue
			}
			n.interrupt()
			n.emit(e)
		case <-idle.C:
			n.flushText()
		case <-moveT.C:
			n.flushMove()
		}
	}

	// Session stop: trigger (d) for the text buffer, and the motion
	// window closes for good.
	n.flushMove()
	n.flushText()
}

// interrupt fires the "non-text event intervenes" triggers: parked
// motion first (it happened earlier), then the text run.
func (n *Normalizer) interrupt() {
	n.flushMove()
	n.flushText()
}

func (n *Normalizer) handleTap(m tap.Message, idle, moveT *time.Timer) {
	switch m.Kind {
	case tap.MouseMove:
		n.handleMove(m, moveT)
	case tap.MouseUp:
		n.interrupt()
		click := event.NewClick(m.T, m.X, m.Y, m.Button, m.Clicks, m.Mods)
		n.emit(click)
		n.attachContext(m.X, m.Y)
	case tap.Wheel:
		n.interrupt()
		n.emit(event.NewScroll(m.T, m.X, m.Y, m.DX, m.DY))
	case tap.KeyDown:
		n.handleKey(m, idle)
	case tap.FlagsChanged:
		// Modifier transitions carry no event of their own and do not
		// end a text run (shift goes down mid-word).
	}
}

// handleMove parks the newest position; the first motion in a window
// arms the flush timer, so each 16 ms window emits exactly one move at
// the latest position when it closes.
func (n *Normalizer) handleMove(m tap.Message, moveT *time.Timer) {
	// Motion is a non-text event: it ends any pending text run.
	if len(n.textBuf) > 0 {
		n.interrupt()
	}
	e := event.NewMove(m.T, m.X, m.Y)
	armed := n.pending != nil
	n.pending = &e
	if !armed {
		resetTimer(moveT, moveWindow)
	}
}

func (n *Normalizer) flushMove() {
	if n.pending == nil {
		return
	}
	e := *n.pending
	n.pending = nil
	n.emit(e)
}

func (n *Normalizer) handleKey(m tap.Message, idle *time.Timer) {
	// A key press is a non-move event: parked motion goes out first.
	n.flushMove()

	if m.Mods&event.ModCommand != 0 {
		if op := chordOp(m.Chars); op != "" && n.noteChord != nil {
			n.noteChord(op)
		}
	}

	if m.Code == backspaceKeycode && m.Mods&^textMods == 0 {
		if len(n.textBuf) > 0 {
			n.textBuf = n.textBuf[:len(n.textBuf)-1]
			n.textT = m.T
			resetTimer(idle, textIdleFlush)
			return
		}
		n.interrupt()
		n.emit(event.NewKey(m.T, m.Code, m.Mods))
		return
	}

	if m.Mods&^textMods == 0 && printable(m.Chars) {
		n.textBuf = append(n.textBuf, []rune(m.Chars)...)
		n.textT = m.T
		if len(n.textBuf) >= textMaxScalars {
			n.flushText()
			idle.Stop()
			return
		}
		resetTimer(idle, textIdleFlush)
		return
	}

	// Shortcut or non-printable key: ends any text run.
	n.interrupt()
	n.emit(event.NewKey(m.T, m.Code, m.Mods))
}

func (n *Normalizer) flushText() {
	if len(n.textBuf) == 0 {
		return
	}
	s := string(n.textBuf)
	n.textBuf = n.textBuf[:0]
	n.emit(event.NewText(n.textT, s))
}

// attachContext probes the UI element under a click and emits the
// context event right behind it. A timed-out or failed probe emits
// nothing; the click already went out unaffected.
func (n *Normalizer) attachContext(x, y int32) {
	if n.probe == nil {
		return
	}
	el, ok := n.probe.At(x, y)
	if !ok {
		return
	}
	// lastT is the click's stamped time; +1 keeps the pair ordered.
	n.emit(event.NewContext(n.lastT+1, el.Role, el.Name, el.Value))
}

// emit is the single exit to the bus; it enforces strict monotonicity.
func (n *Normalizer) emit(e event.Event) {
	if n.emitted && e.T <= n.lastT {
		e.T = n.lastT + 1
	}
	n.lastT = e.T
	n.emitted = true
	n.out.Publish(e)
}

// chordOp maps a translated character to a clipboard operation.
func chordOp(chars string) string {
	switch strings.ToLower(chars) {
	case "c":
		return event.OpCopy
	case "x":
		return event.OpCut
	case "v":
		return event.OpPaste
	}
	return ""
}

// printable reports whether every scalar is text (no control or other
// non-printing characters). Keys like return, tab, and escape
// translate to control characters and fall through as key events.
func printable(chars string) bool {
	if chars == "" {
		return false
	}
	for _, r := range chars {
		if r < 0x20 || r == 0x7F || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
