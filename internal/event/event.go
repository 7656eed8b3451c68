package event

// Type is the one-letter tag identifying an event variant on the wire.
type Type string

const (
	Click     Type = "c" // press-release pair, with multi-click count
	Move      Type = "m" // pointer motion
	Scroll    Type = "s" // wheel deltas at position
	Key       Type = "k" // single non-text key press
	Text      Type = "t" // aggregated run of printable keystrokes
	App       Type = "a" // frontmost-application change
	Window    Type = "w" // focused-window change within the current app
	Clipboard Type = "b" // clipboard copy/cut/paste
	Context   Type = "u" // UI element under the last click
)

// String returns the human name for a tag; unknown tags print as-is.
func (t Type) String() string {
	switch t {
	case Click:
		return "click"
	case Move:
		return "move"
	case Scroll:
		return "scroll"
	case Key:
		return "key"
	case Text:
		return "text"
	case App:
		return "app"
	case Window:
		return "window"
	case Clipboard:
		return "clipboard"
	case Context:
		return "context"
	}
	return string(t)
}

// Button identifies a mouse button.
type Button uint8

const (
	ButtonLeft   Button = 0
	ButtonRight  Button = 1
	ButtonMiddle Button = 2
)

// Mod is the modifier bitset with stable wire values. Anything outside
// ModMask must be cleared before an event is emitted.
type Mod uint8

const (
	ModShift   Mod = 1
	ModControl Mod = 2
	ModOption  Mod = 4
	ModCommand Mod = 8
	ModCaps    Mod = 16
	ModFn      Mod = 32

	ModMask Mod = 63
)

// Clipboard operations.
const (
	OpCopy  = "c"
	OpCut   = "x"
	OpPaste = "v"
)

// Event is the tagged variant carried through the pipeline. Only the
// fields belonging to Type are meaningful; the rest stay zero. All
// fields are comparable so decode(encode(e)) == e holds directly.
type Event struct {
	T    uint64 // ms since the session epoch
	Type Type

	// click / move / scroll
	X, Y   int32
	Button Button
	Clicks uint8
	DX, DY int32

	// key
	Keycode uint16

	// click / key
	Mods Mod

	// text
	Text string

	// app / window
	App   string
	PID   int32
	Title string

	// clipboard
	Op      string
	Preview string

	// context
	Role  string
	Name  string
	Value string
}

// NewClick builds a click event. clicks carries the OS multi-click count.
func NewClick(t uint64, x, y int32, b Button, clicks uint8, mods Mod) Event {
	return Event{T: t, Type: Click, X: x, Y: y, Button: b, Clicks: clicks, Mods: mods & ModMask}
}

// NewMove builds a pointer-motion event.
func NewMove(t uint64, x, y int32) Event {
	return Event{T: t, Type: Move, X: x, Y: y}
}

// NewScroll builds a wheel event at position (x,y) with deltas (dx,dy).
func NewScroll(t uint64, x, y, dx, dy int32) Event {
	return Event{T: t, Type: Scroll, X: x, Y: y, DX: dx, DY: dy}
}

// NewKey builds a non-text key press.
func NewKey(t uint64, keycode uint16, mods Mod) Event {
	return Event{T: t, Type: Key, Keycode: keycode, Mods: mods & ModMask}
}

// NewText builds an aggregated text run.
func NewText(t uint64, s string) Event {
	return Event{T: t, Type: Text, Text: s}
}

// NewApp builds a frontmost-application change.
func NewApp(t uint64, name string, pid int32) Event {
	return Event{T: t, Type: App, App: name, PID: pid}
}

// NewWindow builds a focused-window change.
func NewWindow(t uint64, app, title string) Event {
	return Event{T: t, Type: Window, App: app, Title: title}
}

// NewClipboard builds a clipboard operation event.
func NewClipboard(t uint64, op, preview string) Event {
	return Event{T: t, Type: Clipboard, Op: op, Preview: preview}
}

// NewContext builds a UI-element context event for the preceding click.
func NewContext(t uint64, role, name, value string) Event {
	return Event{T: t, Type: Context, Role: role, Name: name, Value: value}
}
