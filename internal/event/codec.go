package event

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxStringScalars caps the text and preview fields at encode time.
const MaxStringScalars = 256

// ErrUnknownTag marks a line whose event tag this build does not know.
// Loaders skip such lines instead of failing (forward compatibility).
var ErrUnknownTag = errors.New("unknown event tag")

// Per-tag wire shapes. One event per line, single-letter keys.
type clickLine struct {
	T uint64 `json:"t"`
	E Type   `json:"e"`
	X int32  `json:"x"`
	Y int32  `json:"y"`
	B Button `json:"b"`
	N uint8  `json:"n"`
	M Mod    `json:"m"`
}

type moveLine struct {
	T uint64 `json:"t"`
	E Type   `json:"e"`
	X int32  `json:"x"`
	Y int32  `json:"y"`
}

type scrollLine struct {
	T  uint64 `json:"t"`
	E  Type   `json:"e"`
	X  int32  `json:"x"`
	Y  int32  `json:"y"`
	DX int32  `json:"dx"`
	DY int32  `json:"dy"`
}

type keyLine struct {
	T uint64 `json:"t"`
	E Type   `json:"e"`
	K uint16 `json:"k"`
	M Mod    `json:"m"`
}

type textLine struct {
	T uint64 `json:"t"`
	E Type   `json:"e"`
	S string `json:"s"`
}

type appLine struct {
	T uint64 `json:"t"`
	E Type   `json:"e"`
	A string `json:"a"`
	P int32  `json:"p"`
}

type windowLine struct {
	T uint64 `json:"t"`
	E Type   `json:"e"`
	A string `json:"a"`
	W string `json:"w"`
}

type clipboardLine struct {
	T uint64 `json:"t"`
	E Type   `json:"e"`
	O string `json:"o"`
	P string `json:"p"`
}

type contextLine struct {
	T uint64 `json:"t"`
	E Type   `json:"e"`
	R string `json:"r"`
	N string `json:"n"`
	S string `json:"s"`
}

// Encode renders one event as a single JSON line without the trailing
// newline. Text and preview fields are truncated to MaxStringScalars at
// a grapheme-safe boundary.
func Encode(e Event) ([]byte, error) {
	switch e.Type {
	case Click:
		return json.Marshal(clickLine{e.T, e.Type, e.X, e.Y, e.Button, e.Clicks, e.Mods & ModMask})
	case Move:
		return json.Marshal(moveLine{e.T, e.Type, e.X, e.Y})
	case Scroll:
		return json.Marshal(scrollLine{e.T, e.Type, e.X, e.Y, e.DX, e.DY})
	case Key:
		return json.Marshal(keyLine{e.T, e.Type, e.Keycode, e.Mods & ModMask})
	case Text:
		return json.Marshal(textLine{e.T, e.Type, TruncateScalars(e.Text, MaxStringScalars)})
	case App:
		return json.Marshal(appLine{e.T, e.Type, e.App, e.PID})
	case Window:
		return json.Marshal(windowLine{e.T, e.Type, e.App, e.Title})
	case Clipboard:
		return json.Marshal(clipboardLine{e.T, e.Type, e.Op, TruncateScalars(e.Preview, MaxStringScalars)})
	case Context:
		return json.Marshal(contextLine{e.T, e.Type, e.Role, e.Name, e.Value})
	default:
		return nil, fmt.Errorf("encode: %w: %q", ErrUnknownTag, e.Type)
	}
}

// head is the common prefix every line carries.
type head struct {
	T uint64 `json:"t"`
	E Type   `json:"e"`
}

// Decode parses one line back into an Event. Unknown tags return
// ErrUnknownTag; malformed JSON returns the json error.
func Decode(line []byte) (Event, error) {
	var h head
	if err := json.Unmarshal(line, &h); err != nil {
		return Event{}, fmt.Errorf("decode: %w", err)
	}

	e := Event{T: h.T, Type: h.E}
	switch h.E {
	case Click:
		var l clickLine
		if err := json.Unmarshal(line, &l); err != nil {
			return Event{}, fmt.Errorf("decode click: %w", err)
		}
		e.X, e.Y, e.Button, e.Clicks, e.Mods = l.X, l.Y, l.B, l.N, l.M&ModMask
	case Move:
		var l moveLine
		if err := json.Unmarshal(line, &l); err != nil {
			return Event{}, fmt.Errorf("decode move: %w", err)
		}
		e.X, e.Y = l.X, l.Y
	case Scroll:
		var l scrollLine
		if err := json.Unmarshal(line, &l); err != nil {
			return Event{}, fmt.Errorf("decode scroll: %w", err)
		}
		e.X, e.Y, e.DX, e.DY = l.X, l.Y, l.DX, l.DY
	case Key:
		var l keyLine
		if err := json.Unmarshal(line, &l); err != nil {
			return Event{}, fmt.Errorf("decode key: %w", err)
		}
		e.Keycode, e.Mods = l.K, l.M&ModMask
	case Text:
		var l textLine
		if err := json.Unmarshal(line, &l); err != nil {
			return Event{}, fmt.Errorf("decode text: %w", err)
		}
		e.Text = l.S
	case App:
		var l appLine
		if err := json.Unmarshal(line, &l); err != nil {
			return Event{}, fmt.Errorf("decode app: %w", err)
		}
		e.App, e.PID = l.A, l.P
	case Window:
		var l windowLine
		if err := json.Unmarshal(line, &l); err != nil {
			return Event{}, fmt.Errorf("decode window: %w", err)
		}
		e.App, e.Title = l.A, l.W
	case Clipboard:
		var l clipboardLine
		if err := json.Unmarshal(line, &l); err != nil {
			return Event{}, fmt.Errorf("decode clipboard: %w", err)
		}
		e.Op, e.Preview = l.O, l.P
	case Context:
		var l contextLine
		if err := json.Unmarshal(line, &l); err != nil {
			return Event{}, fmt.Errorf("decode context: %w", err)
		}
		e.Role, e.Name, e.Value = l.R, l.N, l.S
	default:
		return Event{}, fmt.Errorf("decode %q: %w", h.E, ErrUnknownTag)
	}
	return e, nil
}

// ReadAll decodes a whole log. Lines that fail to parse or carry an
// unknown tag are skipped and counted; a partial trailing line from an
// abrupt termination falls under the same rule.
func ReadAll(r io.Reader) (events []Event, skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		e, derr := Decode(line)
		if derr != nil {
			skipped++
			continue
		}
		events = append(events, e)
	}
	if serr := sc.Err(); serr != nil {
		return events, skipped, fmt.Errorf("read log: %w", serr)
	}
	return events, skipped, nil
}
