package replay

import (
	"fmt"
	"io"

	"github.com/ehrlich-b/mimic/internal/event"
)

// DryRun prints what would be synthesized instead of posting anything.
// It backs `replay --dry-run`.
type DryRun struct {
	W io.Writer
}

func (d DryRun) Warp(x, y int32) error {
	_, err := fmt.Fprintf(d.W, "move    (%d,%d)\n", x, y)
	return err
}

func (d DryRun) Click(x, y int32, button event.Button, clicks uint8, mods event.Mod) error {
	_, err := fmt.Fprintf(d.W, "click   (%d,%d) button=%d clicks=%d mods=%d\n", x, y, button, clicks, mods)
	return err
}

func (d DryRun) Scroll(x, y, dx, dy int32) error {
	_, err := fmt.Fprintf(d.W, "scroll  (%d,%d) delta=(%d,%d)\n", x, y, dx, dy)
	return err
}

func (d DryRun) Key(code uint16, mods event.Mod) error {
	_, err := fmt.Fprintf(d.W, "key     code=%d mods=%d\n", code, mods)
	return err
}

func (d DryRun) Text(s string) error {
	_, err := fmt.Fprintf(d.W, "text    %q\n", s)
	return err
}
