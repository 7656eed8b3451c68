package event

import (
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// TruncateScalars cuts s down to at most max Unicode scalar values
// without splitting a grapheme cluster: if the cluster that crosses the
// limit does not fit whole, the string ends before it.
func TruncateScalars(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	var (
		scalars int
		end     int
	)
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		runes := g.Runes()
		if scalars+len(runes) > max {
			break
		}
		scalars += len(runes)
		_, to := g.Positions()
		end = to
	}
	return s[:end]
}
