//go:build !darwin

package ax

// No accessibility backend off macOS; New returns a nil probe and the
// recorder records without context events.
var elementAt func(x, y int32) (Element, bool)
