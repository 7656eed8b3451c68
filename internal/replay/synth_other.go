//go:build !darwin

package replay

import "errors"

// ErrUnsupported is returned when the platform cannot synthesize input.
var ErrUnsupported = errors.New("event synthesis not supported on this platform")

// NewSynthesizer has no backend off macOS.
func NewSynthesizer(noPasteboard bool) (Synthesizer, error) {
	return nil, ErrUnsupported
}
