//go:build !darwin

package tap

import "context"

func (t *Tap) start(ctx context.Context) error {
	return ErrUnsupported
}
