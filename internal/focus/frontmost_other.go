//go:build !darwin

package focus

var frontmost func() (Snapshot, bool)
