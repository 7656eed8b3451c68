//go:build !darwin

package perm

func check() Report {
	return Report{}
}

func request() Report {
	return Report{}
}
