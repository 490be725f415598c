//go:build !linux
// +build !linux

package archivefs

import "fmt"

// Mount is unavailable off Linux; the projection depends on go-fuse.
func Mount(dir string, tree *Tree) (waiter, error) {
	return nil, fmt.Errorf("archive mount is only supported on linux builds")
}

type waiter interface {
	Wait()
	Unmount() error
}
