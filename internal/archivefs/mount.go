//go:build linux
// +build linux

package archivefs

import (
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Mount projects the tree at dir and returns the server; the caller
// owns Wait/Unmount.
func Mount(dir string, tree *Tree) (*fuse.Server, error) {
	to := entryAttrTimeout
	opts := &fs.Options{
		EntryTimeout: &to,
		AttrTimeout:  &to,
		MountOptions: fuse.MountOptions{
			FsName: "ydl",
			Name:   "ydl",
			// The kernel advertises the mount read-only on top of the
			// per-operation refusals.
			Options: []string{"ro"},
		},
	}
	server, err := fs.Mount(dir, &rootNode{tree: tree}, opts)
	if err != nil {
		return nil, err
	}
	tree.logger.Info().Str("dir", dir).Msg("mounted")
	return server, nil
}
