//go:build linux
// +build linux

package archivefs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/cmlburnett/ydl/internal/store"
)

// kindDirNode is one of the c/ ch/ u/ pl/ directories: one child
// directory per source of that variant, named by effective key.
type kindDirNode struct {
	fs.Inode
	readonly
	tree *Tree
	kind store.SourceKind
}

var _ fs.NodeGetattrer = (*kindDirNode)(nil)
var _ fs.NodeReaddirer = (*kindDirNode)(nil)
var _ fs.NodeLookuper = (*kindDirNode)(nil)

func (n *kindDirNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = dirMode
	return 0
}

func (n *kindDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := n.tree.sourceDirs(n.kind)
	if err != nil {
		n.tree.logger.Error().Err(err).Str("kind", string(n.kind)).Msg("list sources")
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Ino:  inoFromString("ydlfs:src:" + string(n.kind) + ":" + name),
			Mode: dirMode,
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *kindDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	ok, err := n.tree.hasSourceDir(n.kind, name)
	if err != nil {
		return nil, syscall.EIO
	}
	if !ok {
		return nil, syscall.ENOENT
	}
	ch := n.NewInode(ctx, &sourceDirNode{tree: n.tree, key: name}, fs.StableAttr{
		Mode: fuse.S_IFDIR,
		Ino:  inoFromString("ydlfs:src:" + string(n.kind) + ":" + name),
	})
	out.Mode = dirMode
	out.SetEntryTimeout(entryAttrTimeout)
	out.SetAttrTimeout(entryAttrTimeout)
	return ch, 0
}

// sourceDirNode is a single source's directory: one symlink per
// downloaded member.
type sourceDirNode struct {
	fs.Inode
	readonly
	tree *Tree
	key  string
}

var _ fs.NodeGetattrer = (*sourceDirNode)(nil)
var _ fs.NodeReaddirer = (*sourceDirNode)(nil)
var _ fs.NodeLookuper = (*sourceDirNode)(nil)

func (n *sourceDirNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = dirMode
	return 0
}

func (n *sourceDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	vv, err := n.tree.db.DownloadedMembers(n.key)
	if err != nil {
		n.tree.logger.Error().Err(err).Str("source", n.key).Msg("list members")
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, 0, len(vv))
	for _, v := range vv {
		entries = append(entries, fuse.DirEntry{
			Name: sourceLinkName(v, n.tree.preferredFor(v.IID)),
			Ino:  inoFromString("ydlfs:item:" + v.IID),
			Mode: fuse.S_IFLNK,
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *sourceDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	vv, err := n.tree.db.DownloadedMembers(n.key)
	if err != nil {
		return nil, syscall.EIO
	}
	for _, v := range vv {
		pref := n.tree.preferredFor(v.IID)
		if sourceLinkName(v, pref) != name {
			continue
		}
		return newLinkInode(ctx, n, n.tree, v, pref, out), 0
	}
	return nil, syscall.ENOENT
}
