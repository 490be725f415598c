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

// linkNode is one archived item's symlink. The target is rendered once
// at lookup; attributes copy the backing file's stat when available.
type linkNode struct {
	fs.Inode
	tree   *Tree
	target string
}

var _ fs.NodeGetattrer = (*linkNode)(nil)
var _ fs.NodeReadlinker = (*linkNode)(nil)

func newLinkInode(ctx context.Context, parent fs.InodeEmbedder, t *Tree, v *store.Video, preferred string, out *fuse.EntryOut) *fs.Inode {
	node := &linkNode{tree: t, target: t.linkTarget(v, preferred)}
	ch := parent.EmbeddedInode().NewInode(ctx, node, fs.StableAttr{
		Mode: fuse.S_IFLNK,
		Ino:  inoFromString("ydlfs:item:" + v.IID),
	})
	out.Mode = fuse.S_IFLNK | 0777
	out.Size = uint64(len(node.target))
	out.SetEntryTimeout(entryAttrTimeout)
	out.SetAttrTimeout(entryAttrTimeout)
	return ch
}

func (n *linkNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = fuse.S_IFLNK | 0777
	out.Size = uint64(len(n.target))
	mtime := n.tree.linkTimes(n.target)
	out.SetTimes(&mtime, &mtime, &mtime)
	return 0
}

func (n *linkNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	return []byte(n.target), 0
}
