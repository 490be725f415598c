//go:build linux
// +build linux

package archivefs

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/cmlburnett/ydl/internal/store"
)

const entryAttrTimeout = 1 * time.Second

const dirMode = fuse.S_IFDIR | 0555

// readonly supplies every mutating operation with a flat refusal. Dir
// nodes embed it so the kernel sees EACCES rather than ENOSYS.
type readonly struct{}

func (readonly) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.EACCES
}

func (readonly) Rmdir(ctx context.Context, name string) syscall.Errno {
	return syscall.EACCES
}

func (readonly) Unlink(ctx context.Context, name string) syscall.Errno {
	return syscall.EACCES
}

func (readonly) Mknod(ctx context.Context, name string, mode, dev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.EACCES
}

func (readonly) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EACCES
}

func (readonly) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.EACCES
}

func (readonly) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.EACCES
}

func (readonly) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return syscall.EACCES
}

func (readonly) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EACCES
}

var (
	_ fs.NodeMkdirer   = readonly{}
	_ fs.NodeRmdirer   = readonly{}
	_ fs.NodeUnlinker  = readonly{}
	_ fs.NodeMknoder   = readonly{}
	_ fs.NodeCreater   = readonly{}
	_ fs.NodeSymlinker = readonly{}
	_ fs.NodeLinker    = readonly{}
	_ fs.NodeRenamer   = readonly{}
	_ fs.NodeSetattrer = readonly{}
)

// rootNode is the mount root: the four source-variant directories plus
// the date-view directory.
type rootNode struct {
	fs.Inode
	readonly
	tree *Tree
}

var _ fs.NodeGetattrer = (*rootNode)(nil)
var _ fs.NodeReaddirer = (*rootNode)(nil)
var _ fs.NodeLookuper = (*rootNode)(nil)
var _ fs.NodeStatfser = (*rootNode)(nil)

var topDirs = []string{"c", "ch", "u", "pl", "v"}

func (r *rootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = dirMode
	return 0
}

func (r *rootNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	out.Bsize = 4096
	out.Frsize = 4096
	out.Blocks = 1 << 20
	out.Bfree = 0
	out.Bavail = 0
	out.Files = 1 << 20
	out.Ffree = 0
	out.NameLen = 255
	return 0
}

func (r *rootNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := make([]fuse.DirEntry, 0, len(topDirs))
	for _, d := range topDirs {
		entries = append(entries, fuse.DirEntry{
			Name: d,
			Ino:  inoFromString("ydlfs:dir:" + d),
			Mode: dirMode,
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (r *rootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	var node fs.InodeEmbedder
	switch name {
	case "c", "ch", "u", "pl":
		node = &kindDirNode{tree: r.tree, kind: store.SourceKind(name)}
	case "v":
		node = &dateRootNode{tree: r.tree}
	default:
		return nil, syscall.ENOENT
	}
	ch := r.NewInode(ctx, node, fs.StableAttr{
		Mode: fuse.S_IFDIR,
		Ino:  inoFromString("ydlfs:dir:" + name),
	})
	out.Mode = dirMode
	out.SetEntryTimeout(entryAttrTimeout)
	out.SetAttrTimeout(entryAttrTimeout)
	return ch, 0
}
