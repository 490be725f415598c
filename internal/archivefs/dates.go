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

// dateRootNode is the v/ directory with the two bucketing choices.
type dateRootNode struct {
	fs.Inode
	readonly
	tree *Tree
}

var _ fs.NodeGetattrer = (*dateRootNode)(nil)
var _ fs.NodeReaddirer = (*dateRootNode)(nil)
var _ fs.NodeLookuper = (*dateRootNode)(nil)

var dateViews = map[string]store.TimeField{
	"date_publish":  store.FieldPublish,
	"date_download": store.FieldDownload,
}

func (n *dateRootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = dirMode
	return 0
}

func (n *dateRootNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{
		{Name: "date_download", Ino: inoFromString("ydlfs:v:date_download"), Mode: dirMode},
		{Name: "date_publish", Ino: inoFromString("ydlfs:v:date_publish"), Mode: dirMode},
	}
	return fs.NewListDirStream(entries), 0
}

func (n *dateRootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	field, ok := dateViews[name]
	if !ok {
		return nil, syscall.ENOENT
	}
	ch := n.NewInode(ctx, &dateDirNode{tree: n.tree, field: field}, fs.StableAttr{
		Mode: fuse.S_IFDIR,
		Ino:  inoFromString("ydlfs:v:" + name),
	})
	out.Mode = dirMode
	out.SetEntryTimeout(entryAttrTimeout)
	out.SetAttrTimeout(entryAttrTimeout)
	return ch, 0
}

// dateDirNode walks YYYY → MM → DD using fixed substring buckets over
// the catalog; depth 0 lists years, 1 months, 2 days.
type dateDirNode struct {
	fs.Inode
	readonly
	tree  *Tree
	field store.TimeField
	depth int
	year  string
	month string
}

var _ fs.NodeGetattrer = (*dateDirNode)(nil)
var _ fs.NodeReaddirer = (*dateDirNode)(nil)
var _ fs.NodeLookuper = (*dateDirNode)(nil)

func (n *dateDirNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = dirMode
	return 0
}

func (n *dateDirNode) buckets() ([]string, error) {
	switch n.depth {
	case 0:
		return n.tree.db.DownloadedYears(n.field)
	case 1:
		return n.tree.db.DownloadedMonths(n.field, n.year)
	default:
		return n.tree.db.DownloadedDays(n.field, n.year, n.month)
	}
}

func (n *dateDirNode) inoKey(name string) string {
	return "ydlfs:" + string(n.field) + ":" + n.year + ":" + n.month + ":" + name
}

func (n *dateDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := n.buckets()
	if err != nil {
		n.tree.logger.Error().Err(err).Msg("list date buckets")
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Ino:  inoFromString(n.inoKey(name)),
			Mode: dirMode,
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *dateDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	names, err := n.buckets()
	if err != nil {
		return nil, syscall.EIO
	}
	found := false
	for _, b := range names {
		if b == name {
			found = true
			break
		}
	}
	if !found {
		return nil, syscall.ENOENT
	}

	var node fs.InodeEmbedder
	switch n.depth {
	case 0:
		node = &dateDirNode{tree: n.tree, field: n.field, depth: 1, year: name}
	case 1:
		node = &dateDirNode{tree: n.tree, field: n.field, depth: 2, year: n.year, month: name}
	default:
		node = &dayDirNode{tree: n.tree, field: n.field, year: n.year, month: n.month, day: name}
	}
	ch := n.NewInode(ctx, node, fs.StableAttr{
		Mode: fuse.S_IFDIR,
		Ino:  inoFromString(n.inoKey(name)),
	})
	out.Mode = dirMode
	out.SetEntryTimeout(entryAttrTimeout)
	out.SetAttrTimeout(entryAttrTimeout)
	return ch, 0
}

// dayDirNode lists the downloaded items whose bucketing instant falls
// on one calendar day.
type dayDirNode struct {
	fs.Inode
	readonly
	tree             *Tree
	field            store.TimeField
	year, month, day string
}

var _ fs.NodeGetattrer = (*dayDirNode)(nil)
var _ fs.NodeReaddirer = (*dayDirNode)(nil)
var _ fs.NodeLookuper = (*dayDirNode)(nil)

func (n *dayDirNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = dirMode
	return 0
}

func (n *dayDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	vv, err := n.tree.db.DownloadedOn(n.field, n.year, n.month, n.day)
	if err != nil {
		n.tree.logger.Error().Err(err).Msg("list day bucket")
		return nil, syscall.EIO
	}
	entries := make([]fuse.DirEntry, 0, len(vv))
	for _, v := range vv {
		entries = append(entries, fuse.DirEntry{
			Name: dateLinkName(v, n.tree.preferredFor(v.IID)),
			Ino:  inoFromString("ydlfs:item:" + v.IID),
			Mode: fuse.S_IFLNK,
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *dayDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	vv, err := n.tree.db.DownloadedOn(n.field, n.year, n.month, n.day)
	if err != nil {
		return nil, syscall.EIO
	}
	for _, v := range vv {
		pref := n.tree.preferredFor(v.IID)
		if dateLinkName(v, pref) != name {
			continue
		}
		return newLinkInode(ctx, n, n.tree, v, pref, out), 0
	}
	return nil, syscall.ENOENT
}
