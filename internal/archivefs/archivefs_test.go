//go:build linux
// +build linux

package archivefs

import (
	"context"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/cmlburnett/ydl/internal/config"
	"github.com/cmlburnett/ydl/internal/store"
)

func testTree(t *testing.T) (*Tree, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "ydl.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	tree, err := NewTree(db, &config.Config{
		CatalogPath: filepath.Join(dir, "ydl.db"),
		ArchiveRoot: "/archive",
		MountLinks:  "absolute",
	})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	return tree, db
}

// seedDownloaded registers a channel with one downloaded member.
func seedDownloaded(t *testing.T, db *store.Store, chName, iid, name string) {
	t.Helper()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	pub := now.AddDate(0, -1, 0)
	err := db.WithTx(context.Background(), func(tx *store.Tx) error {
		if err := tx.AddSource(store.KindChannelNamed, chName, now); err != nil {
			return err
		}
		if err := tx.InsertVideo(iid, chName, &now); err != nil {
			return err
		}
		if err := tx.UpdateVideoInfo(iid, store.VideoInfoUpdate{
			Title: name, Name: name, PTime: &pub, ATime: now,
		}); err != nil {
			return err
		}
		if err := tx.UpsertMembership(chName, iid, 1, now); err != nil {
			return err
		}
		return tx.SetVideoDownloaded(iid, now)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func streamNames(t *testing.T, ds fs.DirStream) []string {
	t.Helper()
	var names []string
	for ds.HasNext() {
		e, errno := ds.Next()
		if errno != 0 {
			t.Fatalf("Next: %v", errno)
		}
		names = append(names, e.Name)
	}
	ds.Close()
	return names
}

func TestRootReaddir(t *testing.T) {
	tree, _ := testTree(t)
	root := &rootNode{tree: tree}
	ds, errno := root.Readdir(context.Background())
	if errno != 0 {
		t.Fatalf("Readdir: %v", errno)
	}
	want := []string{"c", "ch", "u", "pl", "v"}
	if diff := cmp.Diff(want, streamNames(t, ds)); diff != "" {
		t.Errorf("root entries (-want +got):\n%s", diff)
	}
}

func TestKindDirReaddir_aliasedChannel(t *testing.T) {
	tree, db := testTree(t)
	now := time.Now().UTC()
	err := db.WithTx(context.Background(), func(tx *store.Tx) error {
		if err := tx.AddSource(store.KindChannelUnnamed, "UCxxxxxxxxxxxxxxxxxxxxxx", now); err != nil {
			return err
		}
		return tx.SetChannelAlias("UCxxxxxxxxxxxxxxxxxxxxxx", "Alpha")
	})
	if err != nil {
		t.Fatal(err)
	}

	n := &kindDirNode{tree: tree, kind: store.KindChannelUnnamed}
	ds, errno := n.Readdir(context.Background())
	if errno != 0 {
		t.Fatalf("Readdir: %v", errno)
	}
	if diff := cmp.Diff([]string{"Alpha"}, streamNames(t, ds)); diff != "" {
		t.Errorf("aliased channel dir (-want +got):\n%s", diff)
	}
}

func TestSourceDirReaddir(t *testing.T) {
	tree, db := testTree(t)
	seedDownloaded(t, db, "MIT", "btZ-VFW4wpY", "Lecture-1")

	n := &sourceDirNode{tree: tree, key: "MIT"}
	ds, errno := n.Readdir(context.Background())
	if errno != 0 {
		t.Fatalf("Readdir: %v", errno)
	}
	want := []string{"Lecture-1-btZ-VFW4wpY.mkv"}
	if diff := cmp.Diff(want, streamNames(t, ds)); diff != "" {
		t.Errorf("source entries (-want +got):\n%s", diff)
	}
}

func TestSourceDir_excludesUndownloaded(t *testing.T) {
	tree, db := testTree(t)
	seedDownloaded(t, db, "MIT", "btZ-VFW4wpY", "Lecture-1")
	now := time.Now().UTC()
	err := db.WithTx(context.Background(), func(tx *store.Tx) error {
		if err := tx.InsertVideo("aaaaaaaaaaa", "MIT", &now); err != nil {
			return err
		}
		return tx.UpsertMembership("MIT", "aaaaaaaaaaa", 2, now)
	})
	if err != nil {
		t.Fatal(err)
	}

	n := &sourceDirNode{tree: tree, key: "MIT"}
	ds, _ := n.Readdir(context.Background())
	if got := streamNames(t, ds); len(got) != 1 {
		t.Errorf("entries = %v, want only the downloaded one", got)
	}
}

func TestSourceDir_preferredNameWins(t *testing.T) {
	tree, db := testTree(t)
	seedDownloaded(t, db, "MIT", "btZ-VFW4wpY", "Lecture-1")
	err := db.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.SetPreferredName("btZ-VFW4wpY", "MIT-OCW-Lec01")
	})
	if err != nil {
		t.Fatal(err)
	}

	n := &sourceDirNode{tree: tree, key: "MIT"}
	ds, _ := n.Readdir(context.Background())
	want := []string{"MIT-OCW-Lec01-btZ-VFW4wpY.mkv"}
	if diff := cmp.Diff(want, streamNames(t, ds)); diff != "" {
		t.Errorf("preferred-name entry (-want +got):\n%s", diff)
	}
}

func TestDateDirs(t *testing.T) {
	tree, db := testTree(t)
	seedDownloaded(t, db, "MIT", "btZ-VFW4wpY", "Lecture-1")

	years := &dateDirNode{tree: tree, field: store.FieldDownload}
	ds, errno := years.Readdir(context.Background())
	if errno != 0 {
		t.Fatalf("years: %v", errno)
	}
	if diff := cmp.Diff([]string{"2026"}, streamNames(t, ds)); diff != "" {
		t.Errorf("years (-want +got):\n%s", diff)
	}

	months := &dateDirNode{tree: tree, field: store.FieldDownload, depth: 1, year: "2026"}
	ds, _ = months.Readdir(context.Background())
	if diff := cmp.Diff([]string{"03"}, streamNames(t, ds)); diff != "" {
		t.Errorf("months (-want +got):\n%s", diff)
	}

	day := &dayDirNode{tree: tree, field: store.FieldDownload, year: "2026", month: "03", day: "15"}
	ds, _ = day.Readdir(context.Background())
	want := []string{"MIT-Lecture-1-btZ-VFW4wpY.mkv"}
	if diff := cmp.Diff(want, streamNames(t, ds)); diff != "" {
		t.Errorf("day entries (-want +got):\n%s", diff)
	}

	// Publish view buckets by ptime, one month earlier.
	pubMonths := &dateDirNode{tree: tree, field: store.FieldPublish, depth: 1, year: "2026"}
	ds, _ = pubMonths.Readdir(context.Background())
	if diff := cmp.Diff([]string{"02"}, streamNames(t, ds)); diff != "" {
		t.Errorf("publish months (-want +got):\n%s", diff)
	}
}

func TestLinkTarget(t *testing.T) {
	tree, db := testTree(t)
	seedDownloaded(t, db, "MIT", "btZ-VFW4wpY", "Lecture-1")

	v, err := db.VideoByIID("btZ-VFW4wpY")
	if err != nil {
		t.Fatal(err)
	}
	got := tree.linkTarget(v, "")
	want := "/archive/MIT/b/Lecture-1-btZ-VFW4wpY.mkv"
	if got != want {
		t.Errorf("target = %q, want %q", got, want)
	}
	if got := tree.linkTarget(v, "Preferred"); got != "/archive/MIT/b/Preferred-btZ-VFW4wpY.mkv" {
		t.Errorf("preferred target = %q", got)
	}
}

func TestReadonlyRefusals(t *testing.T) {
	var ro readonly
	ctx := context.Background()
	if _, errno := ro.Mkdir(ctx, "x", 0o755, &fuse.EntryOut{}); errno != syscall.EACCES {
		t.Errorf("Mkdir errno = %v", errno)
	}
	if errno := ro.Unlink(ctx, "x"); errno != syscall.EACCES {
		t.Errorf("Unlink errno = %v", errno)
	}
	if errno := ro.Rename(ctx, "x", nil, "y", 0); errno != syscall.EACCES {
		t.Errorf("Rename errno = %v", errno)
	}
	if errno := ro.Setattr(ctx, nil, &fuse.SetAttrIn{}, &fuse.AttrOut{}); errno != syscall.EACCES {
		t.Errorf("Setattr errno = %v", errno)
	}
}

func TestStatfsReadOnlyGeometry(t *testing.T) {
	tree, _ := testTree(t)
	root := &rootNode{tree: tree}
	var out fuse.StatfsOut
	if errno := root.Statfs(context.Background(), &out); errno != 0 {
		t.Fatalf("Statfs: %v", errno)
	}
	if out.Bfree != 0 || out.Bavail != 0 {
		t.Errorf("free space advertised on read-only view: %+v", out)
	}
	if out.Bsize == 0 || out.NameLen == 0 {
		t.Errorf("geometry not filled: %+v", out)
	}
}
