package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ydl.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ts(s string) time.Time {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestOpen_idempotentSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ydl.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.InsertVideo("btZ-VFW4wpY", "MISCELLANEOUS", nil)
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s.Close()

	// Re-opening an existing catalog must not disturb its contents.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()
	v, err := s2.VideoByIID("btZ-VFW4wpY")
	if err != nil {
		t.Fatalf("VideoByIID: %v", err)
	}
	if v.DName != "MISCELLANEOUS" || v.Skip || v.CTime != nil || v.UTime != nil {
		t.Errorf("row disturbed: %+v", v)
	}
}

func TestVideo_roundtrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := ts("2026-08-26T12:00:00Z")
	pt := ts("2020-11-28T00:00:00Z")

	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertVideo("aaaaaaaaaaa", "MIT", &now); err != nil {
			return err
		}
		return tx.UpdateVideoInfo("aaaaaaaaaaa", VideoInfoUpdate{
			Duration:   3725,
			Title:      "Lecture 1: Introduction",
			Name:       "Lecture 1- Introduction",
			Uploader:   "MIT OpenCourseWare",
			Thumbnails: []string{"https://img.example/a.jpg"},
			PTime:      &pt,
			ATime:      now,
		})
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	v, err := s.VideoByIID("aaaaaaaaaaa")
	if err != nil {
		t.Fatalf("VideoByIID: %v", err)
	}
	want := &Video{
		RowID: v.RowID, IID: "aaaaaaaaaaa", Name: "Lecture 1- Introduction",
		DName: "MIT", Duration: 3725, Title: "Lecture 1: Introduction",
		Uploader: "MIT OpenCourseWare", PTime: &pt, CTime: &now, ATime: &now,
		Thumbnails: []string{"https://img.example/a.jpg"},
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("video mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateVideoInfo_preservesCTime(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	first := ts("2026-01-01T00:00:00Z")
	later := ts("2026-08-26T12:00:00Z")

	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertVideo("bbbbbbbbbbb", "MIT", &first); err != nil {
			return err
		}
		return tx.UpdateVideoInfo("bbbbbbbbbbb", VideoInfoUpdate{Title: "t", Name: "t", ATime: later})
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	v, _ := s.VideoByIID("bbbbbbbbbbb")
	if v.CTime == nil || !v.CTime.Equal(first) {
		t.Errorf("ctime overwritten: %v", v.CTime)
	}
	if v.ATime == nil || !v.ATime.Equal(later) {
		t.Errorf("atime not stamped: %v", v.ATime)
	}
}

func TestSelectVideos_filterAndOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	err := s.WithTx(ctx, func(tx *Tx) error {
		for _, iid := range []string{"ccccccccccc", "aaaaaaaaaaa", "bbbbbbbbbbb"} {
			if err := tx.InsertVideo(iid, "MIT", &now); err != nil {
				return err
			}
		}
		if err := tx.InsertVideo("ddddddddddd", "Other", &now); err != nil {
			return err
		}
		if err := tx.SetVideoSkip("bbbbbbbbbbb", true); err != nil {
			return err
		}
		return tx.SetVideoDownloaded("ccccccccccc", now)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	vs, err := s.SelectVideos([]string{"MIT"}, false, true)
	if err != nil {
		t.Fatalf("SelectVideos: %v", err)
	}
	var got []string
	for _, v := range vs {
		got = append(got, v.IID)
	}
	want := []string{"aaaaaaaaaaa", "ccccccccccc"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("filtered iids (-want +got):\n%s", diff)
	}

	vs, _ = s.SelectVideos([]string{"MIT"}, true, true)
	if len(vs) != 1 || vs[0].IID != "aaaaaaaaaaa" {
		t.Errorf("ignoreOld selection: %+v", vs)
	}
}

func TestMembership_tombstone(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertMembership("MIT", "aaaaaaaaaaa", 1, now); err != nil {
			return err
		}
		return tx.UpsertMembership("MIT", "bbbbbbbbbbb", 2, now)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	mm, err := s.MembershipMap("MIT")
	if err != nil {
		t.Fatalf("MembershipMap: %v", err)
	}
	err = s.WithTx(ctx, func(tx *Tx) error {
		return tx.TombstoneMembership(mm["bbbbbbbbbbb"])
	})
	if err != nil {
		t.Fatalf("tombstone: %v", err)
	}

	// Row survives with idx = -1.
	ms, err := s.Memberships("MIT")
	if err != nil {
		t.Fatalf("Memberships: %v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("want 2 rows, got %d", len(ms))
	}
	if ms[0].IID != "aaaaaaaaaaa" || ms[0].Idx != 1 {
		t.Errorf("live row: %+v", ms[0])
	}
	if ms[1].IID != "bbbbbbbbbbb" || ms[1].Idx != TombstoneIdx {
		t.Errorf("tombstone row: %+v", ms[1])
	}

	live, _ := s.MemberIIDs("MIT")
	if diff := cmp.Diff([]string{"aaaaaaaaaaa"}, live); diff != "" {
		t.Errorf("live iids (-want +got):\n%s", diff)
	}
}

func TestSources_aliasAndOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.AddSource(KindChannelUnnamed, "UCxxxxxxxxxxxxxxxxxxxxxx", now); err != nil {
			return err
		}
		if err := tx.SetChannelAlias("UCxxxxxxxxxxxxxxxxxxxxxx", "Alpha"); err != nil {
			return err
		}
		return tx.AddSource(KindChannelUnnamed, "AAAAAAAAAAAAAAAAAAAAAAAA", now)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Lookup matches on alias too.
	src, err := s.SourceByKey(KindChannelUnnamed, "Alpha")
	if err != nil {
		t.Fatalf("SourceByKey by alias: %v", err)
	}
	if src.Key != "UCxxxxxxxxxxxxxxxxxxxxxx" || src.EffectiveKey() != "Alpha" {
		t.Errorf("source: %+v", src)
	}

	ss, err := s.SelectSources(KindChannelUnnamed, nil, false)
	if err != nil {
		t.Fatalf("SelectSources: %v", err)
	}
	if len(ss) != 2 || ss[0].EffectiveKey() != "AAAAAAAAAAAAAAAAAAAAAAAA" || ss[1].EffectiveKey() != "Alpha" {
		t.Errorf("ordering by effective key: %v, %v", ss[0].EffectiveKey(), ss[1].EffectiveKey())
	}

	inUse, err := s.AliasInUse("Alpha")
	if err != nil || !inUse {
		t.Errorf("AliasInUse(Alpha) = %v, %v", inUse, err)
	}
	inUse, _ = s.AliasInUse("Unused")
	if inUse {
		t.Error("AliasInUse(Unused) = true")
	}
}

func TestSkipClearsSleep(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	wake := now.Add(time.Hour)
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertVideo("eeeeeeeeeee", "MIT", &now); err != nil {
			return err
		}
		if err := tx.SetSleep("eeeeeeeeeee", wake); err != nil {
			return err
		}
		return tx.SetVideoSkip("eeeeeeeeeee", true)
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	until, err := s.SleepUntil("eeeeeeeeeee")
	if err != nil {
		t.Fatalf("SleepUntil: %v", err)
	}
	if until != nil {
		t.Errorf("sleep entry survived skip: %v", until)
	}
}

func TestPruneSleeps(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.SetSleep("aaaaaaaaaaa", now.Add(-time.Minute)); err != nil {
			return err
		}
		return tx.SetSleep("bbbbbbbbbbb", now.Add(time.Hour))
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	var pruned int64
	err = s.WithTx(ctx, func(tx *Tx) error {
		var err error
		pruned, err = tx.PruneSleeps(now)
		return err
	})
	if err != nil || pruned != 1 {
		t.Fatalf("PruneSleeps = %d, %v", pruned, err)
	}
	entries, _ := s.SleepEntries()
	if len(entries) != 1 || entries[0].IID != "bbbbbbbbbbb" {
		t.Errorf("entries after prune: %+v", entries)
	}
}

func TestCopyPathHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.RememberCopyPath("/mnt/usb"); err != nil {
			return err
		}
		if err := tx.RememberCopyPath("/mnt/nas"); err != nil {
			return err
		}
		// Re-remembering moves the path to the front.
		return tx.RememberCopyPath("/mnt/usb")
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	paths, err := s.CopyPaths()
	if err != nil {
		t.Fatalf("CopyPaths: %v", err)
	}
	if diff := cmp.Diff([]string{"/mnt/usb", "/mnt/nas"}, paths); diff != "" {
		t.Errorf("history (-want +got):\n%s", diff)
	}
}

func TestCountDownloaded(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertVideo("aaaaaaaaaaa", "MIT", &now); err != nil {
			return err
		}
		if err := tx.InsertVideo("bbbbbbbbbbb", "MIT", &now); err != nil {
			return err
		}
		return tx.SetVideoDownloaded("aaaaaaaaaaa", now)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	n, err := s.CountDownloaded()
	if err != nil || n != 1 {
		t.Errorf("CountDownloaded = %d, %v, want 1", n, err)
	}
}

func TestTx_doneRollsBack(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.InsertVideo("fffffffffff", "MIT", nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	tx.Done() // no commit: must roll back

	if _, err := s.VideoByIID("fffffffffff"); !errors.Is(err, ErrNotFound) {
		t.Errorf("row visible after rollback: %v", err)
	}
}

func TestDateBuckets(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	p1 := ts("2020-11-28T10:00:00Z")
	u1 := ts("2026-08-26T09:30:00Z")
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertVideo("aaaaaaaaaaa", "MIT", &p1); err != nil {
			return err
		}
		if err := tx.UpdateVideoInfo("aaaaaaaaaaa", VideoInfoUpdate{Title: "x", Name: "x", PTime: &p1, ATime: u1}); err != nil {
			return err
		}
		return tx.SetVideoDownloaded("aaaaaaaaaaa", u1)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	years, err := s.DownloadedYears(FieldPublish)
	if err != nil {
		t.Fatalf("years: %v", err)
	}
	if diff := cmp.Diff([]string{"2020"}, years); diff != "" {
		t.Errorf("publish years (-want +got):\n%s", diff)
	}
	months, _ := s.DownloadedMonths(FieldPublish, "2020")
	if diff := cmp.Diff([]string{"11"}, months); diff != "" {
		t.Errorf("months (-want +got):\n%s", diff)
	}
	days, _ := s.DownloadedDays(FieldPublish, "2020", "11")
	if diff := cmp.Diff([]string{"28"}, days); diff != "" {
		t.Errorf("days (-want +got):\n%s", diff)
	}
	vs, _ := s.DownloadedOn(FieldDownload, "2026", "08", "26")
	if len(vs) != 1 || vs[0].IID != "aaaaaaaaaaa" {
		t.Errorf("DownloadedOn: %+v", vs)
	}
}
