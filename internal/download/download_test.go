package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cmlburnett/ydl/internal/config"
	"github.com/cmlburnett/ydl/internal/extractor"
	"github.com/cmlburnett/ydl/internal/httpclient"
	"github.com/cmlburnett/ydl/internal/log"
	"github.com/cmlburnett/ydl/internal/naming"
	"github.com/cmlburnett/ydl/internal/sleeping"
	"github.com/cmlburnett/ydl/internal/store"
)

type fakeDownloader struct {
	calls []string
	err   error
	hook  func(opts extractor.DownloadOpts)
}

func (f *fakeDownloader) Download(_ context.Context, iid string, opts extractor.DownloadOpts) error {
	f.calls = append(f.calls, iid)
	if f.hook != nil {
		f.hook(opts)
	}
	return f.err
}

func testCoordinator(t *testing.T) (*Coordinator, *store.Store, *fakeDownloader) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "ydl.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	fd := &fakeDownloader{}
	c := &Coordinator{
		db:    db,
		dl:    fd,
		sleep: sleeping.NewRegistry(db),
		cfg: &config.Config{
			ArchiveRoot: t.TempDir(),
			AutoSleep:   true,
			Languages:   "en",
		},
		client: httpclient.Default(),
		logger: log.WithComponent("download"),
	}
	return c, db, fd
}

func seedVideo(t *testing.T, db *store.Store, iid, dname, name string, enriched bool) {
	t.Helper()
	now := time.Now().UTC()
	err := db.WithTx(context.Background(), func(tx *store.Tx) error {
		if err := tx.InsertVideo(iid, dname, &now); err != nil {
			return err
		}
		if enriched {
			return tx.UpdateVideoInfo(iid, store.VideoInfoUpdate{
				Title: name, Name: name, ATime: now,
			})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed %s: %v", iid, err)
	}
}

func TestRun_success(t *testing.T) {
	c, db, fd := testCoordinator(t)
	seedVideo(t, db, "aaaaaaaaaaa", "MIT", "Lecture 1", true)

	sum, err := c.Run(context.Background(), nil, false, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Done != 1 || len(sum.Errors) != 0 {
		t.Errorf("summary: %+v", sum)
	}
	if diff := cmp.Diff([]string{"aaaaaaaaaaa"}, fd.calls); diff != "" {
		t.Errorf("downloader calls (-want +got):\n%s", diff)
	}

	v, _ := db.VideoByIID("aaaaaaaaaaa")
	if v.UTime == nil || v.ATime == nil {
		t.Errorf("timestamps not stamped: %+v", v)
	}
	// Shard directory was created.
	dir := filepath.Join(c.cfg.ArchiveRoot, "MIT", "a")
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("shard dir: %v", err)
	}
}

func TestRun_sleepGate(t *testing.T) {
	c, db, fd := testCoordinator(t)
	seedVideo(t, db, "xyz11111111", "MIT", "Lecture 1", true)
	if err := c.sleep.SleepUntil(context.Background(), "xyz11111111", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("SleepUntil: %v", err)
	}

	sum, err := c.Run(context.Background(), nil, false, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Sleeping != 1 || sum.Done != 0 {
		t.Errorf("summary: %+v", sum)
	}
	if len(fd.calls) != 0 {
		t.Errorf("downloader invoked for sleeping item: %v", fd.calls)
	}
	v, _ := db.VideoByIID("xyz11111111")
	if v.UTime != nil {
		t.Errorf("utime stamped for sleeping item")
	}
}

func TestRun_skipClassification(t *testing.T) {
	c, db, fd := testCoordinator(t)
	seedVideo(t, db, "aaaaaaaaaaa", "MIT", "Lecture 1", true)
	fd.err = &extractor.SkipError{Reason: "Private video"}

	sum, err := c.Run(context.Background(), nil, false, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Skipped != 1 || len(sum.Errors) != 0 {
		t.Errorf("summary: %+v", sum)
	}
	v, _ := db.VideoByIID("aaaaaaaaaaa")
	if !v.Skip {
		t.Error("skip flag not set")
	}
}

func TestRun_autoSleepOnPremiere(t *testing.T) {
	c, db, fd := testCoordinator(t)
	seedVideo(t, db, "aaaaaaaaaaa", "MIT", "Lecture 1", true)
	fd.err = &extractor.SleepError{Reason: "Premieres in", Delay: 10 * time.Minute}

	before := time.Now().UTC()
	sum, err := c.Run(context.Background(), nil, false, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Sleeping != 1 {
		t.Errorf("summary: %+v", sum)
	}
	wake, err := db.SleepUntil("aaaaaaaaaaa")
	if err != nil {
		t.Fatalf("SleepUntil: %v", err)
	}
	if wake == nil {
		t.Fatal("no sleep entry recorded")
	}
	min := before.Add(10*time.Minute + AutoSleepBuffer - time.Minute)
	max := before.Add(10*time.Minute + AutoSleepBuffer + time.Minute)
	if wake.Before(min) || wake.After(max) {
		t.Errorf("wake = %v, want about %v", wake, before.Add(10*time.Minute+AutoSleepBuffer))
	}
	v, _ := db.VideoByIID("aaaaaaaaaaa")
	if v.UTime != nil {
		t.Error("utime stamped for premiering item")
	}
}

func TestRun_interruptAborts(t *testing.T) {
	c, db, fd := testCoordinator(t)
	seedVideo(t, db, "aaaaaaaaaaa", "MIT", "Lecture 1", true)
	seedVideo(t, db, "bbbbbbbbbbb", "MIT", "Lecture 2", true)
	fd.err = extractor.ErrInterrupted

	if _, err := c.Run(context.Background(), nil, false, false); !errors.Is(err, extractor.ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if len(fd.calls) != 1 {
		t.Errorf("batch continued after interrupt: %v", fd.calls)
	}
}

func TestRun_existingFileSatisfies(t *testing.T) {
	c, db, fd := testCoordinator(t)
	seedVideo(t, db, "aaaaaaaaaaa", "MIT", "Lecture 1", true)

	dir := filepath.Join(c.cfg.ArchiveRoot, "MIT", "a")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Lecture 1-aaaaaaaaaaa.mkv"), []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}

	sum, err := c.Run(context.Background(), nil, false, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Satisfied != 1 || sum.Done != 0 {
		t.Errorf("summary: %+v", sum)
	}
	if len(fd.calls) != 0 {
		t.Errorf("downloader invoked despite existing file: %v", fd.calls)
	}
	// The existing file backfills the downloaded stamp.
	v, _ := db.VideoByIID("aaaaaaaaaaa")
	if v.UTime == nil {
		t.Error("utime not backfilled")
	}
}

func TestSatisfactory_ifSmall(t *testing.T) {
	c, _, _ := testCoordinator(t)
	c.cfg.IfSmall = true
	dir := t.TempDir()
	media := filepath.Join(dir, "x.mkv")

	if err := os.WriteFile(media, make([]byte, 900), 0o644); err != nil {
		t.Fatal(err)
	}
	info := `{"formats": [{"filesize": 1000}, {"filesize_approx": 400}]}`
	if err := os.WriteFile(filepath.Join(dir, "x.info.json"), []byte(info), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := c.satisfactory(dir, "x", media)
	if err != nil || !ok {
		t.Errorf("900/1000 bytes should satisfy: ok=%v err=%v", ok, err)
	}

	if err := os.WriteFile(media, make([]byte, 700), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err = c.satisfactory(dir, "x", media)
	if err != nil || ok {
		t.Errorf("700/1000 bytes should not satisfy: ok=%v err=%v", ok, err)
	}
}

func TestRenamePass(t *testing.T) {
	c, _, _ := testCoordinator(t)
	dir := t.TempDir()
	iid := "btZ-VFW4wpY"
	files := map[string]string{
		"TEMP-" + iid + ".mkv":         "media",
		"TEMP-" + iid + ".json":        "{}",
		"TEMP-" + iid + "_0.jpg":       "jpg",
		"TEMP-" + iid + ".description": "desc",
		".hidden-" + iid:               "dotfile",
		"unrelated.txt":                "x",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	renamed, err := c.renamePass(dir, iid, "MIT-OCW-Lec01")
	if err != nil {
		t.Fatalf("renamePass: %v", err)
	}
	if !renamed {
		t.Error("renamed = false")
	}

	want := []string{
		"MIT-OCW-Lec01-" + iid + ".description",
		"MIT-OCW-Lec01-" + iid + ".info.json",
		"MIT-OCW-Lec01-" + iid + ".mkv",
		"MIT-OCW-Lec01-" + iid + "_0.jpg",
	}
	for _, f := range want {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("missing %s", f)
		}
	}
	// Untouched: the dotfile and the unrelated file.
	for _, f := range []string{".hidden-" + iid, "unrelated.txt"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("%s was touched: %v", f, err)
		}
	}
}

func TestRenamePass_bareContainer(t *testing.T) {
	c, _, _ := testCoordinator(t)
	dir := t.TempDir()
	iid := "btZ-VFW4wpY"
	// Bare file carrying the container's EBML magic.
	head := append([]byte{0x1A, 0x45, 0xDF, 0xA3}, []byte("matroska")...)
	if err := os.WriteFile(filepath.Join(dir, "TEMP-"+iid), head, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := c.renamePass(dir, iid, "Named"); err != nil {
		t.Fatalf("renamePass: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Named-"+iid+".mkv")); err != nil {
		t.Errorf("tagged container missing: %v", err)
	}
}

func TestRenamePass_unknownContentErrors(t *testing.T) {
	c, _, _ := testCoordinator(t)
	dir := t.TempDir()
	iid := "btZ-VFW4wpY"
	if err := os.WriteFile(filepath.Join(dir, "TEMP-"+iid), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.renamePass(dir, iid, "Named"); err == nil {
		t.Error("unidentifiable bare file should error")
	}
}

func TestChaptersFromInfo(t *testing.T) {
	in := []extractor.InfoChapter{
		{StartTime: 90, Title: "Middle"},
		{StartTime: 3700, Title: "End"},
	}
	got := chaptersFromInfo(in)
	want := []store.Chapter{
		{Start: "0:00", Label: "Start"},
		{Start: "1:30", Label: "Middle"},
		{Start: "1:01:40", Label: "End"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chapters (-want +got):\n%s", diff)
	}

	// Already starts at zero: no fill.
	got = chaptersFromInfo([]extractor.InfoChapter{{StartTime: 0, Title: "Intro"}})
	if len(got) != 1 || got[0].Label != "Intro" {
		t.Errorf("zero-start chapters: %+v", got)
	}
}

func TestEnrich_adoptsChannelDir(t *testing.T) {
	c, db, _ := testCoordinator(t)
	iid := "btZ-VFW4wpY"
	seedVideo(t, db, iid, naming.Miscellaneous, "", false)

	dir := filepath.Join(c.cfg.ArchiveRoot, naming.Miscellaneous, "b")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	info := `{"id": "` + iid + `", "title": "Lecture 1: Introduction", "uploader": "MIT", "channel_id": "UCabc", "duration": 60.0}`
	for name, content := range map[string]string{
		"TEMP-" + iid + ".info.json": info,
		"TEMP-" + iid + ".mkv":       "media",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	v, err := db.VideoByIID(iid)
	if err != nil {
		t.Fatal(err)
	}
	name, err := c.enrich(context.Background(), v, dir)
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if name != naming.TitleToName("Lecture 1: Introduction") {
		t.Errorf("name = %q", name)
	}

	newDir := filepath.Join(c.cfg.ArchiveRoot, "UCabc", "b")
	for _, f := range []string{"TEMP-" + iid + ".info.json", "TEMP-" + iid + ".mkv"} {
		if _, err := os.Stat(filepath.Join(newDir, f)); err != nil {
			t.Errorf("not adopted: %s", f)
		}
	}
	v, _ = db.VideoByIID(iid)
	if v.DName != "UCabc" {
		t.Errorf("dname = %q, want UCabc", v.DName)
	}
	if v.ATime == nil || v.CTime == nil {
		t.Errorf("enrichment timestamps missing: %+v", v)
	}
}

func TestTarget_tempForUnsynced(t *testing.T) {
	c, db, _ := testCoordinator(t)
	seedVideo(t, db, "btZ-VFW4wpY", naming.Miscellaneous, "", false)

	v, err := db.VideoByIID("btZ-VFW4wpY")
	if err != nil {
		t.Fatal(err)
	}
	dir, base, temp, err := c.target(v)
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	if !temp {
		t.Error("unsynced item should take the TEMP path")
	}
	if base != "TEMP-btZ-VFW4wpY" {
		t.Errorf("base = %q", base)
	}
	wantDir := filepath.Join(c.cfg.ArchiveRoot, naming.Miscellaneous, "b")
	if dir != wantDir {
		t.Errorf("dir = %q, want %q", dir, wantDir)
	}
}

func TestCopyTo(t *testing.T) {
	c, db, _ := testCoordinator(t)
	seedVideo(t, db, "aaaaaaaaaaa", "MIT", "Lecture 1", true)
	seedVideo(t, db, "bbbbbbbbbbb", "MIT", "Lecture 2", true)
	now := time.Now().UTC()
	if err := db.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.SetVideoDownloaded("aaaaaaaaaaa", now)
	}); err != nil {
		t.Fatalf("seed utime: %v", err)
	}
	dir := filepath.Join(c.cfg.ArchiveRoot, "MIT", "a")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	media := filepath.Join(dir, "Lecture 1-aaaaaaaaaaa.mkv")
	if err := os.WriteFile(media, []byte("matroska bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	n, err := c.CopyTo(context.Background(), dest, nil)
	if err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
	// The never-downloaded item is not copied.
	if n != 1 {
		t.Errorf("copied %d files, want 1", n)
	}
	got, err := os.ReadFile(filepath.Join(dest, "Lecture 1-aaaaaaaaaaa.mkv"))
	if err != nil || string(got) != "matroska bytes" {
		t.Errorf("copied file: %q, %v", got, err)
	}
	paths, err := db.CopyPaths()
	if err != nil {
		t.Fatalf("CopyPaths: %v", err)
	}
	if diff := cmp.Diff([]string{dest}, paths); diff != "" {
		t.Errorf("history (-want +got):\n%s", diff)
	}
}
