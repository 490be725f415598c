package sleeping

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cmlburnett/ydl/internal/store"
)

func TestParseWake(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		spec string
		want time.Time
	}{
		{"2026-09-01 08:30:00", time.Date(2026, 9, 1, 8, 30, 0, 0, time.UTC)},
		{"d+1", now.Add(24 * time.Hour)},
		{"h+3", now.Add(3 * time.Hour)},
		{"m+45", now.Add(45 * time.Minute)},
		{"s+90", now.Add(90 * time.Second)},
		{"d+0", now},
	}
	for _, tt := range tests {
		got, err := ParseWake(tt.spec, now)
		if err != nil {
			t.Errorf("ParseWake(%q): %v", tt.spec, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseWake(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}

func TestParseWake_rejects(t *testing.T) {
	now := time.Now().UTC()
	for _, spec := range []string{"", "tomorrow", "w+1", "d+", "d+-5", "2026-99-01 00:00:00"} {
		if _, err := ParseWake(spec, now); !errors.Is(err, ErrBadSpec) {
			t.Errorf("ParseWake(%q) err = %v, want ErrBadSpec", spec, err)
		}
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "ydl.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRegistry(db)
}

func TestRegistry_sleepAndWake(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	wake, err := r.Sleep(ctx, "xyz11111111", "d+1")
	if err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if until := time.Until(wake); until < 23*time.Hour {
		t.Errorf("wake too soon: %v", wake)
	}

	asleep, err := r.Asleep(ctx, "xyz11111111")
	if err != nil {
		t.Fatalf("Asleep: %v", err)
	}
	if asleep == nil {
		t.Fatal("expected item to be asleep")
	}

	if err := r.Wake(ctx, "xyz11111111"); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	asleep, err = r.Asleep(ctx, "xyz11111111")
	if err != nil {
		t.Fatalf("Asleep: %v", err)
	}
	if asleep != nil {
		t.Errorf("still asleep after Wake: %v", asleep)
	}
}

func TestRegistry_expiredEntryPrunes(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	// An entry whose wake instant already passed is invisible and gets
	// pruned on the next consult.
	past := time.Now().UTC().Add(-time.Minute)
	if err := r.SleepUntil(ctx, "xyz11111111", past); err != nil {
		t.Fatalf("SleepUntil: %v", err)
	}
	asleep, err := r.Asleep(ctx, "xyz11111111")
	if err != nil {
		t.Fatalf("Asleep: %v", err)
	}
	if asleep != nil {
		t.Errorf("expired entry still gating: %v", asleep)
	}
	entries, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries after prune: %+v", entries)
	}
}
