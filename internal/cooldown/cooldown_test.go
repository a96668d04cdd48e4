package cooldown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"engagepilot/internal/model"
)

type fakeRepo struct {
	entries []model.CooldownEntry
	failSet bool
	sets    int
}

func (r *fakeRepo) UpsertCooldown(_ context.Context, entry model.CooldownEntry) error {
	r.sets++
	if r.failSet {
		return errors.New("disk full")
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeRepo) ListCooldowns(_ context.Context) ([]model.CooldownEntry, error) {
	return r.entries, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCanReplyWindow(t *testing.T) {
	ctx := context.Background()
	tr := New(&fakeRepo{}, discard())
	t0 := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	if !tr.CanReply("bob", t0) {
		t.Fatalf("CanReply with no entry = false, want true")
	}

	tr.RecordReply(ctx, "bob", t0)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"immediately after", t0, false},
		{"one hour later", t0.Add(1 * time.Hour), false},
		{"just inside the window", t0.Add(3*time.Hour - time.Second), false},
		{"exactly at the window", t0.Add(3 * time.Hour), true},
		{"past the window", t0.Add(3*time.Hour + time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.CanReply("bob", tt.at); got != tt.want {
				t.Errorf("CanReply = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleNormalization(t *testing.T) {
	ctx := context.Background()
	tr := New(&fakeRepo{}, discard())
	t0 := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	tr.RecordReply(ctx, "@Bob", t0)

	for _, handle := range []string{"bob", "Bob", "@bob", "@BOB"} {
		if tr.CanReply(handle, t0.Add(time.Hour)) {
			t.Errorf("CanReply(%q) = true, want false: normalization should unify handles", handle)
		}
	}

	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

func TestRecordReplySurvivesPersistFailure(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{failSet: true}
	tr := New(repo, discard())
	t0 := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	tr.RecordReply(ctx, "bob", t0)

	if repo.sets != 1 {
		t.Errorf("persist attempts = %d, want 1", repo.sets)
	}
	// In-memory state must hold even when the write failed.
	if tr.CanReply("bob", t0.Add(time.Hour)) {
		t.Errorf("CanReply = true, want false after in-memory record")
	}
}

func TestLoadRestoresEntries(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	repo := &fakeRepo{entries: []model.CooldownEntry{
		{Handle: "bob", LastReplyAt: t0},
		{Handle: "carol", LastReplyAt: t0.Add(-4 * time.Hour)},
	}}

	tr := New(repo, discard())
	if err := tr.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if tr.CanReply("bob", t0.Add(time.Hour)) {
		t.Errorf("CanReply(bob) = true, want false from restored entry")
	}
	if !tr.CanReply("carol", t0) {
		t.Errorf("CanReply(carol) = false, want true: window elapsed before load")
	}
}
