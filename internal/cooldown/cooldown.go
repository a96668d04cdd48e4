// Package cooldown enforces the per-author reply cooldown window.
package cooldown

import (
	"context"
	"log/slog"
	"time"

	"engagepilot/internal/model"
)

// Window is the minimum time between two replies to the same author.
const Window = 3 * time.Hour

// Repository persists cooldown entries.
type Repository interface {
	UpsertCooldown(ctx context.Context, entry model.CooldownEntry) error
	ListCooldowns(ctx context.Context) ([]model.CooldownEntry, error)
}

// Tracker keeps the last-reply time per normalized handle. An author with
// no entry is always eligible. State is mutated only by the engine
// goroutine; persistence is best-effort.
type Tracker struct {
	repo      Repository
	window    time.Duration
	lastReply map[string]time.Time
	log       *slog.Logger
}

// New creates a Tracker with the default 3-hour window.
func New(repo Repository, log *slog.Logger) *Tracker {
	return &Tracker{
		repo:      repo,
		window:    Window,
		lastReply: make(map[string]time.Time),
		log:       log,
	}
}

// SetWindow overrides the cooldown window (useful for testing).
func (t *Tracker) SetWindow(d time.Duration) {
	t.window = d
}

// Load restores persisted entries into memory.
func (t *Tracker) Load(ctx context.Context) error {
	entries, err := t.repo.ListCooldowns(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		handle := model.NormalizeHandle(e.Handle)
		if handle == "" {
			continue
		}
		t.lastReply[handle] = e.LastReplyAt
	}
	t.log.Debug("loaded cooldown entries", "count", len(entries))
	return nil
}

// CanReply reports whether a reply to the handle is allowed at now.
func (t *Tracker) CanReply(handle string, now time.Time) bool {
	h := model.NormalizeHandle(handle)
	if h == "" {
		return false
	}
	last, ok := t.lastReply[h]
	if !ok {
		return true
	}
	return now.Sub(last) >= t.window
}

// RecordReply marks a successful reply to the handle at now. The in-memory
// entry is updated even when the persistence write fails.
func (t *Tracker) RecordReply(ctx context.Context, handle string, now time.Time) {
	h := model.NormalizeHandle(handle)
	if h == "" {
		t.log.Warn("record reply with invalid handle", "handle", handle)
		return
	}
	t.lastReply[h] = now

	err := t.repo.UpsertCooldown(ctx, model.CooldownEntry{Handle: h, LastReplyAt: now})
	if err != nil {
		t.log.Error("persist cooldown", "handle", h, "error", err)
	}
}

// Len returns the number of tracked handles.
func (t *Tracker) Len() int {
	return len(t.lastReply)
}
