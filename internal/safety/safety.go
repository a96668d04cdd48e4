// Package safety tracks interaction volume and decides when the engine
// must pause.
package safety

import (
	"context"
	"log/slog"
	"time"

	"engagepilot/internal/model"
)

// Repository persists the daily interaction counter.
type Repository interface {
	GetDailyCount(ctx context.Context, day string) (int, error)
	UpsertDailyCount(ctx context.Context, day string, count int) error
}

// DayLayout formats a local calendar day for the daily counter key.
const DayLayout = "2006-01-02"

// Governor decides when the engine must pause and for how long.
// Counters are mutated only by the engine goroutine.
type Governor struct {
	repo   Repository
	limits model.SafetyLimits
	log    *slog.Logger

	session   int // interactions since the engine started
	daily     int
	day       string // local calendar day the daily counter belongs to
	lastPause time.Time
}

// New creates a Governor with the given limits.
func New(repo Repository, limits model.SafetyLimits, log *slog.Logger) *Governor {
	return &Governor{repo: repo, limits: limits, log: log}
}

// Load restores today's persisted interaction count so restarts do not
// reset the daily limit.
func (g *Governor) Load(ctx context.Context, now time.Time) error {
	day := now.Format(DayLayout)
	count, err := g.repo.GetDailyCount(ctx, day)
	if err != nil {
		return err
	}
	g.day = day
	g.daily = count
	return nil
}

// ShouldPause reports whether the engine must take a safety pause at now.
func (g *Governor) ShouldPause(now time.Time) bool {
	if g.limits.MaxDailyInteractions > 0 && g.daily >= g.limits.MaxDailyInteractions {
		return true
	}
	if g.limits.PauseAfterInteraction > 0 && g.session >= g.limits.PauseAfterInteraction {
		if g.lastPause.IsZero() || now.Sub(g.lastPause) > g.limits.PauseDuration {
			return true
		}
	}
	return false
}

// PauseStarted records that a pause began at now.
func (g *Governor) PauseStarted(now time.Time) {
	g.lastPause = now
}

// PauseDuration returns how long a safety pause lasts.
func (g *Governor) PauseDuration() time.Duration {
	return g.limits.PauseDuration
}

// ActionCompleted counts a finished interaction and persists the daily
// total best-effort.
func (g *Governor) ActionCompleted(ctx context.Context, now time.Time) {
	g.MaybeResetDaily(ctx, now)
	g.session++
	g.daily++
	if err := g.repo.UpsertDailyCount(ctx, g.day, g.daily); err != nil {
		g.log.Error("persist daily count", "day", g.day, "error", err)
	}
}

// MaybeResetDaily resets the daily counter when the local calendar day has
// changed since the counter was last touched. Unlike a midnight-minute
// check, this catches up no matter when the next cycle runs.
func (g *Governor) MaybeResetDaily(ctx context.Context, now time.Time) {
	day := now.Format(DayLayout)
	if day == g.day {
		return
	}
	g.log.Info("daily counter reset", "previous_day", g.day, "day", day, "interactions", g.daily)
	g.day = day
	g.daily = 0
	if err := g.repo.UpsertDailyCount(ctx, g.day, 0); err != nil {
		g.log.Error("persist daily count", "day", g.day, "error", err)
	}
}

// Counters returns the current session and daily interaction counts.
func (g *Governor) Counters() (session, daily int) {
	return g.session, g.daily
}
