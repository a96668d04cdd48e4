// Package engine drives the automation loop: capture, score, rank, pace,
// and commit interactions under the safety and approval workflows.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"engagepilot/internal/approval"
	"engagepilot/internal/capture"
	"engagepilot/internal/cooldown"
	"engagepilot/internal/model"
	"engagepilot/internal/reply"
	"engagepilot/internal/safety"
	"engagepilot/internal/scorer"
	"engagepilot/internal/storage"
)

// Notifier receives outbound engine events for the control surface.
type Notifier interface {
	Accomplishment(msg string)
}

// Pacing defaults.
const (
	topK              = 5
	replyFloor        = 10
	interactionPause  = 300 * time.Millisecond
	interCycleDelay   = 5 * time.Second
	errorBackoff      = 5 * time.Second
	pausedPoll        = 2 * time.Second
	maxMentionActions = 10

	processedHighWater = 100
	processedKeep      = 50

	defaultWatchdogInterval = 30 * time.Second
	defaultStallThreshold   = 2 * time.Minute
)

// Options configures an Engine.
type Options struct {
	ActionDelay          time.Duration
	NotificationInterval time.Duration
	ReplyTone            string

	// Watchdog knobs; zero values select the defaults.
	WatchdogInterval time.Duration
	StallThreshold   time.Duration
}

// Engine owns the cooperative automation loop and its watchdog.
// All decision state is mutated by the loop goroutine only; the watchdog
// shares nothing but the atomic last-action timestamp.
type Engine struct {
	source    capture.Source
	actuator  capture.Actuator
	generator reply.Generator // nil disables the reply path
	approvals *approval.Broker
	cooldowns *cooldown.Tracker
	governor  *safety.Governor
	scorer    *scorer.Scorer
	store     storage.Storage
	notifier  Notifier
	log       *slog.Logger
	opts      Options

	running    atomic.Bool
	lastAction atomic.Int64 // unix nanos of the last completed action
	tone       atomic.Pointer[string]

	processed      map[string]struct{}
	processedOrder []string
	lastMentions   time.Time

	now func() time.Time
}

// New assembles an Engine from its collaborators.
func New(
	source capture.Source,
	actuator capture.Actuator,
	generator reply.Generator,
	approvals *approval.Broker,
	cooldowns *cooldown.Tracker,
	governor *safety.Governor,
	sc *scorer.Scorer,
	store storage.Storage,
	notifier Notifier,
	log *slog.Logger,
	opts Options,
) *Engine {
	if opts.WatchdogInterval <= 0 {
		opts.WatchdogInterval = defaultWatchdogInterval
	}
	if opts.StallThreshold <= 0 {
		opts.StallThreshold = defaultStallThreshold
	}
	e := &Engine{
		source:    source,
		actuator:  actuator,
		generator: generator,
		approvals: approvals,
		cooldowns: cooldowns,
		governor:  governor,
		scorer:    sc,
		store:     store,
		notifier:  notifier,
		log:       log,
		opts:      opts,
		processed: make(map[string]struct{}),
		now:       time.Now,
	}
	e.running.Store(true)
	e.tone.Store(&opts.ReplyTone)
	return e
}

// Pause stops the loop from starting new cycles. In-flight work finishes.
func (e *Engine) Pause() { e.running.Store(false) }

// Resume lets the loop start cycles again.
func (e *Engine) Resume() { e.running.Store(true) }

// IsRunning reports whether the loop is accepting new cycles.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// Tone returns the tone used when drafting replies.
func (e *Engine) Tone() string { return *e.tone.Load() }

// SetTone changes the tone for subsequently drafted replies.
func (e *Engine) SetTone(tone string) { e.tone.Store(&tone) }

// Load restores the processed set from storage.
func (e *Engine) Load(ctx context.Context) error {
	ids, err := e.store.ListProcessed(ctx)
	if err != nil {
		return &PersistenceError{Err: err}
	}
	for _, id := range ids {
		e.processed[id] = struct{}{}
		e.processedOrder = append(e.processedOrder, id)
	}
	return nil
}

// Run drives the automation loop until ctx is cancelled. Cycle errors are
// logged and backed off; they never end the loop.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info("automation loop started")
	e.touch()

	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		e.watchdog(ctx)
	}()

	for {
		if ctx.Err() != nil {
			break
		}
		if !e.running.Load() {
			sleepCtx(ctx, pausedPoll)
			continue
		}
		if err := e.cycle(ctx); err != nil {
			e.log.Error("cycle failed", "error", err)
			sleepCtx(ctx, errorBackoff)
		}
	}

	<-watchdogDone
	e.log.Info("automation loop stopped")
}

func (e *Engine) cycle(ctx context.Context) error {
	now := e.now()
	e.governor.MaybeResetDaily(ctx, now)

	if e.governor.ShouldPause(now) {
		session, daily := e.governor.Counters()
		e.log.Info("taking a safety pause",
			"session", session, "daily", daily, "duration", e.governor.PauseDuration())
		e.governor.PauseStarted(now)
		sleepCtx(ctx, e.governor.PauseDuration())
		return nil
	}

	if now.Sub(e.lastMentions) >= e.opts.NotificationInterval {
		e.checkMentions(ctx)
		e.lastMentions = now
	}

	if err := e.scanFeed(ctx); err != nil {
		return err
	}

	sleepCtx(ctx, e.opts.ActionDelay)
	sleepCtx(ctx, interCycleDelay)
	return nil
}

// scanFeed runs one feed pass: fetch, score, rank, and process the top
// candidates. At most one reply is committed per pass.
func (e *Engine) scanFeed(ctx context.Context) error {
	candidates, err := e.source.FetchCandidates(ctx)
	if err != nil {
		return &CaptureError{Err: err}
	}

	filters, err := e.loadFilters(ctx)
	if err != nil {
		return err
	}

	now := e.now()
	var scored []scorer.Scored
	for _, c := range candidates {
		if c.ID == "" || c.Text == "" || c.Author == "" {
			continue
		}
		if _, done := e.processed[c.ID]; done {
			continue
		}
		result := e.scorer.Score(c, filters, now)
		e.log.Debug("scored candidate",
			"candidate_id", c.ID,
			"author", c.Author,
			"score", result.Score,
			"should_process", result.ShouldProcess,
			"should_reply", result.ShouldReply,
			"reason", result.Reason,
		)
		if result.ShouldProcess {
			scored = append(scored, scorer.Scored{Candidate: c, Result: result})
		}
	}

	scorer.Rank(scored)
	top := scored
	if len(top) > topK {
		top = top[:topK]
	}

	if len(top) == 0 {
		e.log.Debug("no candidates worth engaging, scrolling")
		if err := e.source.Scroll(ctx); err != nil {
			e.log.Error("scroll", "error", err)
		}
		return nil
	}

	e.log.Info("processing top candidates", "count", len(top), "scanned", len(candidates))

	for _, sc := range top {
		if ctx.Err() != nil {
			return nil
		}
		if !e.cooldowns.CanReply(sc.Candidate.Author, e.now()) {
			e.log.Debug("cooldown active, skipping", "author", sc.Candidate.Author)
			continue
		}

		if err := e.actuator.Like(ctx, sc.Candidate.ID); err != nil {
			e.log.Error("like failed, skipping candidate",
				"error", &ActuatorError{Op: "like", Err: err}, "candidate_id", sc.Candidate.ID)
			continue
		}
		e.markProcessed(ctx, sc.Candidate.ID)
		e.actionCompleted(ctx)
		e.notifier.Accomplishment(fmt.Sprintf("Liked @%s: %s", sc.Candidate.Author, snippet(sc.Candidate.Text)))

		if sc.Result.ShouldReply && sc.Result.Score >= replyFloor {
			if e.driveReply(ctx, sc) {
				// One committed reply per cycle.
				break
			}
		}

		sleepCtx(ctx, interactionPause)
	}
	return nil
}

// checkMentions likes and optionally replies to posts mentioning the
// account. Failures are logged; the feed pass still runs.
func (e *Engine) checkMentions(ctx context.Context) {
	mentions, err := e.source.FetchMentions(ctx)
	if err != nil {
		e.log.Error("check mentions", "error", &CaptureError{Err: err})
		return
	}

	filters, err := e.loadFilters(ctx)
	if err != nil {
		e.log.Error("check mentions", "error", err)
		return
	}

	actions := 0
	for _, c := range mentions {
		if ctx.Err() != nil || actions >= maxMentionActions {
			return
		}
		if c.ID == "" || c.Text == "" || c.Author == "" {
			continue
		}
		if _, done := e.processed[c.ID]; done {
			continue
		}

		result := e.scorer.Score(c, filters, e.now())
		if !result.ShouldProcess {
			continue
		}
		if !e.cooldowns.CanReply(c.Author, e.now()) {
			e.log.Debug("cooldown active, skipping mention", "author", c.Author)
			continue
		}

		if err := e.actuator.Like(ctx, c.ID); err != nil {
			e.log.Error("like mention failed",
				"error", &ActuatorError{Op: "like", Err: err}, "candidate_id", c.ID)
			continue
		}
		e.markProcessed(ctx, c.ID)
		e.actionCompleted(ctx)
		actions++

		if result.ShouldReply {
			e.driveReply(ctx, scorer.Scored{Candidate: c, Result: result})
		}
	}
}

// driveReply drafts a reply and walks the approval workflow to a terminal
// state. It reports whether a reply was committed.
func (e *Engine) driveReply(ctx context.Context, sc scorer.Scored) bool {
	if e.generator == nil {
		return false
	}

	prompt := reply.Prompt{
		SourceText:      sc.Candidate.Text,
		Context:         reply.BuildContext(sc.Candidate.Text, sc.Candidate.Author, sc.Result.Reason),
		Tone:            *e.tone.Load(),
		Reason:          sc.Result.Reason,
		MatchedKeywords: sc.Result.MatchedKeywords,
	}

	draft, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		e.log.Error("draft reply", "error", &GenerationError{Err: err}, "candidate_id", sc.Candidate.ID)
		return false
	}

	regenerations := 0
	for {
		decision, err := e.approvals.Request(ctx, model.ApprovalRequest{
			CandidateID:  sc.Candidate.ID,
			CandidateTxt: sc.Candidate.Text,
			AuthorHandle: sc.Candidate.Author,
			DraftText:    draft,
		})
		if err != nil {
			e.log.Error("approval request", "error", err, "candidate_id", sc.Candidate.ID)
			return false
		}

		switch decision.Kind {
		case model.DecisionSkipped:
			e.log.Info("reply skipped by reviewer", "candidate_id", sc.Candidate.ID)
			return false

		case model.DecisionRegenerated:
			regenerations++
			if regenerations > approval.MaxRegenerations {
				e.log.Warn("regeneration limit reached, skipping",
					"candidate_id", sc.Candidate.ID, "limit", approval.MaxRegenerations)
				return false
			}
			draft, err = e.generator.Generate(ctx, prompt)
			if err != nil {
				e.log.Error("regenerate reply", "error", &GenerationError{Err: err})
				return false
			}
			continue

		case model.DecisionAccepted, model.DecisionManualInput:
			text := draft
			if decision.Kind == model.DecisionManualInput {
				text = decision.Text
			}
			if err := e.actuator.PostReply(ctx, sc.Candidate.ID, text, decision.ImageRef); err != nil {
				e.log.Error("post reply",
					"error", &ActuatorError{Op: "reply", Err: err}, "candidate_id", sc.Candidate.ID)
				return false
			}
			// Cooldown and processed-set move together on a committed reply.
			e.cooldowns.RecordReply(ctx, sc.Candidate.Author, e.now())
			e.markProcessed(ctx, sc.Candidate.ID)
			e.actionCompleted(ctx)
			e.notifier.Accomplishment(fmt.Sprintf("Replied to @%s: %s", sc.Candidate.Author, snippet(text)))
			return true

		default:
			e.log.Warn("unknown decision kind", "kind", decision.Kind)
			return false
		}
	}
}

func (e *Engine) loadFilters(ctx context.Context) (model.Filters, error) {
	rules, err := e.store.ListRules(ctx)
	if err != nil {
		return model.Filters{}, &PersistenceError{Err: err}
	}
	return model.BuildFilters(rules), nil
}

// markProcessed records an interacted candidate, bounding the in-memory
// set and mirroring it to storage best-effort.
func (e *Engine) markProcessed(ctx context.Context, candidateID string) {
	if _, ok := e.processed[candidateID]; ok {
		return
	}
	e.processed[candidateID] = struct{}{}
	e.processedOrder = append(e.processedOrder, candidateID)

	if err := e.store.MarkProcessed(ctx, candidateID); err != nil {
		e.log.Error("persist processed", "error", &PersistenceError{Err: err})
	}

	if len(e.processedOrder) > processedHighWater {
		drop := e.processedOrder[:len(e.processedOrder)-processedKeep]
		for _, id := range drop {
			delete(e.processed, id)
		}
		e.processedOrder = append([]string(nil), e.processedOrder[len(e.processedOrder)-processedKeep:]...)
		if err := e.store.TrimProcessed(ctx, processedKeep); err != nil {
			e.log.Error("trim processed", "error", &PersistenceError{Err: err})
		}
	}
}

func (e *Engine) actionCompleted(ctx context.Context) {
	e.touch()
	e.governor.ActionCompleted(ctx, e.now())
}

func (e *Engine) touch() {
	e.lastAction.Store(e.now().UnixNano())
}

// ProcessedCount returns the size of the in-memory processed set.
func (e *Engine) ProcessedCount() int {
	return len(e.processedOrder)
}

// watchdog watches the last-action timestamp and triggers actuator
// recovery when the loop looks stalled. Its read is advisory; a spurious
// recovery is cheap.
func (e *Engine) watchdog(ctx context.Context) {
	ticker := time.NewTicker(e.opts.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, e.lastAction.Load())
			if e.now().Sub(last) <= e.opts.StallThreshold {
				continue
			}
			e.log.Warn("watchdog: no actions past stall threshold, recovering",
				"last_action", last, "threshold", e.opts.StallThreshold)
			if err := e.actuator.Recover(ctx); err != nil {
				e.log.Error("watchdog recovery", "error", err)
			}
			e.touch()
		}
	}
}

func snippet(text string) string {
	const max = 100
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
