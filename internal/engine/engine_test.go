package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"engagepilot/internal/approval"
	"engagepilot/internal/cooldown"
	"engagepilot/internal/model"
	"engagepilot/internal/reply"
	"engagepilot/internal/safety"
	"engagepilot/internal/scorer"
	"engagepilot/internal/storage"
)

type fakeSource struct {
	candidates []model.Candidate
	mentions   []model.Candidate
	fetchErr   error
	fetches    int
	scrolls    int
}

func (s *fakeSource) FetchCandidates(_ context.Context) ([]model.Candidate, error) {
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.candidates, nil
}

func (s *fakeSource) FetchMentions(_ context.Context) ([]model.Candidate, error) {
	return s.mentions, nil
}

func (s *fakeSource) Scroll(_ context.Context) error {
	s.scrolls++
	return nil
}

type postedReply struct {
	CandidateID string
	Text        string
	ImageRef    string
}

type fakeActuator struct {
	mu       sync.Mutex
	likes    []string
	replies  []postedReply
	likeErr  map[string]error
	recovers int
}

func (a *fakeActuator) Like(_ context.Context, candidateID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.likes = append(a.likes, candidateID)
	return a.likeErr[candidateID]
}

func (a *fakeActuator) PostReply(_ context.Context, candidateID, text, imageRef string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replies = append(a.replies, postedReply{CandidateID: candidateID, Text: text, ImageRef: imageRef})
	return nil
}

func (a *fakeActuator) Recover(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recovers++
	return nil
}

func (a *fakeActuator) recoverCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recovers
}

type fakeGenerator struct {
	calls int
	err   error
}

func (g *fakeGenerator) Generate(_ context.Context, _ reply.Prompt) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.calls++
	return fmt.Sprintf("draft %d", g.calls), nil
}

// scriptedReviewer resolves each approval request with the next scripted
// decision, defaulting to an accept once the script runs out.
type scriptedReviewer struct {
	broker   *approval.Broker
	script   []model.Decision
	requests []model.ApprovalRequest
}

func (r *scriptedReviewer) ApprovalRequested(req model.ApprovalRequest) {
	r.requests = append(r.requests, req)
	d := model.Decision{Kind: model.DecisionAccepted}
	if len(r.script) > 0 {
		d = r.script[0]
		r.script = r.script[1:]
	}
	d.RequestID = req.ID
	r.broker.Resolve(d)
}

type noteCollector struct {
	mu    sync.Mutex
	notes []string
}

func (n *noteCollector) Accomplishment(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, msg)
}

func (n *noteCollector) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	cp := make([]string, len(n.notes))
	copy(cp, n.notes)
	return cp
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testOpts() Options {
	return Options{NotificationInterval: time.Hour, ReplyTone: "casual"}
}

func newTestEngine(
	t *testing.T,
	src *fakeSource,
	act *fakeActuator,
	gen reply.Generator,
	script []model.Decision,
	opts Options,
) (*Engine, *scriptedReviewer, *noteCollector) {
	t.Helper()

	store := newTestStore(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	reviewer := &scriptedReviewer{script: script}
	broker := approval.New(reviewer, 2*time.Second, log)
	reviewer.broker = broker

	cooldowns := cooldown.New(store, log)
	governor := safety.New(store, model.SafetyLimits{
		MaxDailyInteractions:  100,
		PauseAfterInteraction: 2,
		PauseDuration:         10 * time.Millisecond,
	}, log)
	if err := governor.Load(context.Background(), time.Now()); err != nil {
		t.Fatalf("load governor: %v", err)
	}

	notes := &noteCollector{}
	e := New(src, act, gen, broker, cooldowns, governor, scorer.New(scorer.DefaultWeights()), store, notes, log, opts)
	return e, reviewer, notes
}

func addFocusRule(t *testing.T, store *storage.SQLite, keyword string) {
	t.Helper()
	rule := model.FilterRule{Kind: model.RuleFocus, Value: keyword}
	if err := store.CreateRule(context.Background(), &rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}
}

func feedPost(id, author, text string) model.Candidate {
	return model.Candidate{ID: id, Author: author, Text: text, CapturedAt: time.Now()}
}

func TestScanFeedLikesAndReplies(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{candidates: []model.Candidate{
		feedPost("post-1", "alice", "What does everyone think about kubernetes networking?"),
	}}
	act := &fakeActuator{}
	gen := &fakeGenerator{}

	e, reviewer, notes := newTestEngine(t, src, act, gen, nil, testOpts())
	addFocusRule(t, e.store.(*storage.SQLite), "kubernetes")

	if err := e.scanFeed(ctx); err != nil {
		t.Fatalf("scan feed: %v", err)
	}

	if len(act.likes) != 1 || act.likes[0] != "post-1" {
		t.Errorf("likes = %v, want [post-1]", act.likes)
	}
	if len(act.replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(act.replies))
	}
	if act.replies[0].Text != "draft 1" {
		t.Errorf("reply text = %q, want %q", act.replies[0].Text, "draft 1")
	}
	if len(reviewer.requests) != 1 {
		t.Fatalf("approval requests = %d, want 1", len(reviewer.requests))
	}
	req := reviewer.requests[0]
	if req.CandidateID != "post-1" || req.AuthorHandle != "alice" || req.DraftText != "draft 1" {
		t.Errorf("unexpected approval request: %+v", req)
	}

	// A committed reply moves cooldown, processed set, and counters together.
	if e.cooldowns.CanReply("alice", time.Now()) {
		t.Error("expected alice to be on cooldown after a committed reply")
	}
	if e.ProcessedCount() != 1 {
		t.Errorf("processed count = %d, want 1", e.ProcessedCount())
	}
	ids, err := e.store.ListProcessed(ctx)
	if err != nil {
		t.Fatalf("list processed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "post-1" {
		t.Errorf("persisted processed = %v, want [post-1]", ids)
	}
	if session, daily := e.governor.Counters(); session != 2 || daily != 2 {
		t.Errorf("counters = (%d, %d), want (2, 2)", session, daily)
	}

	got := notes.all()
	if len(got) != 2 ||
		!strings.HasPrefix(got[0], "Liked @alice") ||
		!strings.HasPrefix(got[1], "Replied to @alice") {
		t.Errorf("unexpected accomplishments: %v", got)
	}
}

func TestScanFeedOneReplyPerPass(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{candidates: []model.Candidate{
		feedPost("post-1", "alice", "What does everyone think about kubernetes networking?"),
		feedPost("post-2", "bob", "How is everyone handling kubernetes upgrades?"),
	}}
	act := &fakeActuator{}
	gen := &fakeGenerator{}

	e, reviewer, _ := newTestEngine(t, src, act, gen, nil, testOpts())
	addFocusRule(t, e.store.(*storage.SQLite), "kubernetes")

	if err := e.scanFeed(ctx); err != nil {
		t.Fatalf("scan feed: %v", err)
	}

	if len(act.replies) != 1 {
		t.Errorf("replies = %d, want 1", len(act.replies))
	}
	if len(reviewer.requests) != 1 {
		t.Errorf("approval requests = %d, want 1", len(reviewer.requests))
	}
	// The pass stops after the committed reply; the runner-up stays fresh
	// for the next cycle.
	if len(act.likes) != 1 {
		t.Errorf("likes = %v, want a single like", act.likes)
	}
}

func TestScanFeedCooldownSkips(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{candidates: []model.Candidate{
		feedPost("post-1", "alice", "What does everyone think about kubernetes networking?"),
	}}
	act := &fakeActuator{}

	e, _, _ := newTestEngine(t, src, act, &fakeGenerator{}, nil, testOpts())
	addFocusRule(t, e.store.(*storage.SQLite), "kubernetes")
	e.cooldowns.RecordReply(ctx, "alice", time.Now())

	if err := e.scanFeed(ctx); err != nil {
		t.Fatalf("scan feed: %v", err)
	}

	if len(act.likes) != 0 || len(act.replies) != 0 {
		t.Errorf("expected no interactions under cooldown, got likes=%v replies=%v", act.likes, act.replies)
	}
	if e.ProcessedCount() != 0 {
		t.Errorf("processed count = %d, want 0", e.ProcessedCount())
	}
}

func TestScanFeedLikeFailureSkipsCandidate(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{candidates: []model.Candidate{
		{ID: "post-1", Author: "alice", Text: "zzzz zzzz zzzz zzzz zzzz", IsReply: true, CapturedAt: time.Now()},
		{ID: "post-2", Author: "bob", Text: "zzzz zzzz zzzz zzzz zz", IsReply: true, CapturedAt: time.Now()},
	}}
	act := &fakeActuator{likeErr: map[string]error{"post-1": errors.New("element went stale")}}

	e, _, _ := newTestEngine(t, src, act, &fakeGenerator{}, nil, testOpts())

	if err := e.scanFeed(ctx); err != nil {
		t.Fatalf("scan feed: %v", err)
	}

	// The failed like skips only its own candidate.
	ids, err := e.store.ListProcessed(ctx)
	if err != nil {
		t.Fatalf("list processed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "post-2" {
		t.Errorf("persisted processed = %v, want [post-2]", ids)
	}
	if e.ProcessedCount() != 1 {
		t.Errorf("processed count = %d, want 1", e.ProcessedCount())
	}
}

func TestScanFeedSkipDecisionLeavesCooldownUntouched(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{candidates: []model.Candidate{
		feedPost("post-1", "alice", "What does everyone think about kubernetes networking?"),
	}}
	act := &fakeActuator{}

	script := []model.Decision{{Kind: model.DecisionSkipped}}
	e, reviewer, _ := newTestEngine(t, src, act, &fakeGenerator{}, script, testOpts())
	addFocusRule(t, e.store.(*storage.SQLite), "kubernetes")

	if err := e.scanFeed(ctx); err != nil {
		t.Fatalf("scan feed: %v", err)
	}

	if len(reviewer.requests) != 1 {
		t.Fatalf("approval requests = %d, want 1", len(reviewer.requests))
	}
	if len(act.replies) != 0 {
		t.Errorf("replies = %v, want none after a skip", act.replies)
	}
	// The like still counts; the skipped reply must not start a cooldown.
	if len(act.likes) != 1 {
		t.Errorf("likes = %v, want [post-1]", act.likes)
	}
	if !e.cooldowns.CanReply("alice", time.Now()) {
		t.Error("skip decision must not put the author on cooldown")
	}
}

func TestScanFeedManualInputPostsProvidedText(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{candidates: []model.Candidate{
		feedPost("post-1", "alice", "What does everyone think about kubernetes networking?"),
	}}
	act := &fakeActuator{}

	script := []model.Decision{{Kind: model.DecisionManualInput, Text: "hand-written reply"}}
	e, _, _ := newTestEngine(t, src, act, &fakeGenerator{}, script, testOpts())
	addFocusRule(t, e.store.(*storage.SQLite), "kubernetes")

	if err := e.scanFeed(ctx); err != nil {
		t.Fatalf("scan feed: %v", err)
	}

	if len(act.replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(act.replies))
	}
	if act.replies[0].Text != "hand-written reply" {
		t.Errorf("reply text = %q, want the manual text", act.replies[0].Text)
	}
	if e.cooldowns.CanReply("alice", time.Now()) {
		t.Error("expected alice to be on cooldown after a manual reply")
	}
}

func TestDriveReplyRegenerationLimit(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{candidates: []model.Candidate{
		feedPost("post-1", "alice", "What does everyone think about kubernetes networking?"),
	}}
	act := &fakeActuator{}
	gen := &fakeGenerator{}

	script := []model.Decision{
		{Kind: model.DecisionRegenerated},
		{Kind: model.DecisionRegenerated},
		{Kind: model.DecisionRegenerated},
		{Kind: model.DecisionRegenerated},
	}
	e, reviewer, _ := newTestEngine(t, src, act, gen, script, testOpts())
	addFocusRule(t, e.store.(*storage.SQLite), "kubernetes")

	if err := e.scanFeed(ctx); err != nil {
		t.Fatalf("scan feed: %v", err)
	}

	// Initial request plus one per allowed regeneration, then fall back to
	// a skip instead of looping forever.
	wantRequests := approval.MaxRegenerations + 1
	if len(reviewer.requests) != wantRequests {
		t.Errorf("approval requests = %d, want %d", len(reviewer.requests), wantRequests)
	}
	if gen.calls != wantRequests {
		t.Errorf("generator calls = %d, want %d", gen.calls, wantRequests)
	}
	if len(act.replies) != 0 {
		t.Errorf("replies = %v, want none", act.replies)
	}
	if !e.cooldowns.CanReply("alice", time.Now()) {
		t.Error("abandoned reply must not put the author on cooldown")
	}
}

func TestScanFeedWithoutGeneratorLikesOnly(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{candidates: []model.Candidate{
		feedPost("post-1", "alice", "What does everyone think about kubernetes networking?"),
	}}
	act := &fakeActuator{}

	e, reviewer, _ := newTestEngine(t, src, act, nil, nil, testOpts())
	addFocusRule(t, e.store.(*storage.SQLite), "kubernetes")

	if err := e.scanFeed(ctx); err != nil {
		t.Fatalf("scan feed: %v", err)
	}

	if len(act.likes) != 1 {
		t.Errorf("likes = %v, want [post-1]", act.likes)
	}
	if len(reviewer.requests) != 0 || len(act.replies) != 0 {
		t.Errorf("expected like-only mode, got requests=%d replies=%d", len(reviewer.requests), len(act.replies))
	}
}

func TestScanFeedScrollsWhenNothingQualifies(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	act := &fakeActuator{}

	e, _, _ := newTestEngine(t, src, act, &fakeGenerator{}, nil, testOpts())

	if err := e.scanFeed(ctx); err != nil {
		t.Fatalf("scan feed: %v", err)
	}
	if src.scrolls != 1 {
		t.Errorf("scrolls = %d, want 1", src.scrolls)
	}
}

func TestLoadRestoresProcessedSet(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{candidates: []model.Candidate{
		feedPost("seen-1", "alice", "zzzz zzzz zzzz zzzz zzzz"),
	}}
	act := &fakeActuator{}

	e, _, _ := newTestEngine(t, src, act, &fakeGenerator{}, nil, testOpts())
	if err := e.store.MarkProcessed(ctx, "seen-1"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := e.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := e.scanFeed(ctx); err != nil {
		t.Fatalf("scan feed: %v", err)
	}

	if len(act.likes) != 0 {
		t.Errorf("likes = %v, want none for an already-processed candidate", act.likes)
	}
	if src.scrolls != 1 {
		t.Errorf("scrolls = %d, want 1", src.scrolls)
	}
}

func TestCheckMentionsRepliesToMention(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{mentions: []model.Candidate{
		{
			ID:         "mention-1",
			Author:     "carol",
			Text:       "Thanks for the write-up, what changed in this release?",
			IsReply:    true,
			CapturedAt: time.Now(),
		},
	}}
	act := &fakeActuator{}

	e, _, _ := newTestEngine(t, src, act, &fakeGenerator{}, nil, testOpts())

	e.checkMentions(ctx)

	if len(act.likes) != 1 || act.likes[0] != "mention-1" {
		t.Errorf("likes = %v, want [mention-1]", act.likes)
	}
	if len(act.replies) != 1 {
		t.Errorf("replies = %d, want 1", len(act.replies))
	}
	if e.cooldowns.CanReply("carol", time.Now()) {
		t.Error("expected carol to be on cooldown after the mention reply")
	}
}

func TestCyclePausesWhenGovernorSaysSo(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	act := &fakeActuator{}

	e, _, _ := newTestEngine(t, src, act, &fakeGenerator{}, nil, testOpts())

	// Two completed actions hit the session limit configured for tests.
	e.governor.ActionCompleted(ctx, time.Now())
	e.governor.ActionCompleted(ctx, time.Now())

	if err := e.cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if src.fetches != 0 {
		t.Errorf("fetches = %d, want 0 during a safety pause", src.fetches)
	}
}

func TestMarkProcessedTrims(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, &fakeSource{}, &fakeActuator{}, nil, nil, testOpts())

	for i := 0; i <= processedHighWater; i++ {
		e.markProcessed(ctx, fmt.Sprintf("id-%03d", i))
	}

	if e.ProcessedCount() != processedKeep {
		t.Errorf("processed count = %d, want %d", e.ProcessedCount(), processedKeep)
	}
	if _, ok := e.processed["id-000"]; ok {
		t.Error("oldest id should have been evicted")
	}
	if _, ok := e.processed[fmt.Sprintf("id-%03d", processedHighWater)]; !ok {
		t.Error("newest id should have been kept")
	}

	ids, err := e.store.ListProcessed(ctx)
	if err != nil {
		t.Fatalf("list processed: %v", err)
	}
	if len(ids) != processedKeep {
		t.Errorf("persisted processed = %d rows, want %d", len(ids), processedKeep)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	act := &fakeActuator{}

	e, _, _ := newTestEngine(t, src, act, &fakeGenerator{}, nil, testOpts())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestWatchdogRecoversAfterStall(t *testing.T) {
	act := &fakeActuator{}
	opts := testOpts()
	opts.WatchdogInterval = 10 * time.Millisecond
	opts.StallThreshold = 20 * time.Millisecond

	e, _, _ := newTestEngine(t, &fakeSource{}, act, nil, nil, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.watchdog(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for act.recoverCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if act.recoverCount() == 0 {
		t.Fatal("watchdog never triggered recovery")
	}
}
