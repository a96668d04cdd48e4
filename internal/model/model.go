// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// PostStats holds the engagement counters captured with a post.
type PostStats struct {
	Likes   int
	Replies int
	Reposts int
}

// Candidate is a single captured post considered for interaction.
// It is immutable once produced by a capture source.
type Candidate struct {
	ID            string
	Author        string
	Text          string
	CapturedAt    time.Time
	Stats         PostStats
	HasMedia      bool
	IsReply       bool
	ReplyToAuthor string
	IsPromoted    bool
}

// Filters holds the keyword and user lists the scorer matches against.
// Membership checks are case-insensitive.
type Filters struct {
	FocusKeywords    []string
	SkipKeywords     []string
	PriorityUsers    []string
	LowPriorityUsers []string
}

// ScoreResult is the scorer's verdict for a single candidate.
type ScoreResult struct {
	Score           int
	ShouldProcess   bool
	ShouldReply     bool
	Reason          string
	Breakdown       []string
	MatchedKeywords []string
	IsPriorityUser  bool
}

// RuleKind defines which filter list a stored rule belongs to.
type RuleKind string

// Supported rule kinds.
const (
	RuleFocus       RuleKind = "focus"
	RuleSkip        RuleKind = "skip"
	RulePriority    RuleKind = "priority"
	RuleLowPriority RuleKind = "lowpriority"
)

// FilterRule is a single stored keyword or user rule.
type FilterRule struct {
	ID        int64
	Kind      RuleKind
	Value     string
	CreatedAt time.Time
}

// BuildFilters groups stored rules into the scorer's filter sets.
func BuildFilters(rules []FilterRule) Filters {
	var f Filters
	for _, r := range rules {
		switch r.Kind {
		case RuleFocus:
			f.FocusKeywords = append(f.FocusKeywords, r.Value)
		case RuleSkip:
			f.SkipKeywords = append(f.SkipKeywords, r.Value)
		case RulePriority:
			f.PriorityUsers = append(f.PriorityUsers, r.Value)
		case RuleLowPriority:
			f.LowPriorityUsers = append(f.LowPriorityUsers, r.Value)
		}
	}
	return f
}

// Source is a capture source the engine scans each cycle.
type Source struct {
	ID        int64
	Name      string
	URL       string
	IsActive  bool
	CreatedAt time.Time
}

// CooldownEntry records the last successful reply to a handle.
type CooldownEntry struct {
	Handle      string
	LastReplyAt time.Time
}

// SafetyLimits bounds the interaction volume of the engine.
type SafetyLimits struct {
	MaxDailyInteractions  int
	PauseAfterInteraction int
	PauseDuration         time.Duration
}

// DecisionKind identifies the outcome of an approval request.
type DecisionKind string

// Approval outcomes. Regenerated re-enters the pending state with a new
// draft; the other three are terminal.
const (
	DecisionAccepted    DecisionKind = "accepted"
	DecisionManualInput DecisionKind = "manual_input"
	DecisionRegenerated DecisionKind = "regenerated"
	DecisionSkipped     DecisionKind = "skipped"
)

// ApprovalRequest is a drafted reply awaiting a human decision.
type ApprovalRequest struct {
	ID           string
	CandidateID  string
	CandidateTxt string
	AuthorHandle string
	DraftText    string
	ImageRef     string
}

// Decision resolves a pending ApprovalRequest.
type Decision struct {
	RequestID string
	Kind      DecisionKind
	Text      string // manual reply text for DecisionManualInput
	ImageRef  string
}

// NormalizeHandle lowercases a handle and strips the leading "@".
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(h)
}
