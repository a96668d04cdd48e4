// Package capture defines the collaborator contracts for reading posts
// and acting on them, plus an RSS-backed capture source.
package capture

import (
	"context"
	"log/slog"

	"engagepilot/internal/model"
)

// Source produces candidate posts for the engine to evaluate.
type Source interface {
	// FetchCandidates returns the posts currently in view.
	FetchCandidates(ctx context.Context) ([]model.Candidate, error)
	// FetchMentions returns posts that reply to or mention the account.
	FetchMentions(ctx context.Context) ([]model.Candidate, error)
	// Scroll advances the view so the next fetch sees new content.
	Scroll(ctx context.Context) error
}

// Actuator performs the physical interactions. All methods are fallible;
// callers apply bounded retries at the call site.
type Actuator interface {
	Like(ctx context.Context, candidateID string) error
	PostReply(ctx context.Context, candidateID, text, imageRef string) error
	// Recover resynchronizes the actuator after a detected stall.
	Recover(ctx context.Context) error
}

// LogActuator is a dry-run Actuator that only logs what it would do.
type LogActuator struct {
	Log *slog.Logger
}

// Like logs the like that would be performed.
func (a *LogActuator) Like(_ context.Context, candidateID string) error {
	a.Log.Info("dry-run like", "candidate_id", candidateID)
	return nil
}

// PostReply logs the reply that would be posted.
func (a *LogActuator) PostReply(_ context.Context, candidateID, text, imageRef string) error {
	a.Log.Info("dry-run reply", "candidate_id", candidateID, "text", text, "image", imageRef)
	return nil
}

// Recover logs the recovery request.
func (a *LogActuator) Recover(_ context.Context) error {
	a.Log.Info("dry-run recover")
	return nil
}
