// Package approval implements the single-flight human approval workflow.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"engagepilot/internal/model"
)

// MaxRegenerations bounds how many fresh drafts one candidate may request
// before the workflow falls back to a skip.
const MaxRegenerations = 3

// Errors returned by Request.
var (
	// ErrPending is returned when a request is made while another is
	// still awaiting its decision.
	ErrPending = errors.New("approval request already pending")
	// ErrTimeout is returned when the configured decision timeout expires.
	ErrTimeout = errors.New("approval request timed out")
)

// Notifier delivers approval requests to the human reviewer.
type Notifier interface {
	ApprovalRequested(req model.ApprovalRequest)
}

// Broker matches approval requests with their decisions. At most one
// request may be pending at a time; the requesting goroutine blocks until
// Resolve is called with the matching request id, the context is
// cancelled, or the timeout (if any) expires.
type Broker struct {
	notifier Notifier
	timeout  time.Duration // zero means wait indefinitely
	log      *slog.Logger

	mu      sync.Mutex
	pending string
	result  chan model.Decision
}

// New creates a Broker. A zero timeout keeps the original behavior of
// waiting for a decision indefinitely.
func New(notifier Notifier, timeout time.Duration, log *slog.Logger) *Broker {
	return &Broker{notifier: notifier, timeout: timeout, log: log}
}

// Request sends the draft out for review and blocks until a decision
// arrives for it. The request id is assigned here.
func (b *Broker) Request(ctx context.Context, req model.ApprovalRequest) (model.Decision, error) {
	b.mu.Lock()
	if b.pending != "" {
		b.mu.Unlock()
		return model.Decision{}, ErrPending
	}
	req.ID = uuid.NewString()
	result := make(chan model.Decision, 1)
	b.pending = req.ID
	b.result = result
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.pending == req.ID {
			b.pending = ""
			b.result = nil
		}
		b.mu.Unlock()
	}()

	b.log.Info("approval requested",
		"request_id", req.ID,
		"candidate_id", req.CandidateID,
		"author", req.AuthorHandle,
	)
	b.notifier.ApprovalRequested(req)

	var timeoutCh <-chan time.Time
	if b.timeout > 0 {
		timer := time.NewTimer(b.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case decision := <-result:
		return decision, nil
	case <-timeoutCh:
		b.log.Warn("approval request timed out", "request_id", req.ID)
		return model.Decision{}, ErrTimeout
	case <-ctx.Done():
		return model.Decision{}, ctx.Err()
	}
}

// Resolve delivers a decision for the pending request. It reports whether
// the decision matched an outstanding request; decisions for unknown or
// already-resolved ids are dropped.
func (b *Broker) Resolve(decision model.Decision) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == "" || b.pending != decision.RequestID {
		b.log.Warn("decision for unknown request", "request_id", decision.RequestID)
		return false
	}
	b.result <- decision
	b.pending = ""
	b.result = nil
	return true
}

// PendingID returns the id of the outstanding request, or "" if none.
func (b *Broker) PendingID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}
