package approval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"engagepilot/internal/model"
)

type recordingNotifier struct {
	mu       sync.Mutex
	requests []model.ApprovalRequest
}

func (n *recordingNotifier) ApprovalRequested(req model.ApprovalRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
}

func (n *recordingNotifier) last() model.ApprovalRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requests[len(n.requests)-1]
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestResolve(t *testing.T) {
	notifier := &recordingNotifier{}
	b := New(notifier, 0, discard())

	done := make(chan model.Decision, 1)
	go func() {
		d, err := b.Request(context.Background(), model.ApprovalRequest{
			CandidateID:  "c1",
			AuthorHandle: "bob",
			DraftText:    "nice post!",
		})
		if err != nil {
			t.Errorf("Request: %v", err)
		}
		done <- d
	}()

	// Wait for the request to reach the notifier.
	var id string
	for i := 0; i < 100; i++ {
		if id = b.PendingID(); id != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if id == "" {
		t.Fatalf("request never became pending")
	}
	if got := notifier.last().ID; got != id {
		t.Fatalf("notified request id = %q, pending = %q", got, id)
	}

	if !b.Resolve(model.Decision{RequestID: id, Kind: model.DecisionAccepted}) {
		t.Fatalf("Resolve = false, want true")
	}

	select {
	case d := <-done:
		if d.Kind != model.DecisionAccepted {
			t.Errorf("decision kind = %q, want accepted", d.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("Request did not return after Resolve")
	}
}

func TestSingleFlight(t *testing.T) {
	notifier := &recordingNotifier{}
	b := New(notifier, 0, discard())

	go func() {
		_, _ = b.Request(context.Background(), model.ApprovalRequest{CandidateID: "c1"})
	}()

	for i := 0; i < 100; i++ {
		if b.PendingID() != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, err := b.Request(context.Background(), model.ApprovalRequest{CandidateID: "c2"})
	if !errors.Is(err, ErrPending) {
		t.Errorf("second Request error = %v, want ErrPending", err)
	}

	b.Resolve(model.Decision{RequestID: b.PendingID(), Kind: model.DecisionSkipped})
}

func TestResolveUnknownID(t *testing.T) {
	b := New(&recordingNotifier{}, 0, discard())

	if b.Resolve(model.Decision{RequestID: "nope", Kind: model.DecisionAccepted}) {
		t.Errorf("Resolve for unknown id = true, want false")
	}
}

func TestRequestTimeout(t *testing.T) {
	b := New(&recordingNotifier{}, 50*time.Millisecond, discard())

	_, err := b.Request(context.Background(), model.ApprovalRequest{CandidateID: "c1"})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Request error = %v, want ErrTimeout", err)
	}
	if b.PendingID() != "" {
		t.Errorf("request still pending after timeout")
	}
}

func TestRequestCancellation(t *testing.T) {
	b := New(&recordingNotifier{}, 0, discard())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := b.Request(ctx, model.ApprovalRequest{CandidateID: "c1"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Request error = %v, want context.Canceled", err)
	}
	if b.PendingID() != "" {
		t.Errorf("request still pending after cancellation")
	}
}

func TestResolveAfterTimeoutIsDropped(t *testing.T) {
	b := New(&recordingNotifier{}, 10*time.Millisecond, discard())

	notified := &recordingNotifier{}
	b.notifier = notified

	_, err := b.Request(context.Background(), model.ApprovalRequest{CandidateID: "c1"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Request error = %v, want ErrTimeout", err)
	}

	id := notified.last().ID
	if b.Resolve(model.Decision{RequestID: id, Kind: model.DecisionAccepted}) {
		t.Errorf("Resolve after timeout = true, want false")
	}
}
