package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kestrel-ai/copilot-runtime/action"
)

// BypassKey is the reserved argument field the conversational strategy's
// decision handler sets to force a direct call to the original handler,
// skipping re-approval.
const BypassKey = "__approved_bypass"

// PendingCall is one queued approval awaiting a decision.
type PendingCall struct {
	ApprovalID string
	ThreadID   string
	ToolName   string
	Arguments  json.RawMessage
	Handler    action.Handler

	// sequence is a monotonically increasing enqueue order, assigned under
	// the same lock as map insertion. It lets LatestForThread determine
	// recency deterministically instead of relying on Go's randomized map
	// iteration order.
	sequence uint64
}

// Queue is the bounded in-memory pending-approval map:
// process-wide, mutex-protected, O(1) by id, fail-fast when full.
type Queue struct {
	mu       sync.Mutex
	capacity int
	pending  map[string]*PendingCall
	nextSeq  uint64
}

// NewQueue creates a Queue bounded to capacity pending entries.
func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity, pending: make(map[string]*PendingCall)}
}

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = fmt.Errorf("approval: pending-approval queue is full")

// Enqueue registers a gated call and returns its approval id.
func (q *Queue) Enqueue(threadID, toolName string, args json.RawMessage, handler action.Handler) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) >= q.capacity {
		return "", ErrQueueFull
	}
	id := uuid.New().String()
	q.nextSeq++
	q.pending[id] = &PendingCall{
		ApprovalID: id,
		ThreadID:   threadID,
		ToolName:   toolName,
		Arguments:  args,
		Handler:    handler,
		sequence:   q.nextSeq,
	}
	return id, nil
}

// Peek returns the pending call without consuming it, or false if absent.
func (q *Queue) Peek(approvalID string) (PendingCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.pending[approvalID]
	if !ok {
		return PendingCall{}, false
	}
	return *c, true
}

// LatestForThread returns the most recently enqueued pending call for a
// thread, used by the conversational strategy when the user's reply does
// not name an approval id explicitly. Selection is by each call's
// enqueue sequence number, not map iteration order, so the result is
// deterministic even with several pending calls on the same thread.
func (q *Queue) LatestForThread(threadID string) (PendingCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var latest *PendingCall
	for _, c := range q.pending {
		if c.ThreadID != threadID {
			continue
		}
		if latest == nil || c.sequence > latest.sequence {
			latest = c
		}
	}
	if latest == nil {
		return PendingCall{}, false
	}
	return *latest, true
}

// take removes and returns a pending call.
func (q *Queue) take(approvalID string) (*PendingCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.pending[approvalID]
	if ok {
		delete(q.pending, approvalID)
	}
	return c, ok
}

// Decide consumes a pending call exactly once. When approved, it invokes
// the original handler; a handler error is reported as a distinct
// "approved but failed" result rather than a plain rejection. When denied,
// deniedResult is returned verbatim.
func (q *Queue) Decide(ctx context.Context, approvalID string, approved bool, deniedResult string) (string, error) {
	call, ok := q.take(approvalID)
	if !ok {
		return "", fmt.Errorf("approval: no pending call for id %q", approvalID)
	}
	if !approved {
		if deniedResult == "" {
			deniedResult = "the user declined this action"
		}
		return deniedResult, nil
	}

	args := call.Arguments
	value, stream, err := call.Handler(ctx, withBypass(args))
	if err != nil {
		return "", fmt.Errorf("approved but failed: %w", err)
	}
	if stream != nil {
		var sb []byte
		for chunk := range stream {
			if chunk.Err != nil {
				return "", fmt.Errorf("approved but failed: %w", chunk.Err)
			}
			if s, ok := chunk.Value.(string); ok {
				sb = append(sb, s...)
			}
		}
		return string(sb), nil
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value), nil
	}
	return string(b), nil
}

// CancelApproval removes a pending entry without invoking its handler.
func (q *Queue) CancelApproval(approvalID string) error {
	if _, ok := q.take(approvalID); !ok {
		return fmt.Errorf("approval: no pending call for id %q", approvalID)
	}
	return nil
}

func withBypass(args json.RawMessage) json.RawMessage {
	var m map[string]any
	if len(args) > 0 {
		_ = json.Unmarshal(args, &m)
	}
	if m == nil {
		m = map[string]any{}
	}
	m[BypassKey] = true
	b, err := json.Marshal(m)
	if err != nil {
		return args
	}
	return b
}
