package approval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kestrel-ai/copilot-runtime/action"
	"github.com/kestrel-ai/copilot-runtime/events"
	"github.com/kestrel-ai/copilot-runtime/pipeline"
)

// Gated implements pipeline.ApprovalGate: an action execution is diverted
// here whenever its name is in Config.Confirm, instead of running
// directly.
type Gated struct {
	Config Config
	Queue  *Queue
}

// NewGated validates config and wraps it with a bounded queue.
func NewGated(config Config, queueCapacity int) (*Gated, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Gated{Config: config, Queue: NewQueue(queueCapacity)}, nil
}

// Gate implements pipeline.ApprovalGate. It recognizes BypassKey in args as
// a forwarded-from-conversational-decision call and lets it run directly
// rather than re-enqueuing.
func (g *Gated) Gate(
	ctx context.Context,
	threadID string,
	act *action.Action,
	actionExecutionID string,
	args json.RawMessage,
	emit pipeline.Sink,
) bool {
	if act == nil || !g.Config.Required(act.Name) {
		return false
	}
	if hasBypass(args) {
		return false
	}

	gate := g.Config.Confirm[act.Name]
	approvalID, err := g.Queue.Enqueue(threadID, act.Name, args, act.Handler)
	if err != nil {
		emit(events.ActionExecutionResult(actionExecutionID, act.Name, fmt.Sprintf("approval unavailable: %v", err)))
		return true
	}

	emit(events.ActionExecutionResult(actionExecutionID, act.Name,
		fmt.Sprintf("%s (approval id: %s)", gate.Prompt, approvalID)))
	return true
}

func hasBypass(args json.RawMessage) bool {
	var m map[string]any
	if len(args) == 0 {
		return false
	}
	if err := json.Unmarshal(args, &m); err != nil {
		return false
	}
	v, ok := m[BypassKey]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
