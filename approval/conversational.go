package approval

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kestrel-ai/copilot-runtime/action"
)

// DecisionArgs is the argument shape the conversational strategy's decision
// action expects: a free-text reply, optionally naming the pending call.
type DecisionArgs struct {
	Reply      string `json:"reply"`
	ThreadID   string `json:"thread_id"`
	ApprovalID string `json:"approval_id,omitempty"`
}

// DecisionHandler builds an action.Handler suitable for registration as an
// ordinary action: it parses the user's next turn for a yes/no, resolves
// the pending call (by explicit id, or the most recent for the thread),
// and drives Queue.Decide.
func (g *Gated) DecisionHandler() action.Handler {
	return func(ctx context.Context, args json.RawMessage) (any, <-chan action.Chunk, error) {
		var da DecisionArgs
		if err := json.Unmarshal(args, &da); err != nil {
			return nil, nil, err
		}

		approvalID := da.ApprovalID
		if approvalID == "" {
			call, ok := g.Queue.LatestForThread(da.ThreadID)
			if !ok {
				return "there is no pending approval for this conversation", nil, nil
			}
			approvalID = call.ApprovalID
		}

		call, ok := g.Queue.Peek(approvalID)
		if !ok {
			return "there is no pending approval with that id", nil, nil
		}
		gate := g.Config.Confirm[call.ToolName]

		approved := parseAffirmative(da.Reply)
		result, err := g.Queue.Decide(ctx, approvalID, approved, gate.DeniedResult)
		if err != nil {
			return nil, nil, err
		}
		return result, nil, nil
	}
}

func parseAffirmative(reply string) bool {
	r := strings.ToLower(strings.TrimSpace(reply))
	switch r {
	case "y", "yes", "approve", "approved", "confirm", "confirmed":
		return true
	default:
		return false
	}
}
