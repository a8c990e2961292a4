// Package pipeline implements the event pipeline (C2): the state machine
// that turns a provider's chunk stream into the ordered Event sequence
// described by the data model, inlining server-side tool execution.
package pipeline

import "github.com/kestrel-ai/copilot-runtime/action"

// Mode is the pipeline's current position in the TextMessage/ActionExecution
// open/close discipline.
type Mode string

// Modes the state machine can be in.
const (
	ModeIdle       Mode = "idle"
	ModeInMessage  Mode = "in_message"
	ModeInFunction Mode = "in_function"
)

// State is the per-request pipeline state, mutated monotonically while a
// single chunk source is drained.
type State struct {
	Mode Mode

	CurrentMessageID   string
	CurrentToolCallID  string
	CurrentActionName  string
	AccumulatedArgs    string
	ActionIsServerSide bool
	Action             *action.Action
	ParentMessageID    string
}

// Chunk is the normalized tuple the state machine consumes, produced by a
// provider adapter's chunk decoder (§4.2).
type Chunk struct {
	HasToolCallWithID bool
	ToolCallID        string
	ToolCallName      string
	ToolCallArgsDelta string
	TextDelta         string
	FinishReason      string
	ChunkID           string
}
