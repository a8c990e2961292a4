// Package events provides the tagged Event variant streamed by the
// pipeline (C2) to the SSE framing layer (C7) and the non-streaming
// collector.
package events

import "github.com/google/uuid"

// Kind tags which variant an Event carries. Only the payload fields that
// belong to that Kind are populated.
type Kind string

// Event kinds, ordered the way the pipeline emits them.
const (
	KindTextMessageStart    Kind = "text_message_start"
	KindTextMessageContent  Kind = "text_message_content"
	KindTextMessageEnd      Kind = "text_message_end"
	KindActionExecStart     Kind = "action_execution_start"
	KindActionExecArgs      Kind = "action_execution_args"
	KindActionExecEnd       Kind = "action_execution_end"
	KindActionExecResult    Kind = "action_execution_result"
	KindAgentState          Kind = "agent_state_message"
	KindMeta                Kind = "meta_event"
	KindError               Kind = "error"
)

// Event is the pipeline's unit of output. Only the fields relevant to Kind
// are meaningful; the rest are zero.
type Event struct {
	Kind Kind `json:"kind"`

	// TextMessageStart / TextMessageContent / TextMessageEnd
	MessageID string `json:"message_id,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
	Delta     string `json:"delta,omitempty"`

	// ActionExecutionStart / Args / End / Result
	ActionExecutionID string `json:"action_execution_id,omitempty"`
	ActionName        string `json:"action_name,omitempty"`
	ArgsDelta         string `json:"args_delta,omitempty"`
	Result            string `json:"result,omitempty"`

	// AgentStateMessage
	ThreadID  string         `json:"thread_id,omitempty"`
	AgentName string         `json:"agent_name,omitempty"`
	NodeName  string         `json:"node_name,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Active    bool           `json:"active,omitempty"`
	Running   bool           `json:"running,omitempty"`
	State     map[string]any `json:"state,omitempty"`

	// MetaEvent
	MetaName string `json:"meta_name,omitempty"`
	MetaData any    `json:"meta_data,omitempty"`

	// Error
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewID generates a fresh opaque identifier, used for message ids, action
// execution ids, and run ids wherever the provider chunk doesn't supply one.
func NewID() string {
	return uuid.New().String()
}

// TextMessageStart builds a TextMessageStart event.
func TextMessageStart(messageID, parentID string) Event {
	return Event{Kind: KindTextMessageStart, MessageID: messageID, ParentID: parentID}
}

// TextMessageContent builds a TextMessageContent event.
func TextMessageContent(messageID, delta string) Event {
	return Event{Kind: KindTextMessageContent, MessageID: messageID, Delta: delta}
}

// TextMessageEnd builds a TextMessageEnd event.
func TextMessageEnd(messageID string) Event {
	return Event{Kind: KindTextMessageEnd, MessageID: messageID}
}

// ActionExecutionStart builds an ActionExecutionStart event.
func ActionExecutionStart(actionExecutionID, actionName, parentID string) Event {
	return Event{Kind: KindActionExecStart, ActionExecutionID: actionExecutionID, ActionName: actionName, ParentID: parentID}
}

// ActionExecutionArgs builds an ActionExecutionArgs event.
func ActionExecutionArgs(actionExecutionID, argsDelta string) Event {
	return Event{Kind: KindActionExecArgs, ActionExecutionID: actionExecutionID, ArgsDelta: argsDelta}
}

// ActionExecutionEnd builds an ActionExecutionEnd event.
func ActionExecutionEnd(actionExecutionID string) Event {
	return Event{Kind: KindActionExecEnd, ActionExecutionID: actionExecutionID}
}

// ActionExecutionResult builds an ActionExecutionResult event.
func ActionExecutionResult(actionExecutionID, actionName, result string) Event {
	return Event{Kind: KindActionExecResult, ActionExecutionID: actionExecutionID, ActionName: actionName, Result: result}
}

// AgentStateMessage builds an AgentStateMessage event.
func AgentStateMessage(threadID, agentName, nodeName, runID string, active, running bool, state map[string]any) Event {
	return Event{
		Kind: KindAgentState, ThreadID: threadID, AgentName: agentName, NodeName: nodeName,
		RunID: runID, Active: active, Running: running, State: state,
	}
}

// Meta builds a MetaEvent.
func Meta(name string, data any) Event {
	return Event{Kind: KindMeta, MetaName: name, MetaData: data}
}

// NewError builds an Error event.
func NewError(code, message string) Event {
	return Event{Kind: KindError, ErrorCode: code, ErrorMessage: message}
}
