// Package message provides the tagged Message variant exchanged with the
// chat client and translated to/from provider-native payloads.
package message

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Role is the speaker role on a Text message.
type Role string

// Roles a Text message may carry.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleTool      Role = "tool"
)

// Kind tags which variant a Message carries. Exactly one tag is active.
type Kind string

// Message kinds.
const (
	KindText           Kind = "text"
	KindActionExecution Kind = "action_execution"
	KindResult          Kind = "result"
	KindAgentState      Kind = "agent_state"
	KindImage           Kind = "image"
)

// Message is the tagged variant described by the data model: Kind selects
// which kind-specific field group below carries the payload. Some kinds
// also set a field listed under another group (an ActionExecution carries
// ParentID, an Image carries Role).
type Message struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`

	// Text
	Role     Role   `json:"role,omitempty"`
	Content  string `json:"content,omitempty"`
	ParentID string `json:"parent_id,omitempty"`

	// ActionExecution
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// Result
	ActionExecutionID string `json:"action_execution_id,omitempty"`
	ActionName        string `json:"action_name,omitempty"`
	Result            string `json:"result,omitempty"`

	// AgentState
	ThreadID  string         `json:"thread_id,omitempty"`
	AgentName string         `json:"agent_name,omitempty"`
	NodeName  string         `json:"node_name,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Active    bool           `json:"active,omitempty"`
	Running   bool           `json:"running,omitempty"`
	State     map[string]any `json:"state,omitempty"`

	// Image
	Format string `json:"format,omitempty"`
	Bytes  string `json:"bytes,omitempty"`
}

// NewText builds a Text message with a freshly generated id.
func NewText(role Role, content, parentID string) Message {
	return Message{Kind: KindText, ID: uuid.New().String(), Role: role, Content: content, ParentID: parentID}
}

// NewActionExecution builds an ActionExecution message. Its id doubles as
// the provider tool-call id.
func NewActionExecution(id, name, arguments, parentID string) Message {
	return Message{Kind: KindActionExecution, ID: id, Name: name, Arguments: arguments, ParentID: parentID}
}

// NewResult builds a Result message referencing the ActionExecution it
// answers.
func NewResult(actionExecutionID, actionName, result string) Message {
	return Message{
		Kind:              KindResult,
		ID:                uuid.New().String(),
		ActionExecutionID: actionExecutionID,
		ActionName:        actionName,
		Result:            result,
	}
}

// ResultError is the structured error payload a Result may encode in place
// of a raw string result.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type encodedResult struct {
	Error  *ResultError `json:"error"`
	Result string       `json:"result"`
}

// EncodeResult implements the spec's Result encoding: a raw string when
// there is no error, else a JSON object carrying both the error and the
// (possibly empty) partial result string.
func EncodeResult(result string, resultErr *ResultError) string {
	if resultErr == nil {
		return result
	}
	b, err := json.Marshal(encodedResult{Error: resultErr, Result: result})
	if err != nil {
		return result
	}
	return string(b)
}

// DecodeResult reverses EncodeResult. Non-JSON strings, and JSON values
// that aren't the `{error, result}` shape, pass through as a plain result
// with no error.
func DecodeResult(raw string) (result string, resultErr *ResultError) {
	var decoded encodedResult
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil || decoded.Error == nil {
		return raw, nil
	}
	return decoded.Result, decoded.Error
}

// NewAgentState builds an AgentState message.
func NewAgentState(threadID, agentName, nodeName, runID string, active, running bool, state map[string]any) Message {
	return Message{
		Kind: KindAgentState, ID: uuid.New().String(), ThreadID: threadID, AgentName: agentName,
		NodeName: nodeName, RunID: runID, Active: active, Running: running, State: state,
	}
}

// NewImage builds an Image message.
func NewImage(role Role, format, b64Bytes string) Message {
	return Message{Kind: KindImage, ID: uuid.New().String(), Role: role, Format: format, Bytes: b64Bytes}
}
