//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package runtime

import (
	"fmt"
	"strings"

	"github.com/kestrel-ai/copilot-runtime/events"
	"github.com/kestrel-ai/copilot-runtime/provider"
	"github.com/kestrel-ai/copilot-runtime/runtime/message"
)

// ToProviderMessages translates the wire-tagged Message variant into the
// provider adapter's native Message shape, applying the developer→system
// role fix-up and the ActionExecution/Result/Image mappings.
func ToProviderMessages(msgs []message.Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Kind {
		case message.KindText:
			out = append(out, provider.Message{Role: providerRole(m.Role), Content: m.Content})
		case message.KindActionExecution:
			out = append(out, provider.Message{
				Role: provider.RoleAssistant,
				ToolCalls: []provider.ToolCall{{
					ID:   m.ID,
					Type: "function",
					Function: provider.FunctionDefinitionParam{
						Name:      m.Name,
						Arguments: []byte(m.Arguments),
					},
				}},
			})
		case message.KindResult:
			out = append(out, provider.Message{
				Role:     provider.RoleTool,
				Content:  m.Result,
				ToolID:   m.ActionExecutionID,
				ToolName: m.ActionName,
			})
		case message.KindImage:
			url := fmt.Sprintf("data:image/%s;base64,%s", m.Format, m.Bytes)
			out = append(out, provider.Message{
				Role: provider.RoleUser,
				ContentParts: []provider.ContentPart{{
					Type:     provider.ContentTypeImage,
					ImageURL: &url,
				}},
			})
		case message.KindAgentState:
			// Agent-state messages carry no provider-facing content; they are
			// framing only and are dropped from the adapter request.
		}
	}
	return dedupeAdjacent(out)
}

// dedupeAdjacent drops a message that is semantically identical to the one
// right before it. Clients occasionally resubmit the trailing turn of a
// thread verbatim (optimistic retry on a dropped response); sending the
// duplicate on to the provider wastes a turn of context for no benefit.
func dedupeAdjacent(msgs []provider.Message) []provider.Message {
	if len(msgs) < 2 {
		return msgs
	}
	out := msgs[:1]
	for i := 1; i < len(msgs); i++ {
		if provider.EqualIgnoringReasoning(msgs[i], out[len(out)-1]) {
			continue
		}
		out = append(out, msgs[i])
	}
	return out
}

// providerRole applies the developer→system rename: the reference adapter
// targets OpenAI-compatible APIs, several of which reject a bare
// "developer" role.
func providerRole(r message.Role) provider.Role {
	switch r {
	case message.RoleDeveloper:
		return provider.RoleSystem
	case message.RoleSystem:
		return provider.RoleSystem
	case message.RoleAssistant:
		return provider.RoleAssistant
	case message.RoleTool:
		return provider.RoleTool
	default:
		return provider.RoleUser
	}
}

// EventCollector accumulates the Event sequence the pipeline emits into the
// collated Message list the orchestrator resolves the OutputMessagesPromise
// with: TextMessageContent deltas are concatenated between Start/End,
// ActionExecution is built from Start plus accumulated args plus End, and
// Result is built directly from ActionExecutionResult.
type EventCollector struct {
	messages []message.Message

	textContent map[string]*strings.Builder
	textParent  map[string]string
	actionName  map[string]string
	actionArgs  map[string]*strings.Builder
}

// NewEventCollector creates an empty collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{
		textContent: make(map[string]*strings.Builder),
		textParent:  make(map[string]string),
		actionName:  make(map[string]string),
		actionArgs:  make(map[string]*strings.Builder),
	}
}

// Push folds one event into the collector's in-progress state.
func (c *EventCollector) Push(ev events.Event) {
	switch ev.Kind {
	case events.KindTextMessageStart:
		c.textContent[ev.MessageID] = &strings.Builder{}
		c.textParent[ev.MessageID] = ev.ParentID
	case events.KindTextMessageContent:
		if b, ok := c.textContent[ev.MessageID]; ok {
			b.WriteString(ev.Delta)
		}
	case events.KindTextMessageEnd:
		content := ""
		if b, ok := c.textContent[ev.MessageID]; ok {
			content = b.String()
		}
		c.messages = append(c.messages, message.NewText(message.RoleAssistant, content, c.textParent[ev.MessageID]))
		delete(c.textContent, ev.MessageID)
		delete(c.textParent, ev.MessageID)

	case events.KindActionExecStart:
		c.actionName[ev.ActionExecutionID] = ev.ActionName
		c.actionArgs[ev.ActionExecutionID] = &strings.Builder{}
	case events.KindActionExecArgs:
		if b, ok := c.actionArgs[ev.ActionExecutionID]; ok {
			b.WriteString(ev.ArgsDelta)
		}
	case events.KindActionExecEnd:
		args := ""
		if b, ok := c.actionArgs[ev.ActionExecutionID]; ok {
			args = b.String()
		}
		c.messages = append(c.messages, message.NewActionExecution(ev.ActionExecutionID, c.actionName[ev.ActionExecutionID], args, ""))
		delete(c.actionArgs, ev.ActionExecutionID)

	case events.KindActionExecResult:
		c.messages = append(c.messages, message.NewResult(ev.ActionExecutionID, ev.ActionName, ev.Result))

	case events.KindAgentState:
		c.messages = append(c.messages, message.NewAgentState(
			ev.ThreadID, ev.AgentName, ev.NodeName, ev.RunID, ev.Active, ev.Running, ev.State))
	}
}

// Messages returns the collated list built so far.
func (c *EventCollector) Messages() []message.Message {
	return c.messages
}
