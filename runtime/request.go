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
	"github.com/kestrel-ai/copilot-runtime/guardrails"
	"github.com/kestrel-ai/copilot-runtime/runtime/message"
)

// AgentSession carries the optional per-request agent routing hint.
type AgentSession struct {
	AgentName string `json:"agentName"`
	ThreadID  string `json:"threadId,omitempty"`
	NodeName  string `json:"nodeName,omitempty"`
}

// ForwardedParameters are the per-request generation overrides a client may
// supply; a nil field falls back to the adapter's own default.
type ForwardedParameters struct {
	Model                  *string  `json:"model,omitempty"`
	Temperature            *float64 `json:"temperature,omitempty"`
	MaxTokens              *int     `json:"max_tokens,omitempty"`
	Stop                   []string `json:"stop,omitempty"`
	ToolChoice             string   `json:"tool_choice,omitempty"`
	ToolChoiceFunctionName string   `json:"tool_choice_function_name,omitempty"`
	ParallelToolCalls      *bool    `json:"parallel_tool_calls,omitempty"`
}

// CloudConfig carries cloud-hosted add-ons a request may opt into.
type CloudConfig struct {
	Guardrails *guardrails.Config `json:"guardrails,omitempty"`
}

// ChatRequest is the canonical POST /api/chat and /api/chat/stream body.
type ChatRequest struct {
	Messages            []message.Message     `json:"messages"`
	ThreadID            string                 `json:"threadId,omitempty"`
	RunID               string                 `json:"runId,omitempty"`
	Stream              bool                   `json:"stream"`
	Model               string                 `json:"model,omitempty"`
	Actions             []ActionDescriptor     `json:"actions,omitempty"`
	Context             map[string]any         `json:"context,omitempty"`
	Extensions          map[string]any         `json:"extensions,omitempty"`
	AgentSession        *AgentSession          `json:"agentSession,omitempty"`
	ForwardedParameters *ForwardedParameters   `json:"forwardedParameters,omitempty"`
	Cloud               *CloudConfig           `json:"cloud,omitempty"`
}

// ResponseStatus is the closed-taxonomy outcome attached to a collated
// response or the terminal response_end SSE frame.
type ResponseStatus struct {
	Code   ErrorStatus `json:"code"`
	Reason string      `json:"reason,omitempty"`
}

// Result is what one chat request lifecycle produces: the collated output
// messages plus its closed-taxonomy outcome.
type Result struct {
	ThreadID   string            `json:"thread_id"`
	RunID      string            `json:"run_id"`
	Messages   []message.Message `json:"messages"`
	Extensions map[string]any    `json:"extensions,omitempty"`
	Status     ResponseStatus    `json:"status"`
}
