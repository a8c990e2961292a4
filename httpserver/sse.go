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

package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-ai/copilot-runtime/events"
	"github.com/kestrel-ai/copilot-runtime/runtime"
)

// sseWriter frames one internal event (or a raw meta frame) as an SSE
// "event: <name>\ndata: <json>\n\n" pair, flushing after every write.
type sseWriter struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	threadID string
}

func newSSEWriter(w http.ResponseWriter, threadID string) *sseWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher, threadID: threadID}
}

func (s *sseWriter) frame(name string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("httpserver: encoding SSE frame: %w", err)
	}
	if name != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", body); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) done() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) sessionStart(threadID, runID string) error {
	return s.frame("session_start", map[string]any{"thread_id": threadID, "run_id": runID})
}

func (s *sseWriter) responseEnd(status runtime.ResponseStatus) error {
	return s.frame("response_end", map[string]any{"status": status})
}

// writeEvent projects one internal event to its SSE frame per the §4.6
// mapping table.
func (s *sseWriter) writeEvent(ev events.Event) error {
	now := time.Now().UnixMilli()
	switch ev.Kind {
	case events.KindTextMessageStart:
		return s.frame("text_message_start", map[string]any{
			"id": ev.MessageID, "parentMessageId": ev.ParentID,
			"role": "assistant", "createdAt": now, "type": "text",
		})
	case events.KindTextMessageContent:
		return s.frame("text_message_content", map[string]any{"id": ev.MessageID, "content": ev.Delta})
	case events.KindTextMessageEnd:
		return s.frame("text_message_end", map[string]any{"id": ev.MessageID, "status": "success"})
	case events.KindActionExecStart:
		return s.frame("action_execution_start", map[string]any{
			"id": ev.ActionExecutionID, "parentMessageId": ev.ParentID,
			"name": ev.ActionName, "createdAt": now, "type": "action_execution",
		})
	case events.KindActionExecArgs:
		return s.frame("action_execution_args", map[string]any{"actionExecutionId": ev.ActionExecutionID, "args": ev.ArgsDelta})
	case events.KindActionExecEnd:
		return nil
	case events.KindActionExecResult:
		return s.frame("action_execution_result", map[string]any{
			"id": "result-" + ev.ActionExecutionID, "actionExecutionId": ev.ActionExecutionID,
			"actionName": ev.ActionName, "result": ev.Result, "createdAt": now, "type": "result",
		})
	case events.KindAgentState:
		return s.frame("agent_state_message", map[string]any{
			"id": uuid.New().String(), "threadId": ev.ThreadID, "agentName": ev.AgentName,
			"nodeName": ev.NodeName, "runId": ev.RunID, "active": ev.Active, "state": ev.State,
			"running": ev.Running, "role": "assistant", "createdAt": now, "type": "agent_state",
		})
	case events.KindMeta:
		return s.frame("meta_event", map[string]any{"type": "meta", "name": ev.MetaName, "data": ev.MetaData})
	case events.KindError:
		return s.frame("error", map[string]any{"error": ev.ErrorMessage, "threadId": s.threadID})
	default:
		return nil
	}
}
