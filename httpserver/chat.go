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
	"net/http"

	"github.com/google/uuid"

	"github.com/kestrel-ai/copilot-runtime/events"
	"github.com/kestrel-ai/copilot-runtime/log"
	"github.com/kestrel-ai/copilot-runtime/runtime"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req runtime.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.Orchestrator.HandleChat(r.Context(), &req, requestContext(r))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req runtime.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Pre-assign the correlation ids so session_start can be framed before
	// the orchestrator runs, and so the orchestrator reuses the same ids
	// rather than minting its own.
	if req.ThreadID == "" {
		req.ThreadID = uuid.New().String()
	}
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	threadID, runID := req.ThreadID, req.RunID

	sse := newSSEWriter(w, threadID)
	if err := sse.sessionStart(threadID, runID); err != nil {
		return
	}

	writeErr := error(nil)
	result, err := s.Orchestrator.HandleChatStream(r.Context(), &req, requestContext(r), func(ev events.Event) {
		if writeErr != nil {
			return
		}
		writeErr = sse.writeEvent(ev)
	})
	if err != nil {
		log.Errorf("httpserver: chat stream for thread %q failed: %v", threadID, err)
		sse.frame("error", map[string]any{"error": err.Error(), "threadId": threadID})
		sse.responseEnd(runtime.ResponseStatus{Code: runtime.StatusUnknownError, Reason: err.Error()})
		sse.done()
		return
	}

	sse.responseEnd(result.Status)
	sse.done()
}
