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
	"time"
)

type executeActionRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type executeActionResponse struct {
	Success       bool   `json:"success"`
	Result        any    `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
	ExecutionTime int64  `json:"execution_time"`
}

// handleExecuteAction invokes one server-side action directly, bypassing
// the event pipeline entirely: a synchronous request/response call for
// clients that don't need streamed deltas.
func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	var req executeActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var handler func(args json.RawMessage) (any, error)
	for _, a := range s.Orchestrator.Actions {
		if a.Name != req.Name || a.Handler == nil {
			continue
		}
		h := a.Handler
		handler = func(args json.RawMessage) (any, error) {
			value, stream, err := h(r.Context(), args)
			if err != nil {
				return nil, err
			}
			if stream == nil {
				return value, nil
			}
			var chunks []any
			for c := range stream {
				if c.Err != nil {
					return nil, c.Err
				}
				chunks = append(chunks, c.Value)
			}
			return chunks, nil
		}
		break
	}
	if handler == nil {
		writeJSON(w, http.StatusNotFound, executeActionResponse{Success: false, Error: "unknown action"})
		return
	}

	start := time.Now()
	args := req.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	value, err := handler(args)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		writeJSON(w, http.StatusOK, executeActionResponse{Success: false, Error: err.Error(), ExecutionTime: elapsed})
		return
	}
	writeJSON(w, http.StatusOK, executeActionResponse{Success: true, Result: value, ExecutionTime: elapsed})
}
