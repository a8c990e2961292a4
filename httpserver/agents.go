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

	"github.com/gorilla/mux"
)

// agentDescriptor is the stub shape GET /api/agents and its state endpoints
// return. This deployment carries no agent registry of its own; the
// runtime.Orchestrator dispatches to a single provider adapter, so these
// endpoints report an empty list / empty state rather than 404ing.
type agentDescriptor struct {
	Name string `json:"name"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []agentDescriptor{})
}

type agentStateResponse struct {
	Name  string         `json:"name"`
	State map[string]any `json:"state"`
}

func (s *Server) handleAgentState(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if r.Method == http.MethodPost {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, agentStateResponse{Name: name, State: body})
		return
	}
	writeJSON(w, http.StatusOK, agentStateResponse{Name: name, State: map[string]any{}})
}
