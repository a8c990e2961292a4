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

// Package httpserver implements the SSE framing and HTTP surface (C7): the
// health, chat, actions, and agent-metadata endpoint families wrapping a
// runtime.Orchestrator.
package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/kestrel-ai/copilot-runtime/action"
	"github.com/kestrel-ai/copilot-runtime/middleware"
	"github.com/kestrel-ai/copilot-runtime/runtime"
)

// Version is the reported build version surfaced by /api/health. Set by
// the entrypoint binary at link time in a full deployment; left at its
// default here.
var Version = "dev"

// Server wraps a runtime.Orchestrator with the HTTP surface §4.6 describes.
type Server struct {
	Orchestrator *runtime.Orchestrator
	ProviderName string
	ModelName    string
	AllowedKeys  []string

	router *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithProviderInfo sets the provider/model names reported by /api/health.
func WithProviderInfo(providerName, modelName string) Option {
	return func(s *Server) {
		s.ProviderName = providerName
		s.ModelName = modelName
	}
}

// New builds a Server and registers its routes.
func New(orch *runtime.Orchestrator, opts ...Option) *Server {
	s := &Server{Orchestrator: orch}
	for _, opt := range opts {
		opt(s)
	}
	s.router = mux.NewRouter()
	s.registerRoutes()
	return s
}

// Handler returns the CORS-wrapped http.Handler serving every route.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.router)
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	s.router.HandleFunc("/api/chat/stream", s.handleChatStream).Methods(http.MethodPost)
	s.router.HandleFunc("/api/actions", s.handleListActions).Methods(http.MethodGet)
	s.router.HandleFunc("/api/actions/execute", s.handleExecuteAction).Methods(http.MethodPost)
	s.router.HandleFunc("/api/agents", s.handleListAgents).Methods(http.MethodGet)
	s.router.HandleFunc("/api/agents/{name}/state", s.handleAgentState).Methods(http.MethodGet, http.MethodPost)
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UnixMilli(),
		Version:   Version,
		Provider:  s.ProviderName,
		Model:     s.ModelName,
	})
}

// requestContext builds the middleware.RequestContext for an incoming HTTP
// request: the api_key property is read from the configured auth header.
func requestContext(r *http.Request) *middleware.RequestContext {
	props := map[string]any{}
	if key := r.Header.Get("X-API-Key"); key != "" {
		props["api_key"] = key
	} else if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		props["api_key"] = auth[7:]
	}
	return &middleware.RequestContext{
		Properties: props,
		URL:        r.URL.String(),
		Headers:    r.Header,
	}
}

// listedAction is the wire shape GET /api/actions returns for a single
// action.
type listedAction struct {
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Parameters   []action.Parameter  `json:"parameters"`
	Availability action.Availability `json:"availability"`
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	out := make([]listedAction, 0, len(s.Orchestrator.Actions))
	for _, a := range s.Orchestrator.Actions {
		out = append(out, listedAction{Name: a.Name, Description: a.Description, Parameters: a.Parameters, Availability: a.Availability})
	}
	writeJSON(w, http.StatusOK, out)
}
