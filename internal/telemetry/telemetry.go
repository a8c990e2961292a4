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

package telemetry

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kestrel-ai/copilot-runtime/action"
	"github.com/kestrel-ai/copilot-runtime/provider"
)

const (
	ServiceName      = "telemetry"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "copilot-runtime"
	InstrumentName   = "copilot.runtime"
)

// NewChatSpanName builds the span name for a provider GenerateContent call.
// An empty model name (adapter falling back to its own default) yields the
// bare "chat".
func NewChatSpanName(model string) string {
	if model == "" {
		return "chat"
	}
	return "chat " + model
}

// NewExecuteToolSpanName builds the span name for a server-side action
// execution.
func NewExecuteToolSpanName(actionName string) string {
	return "execute_tool " + actionName
}

// TraceActionExecution traces one server-side action call: its name,
// arguments, and the result returned to the provider.
func TraceActionExecution(span trace.Span, act *action.Action, args json.RawMessage, actionExecutionID, result string) {
	span.SetAttributes(
		semconv.GenAISystemKey.String("copilot-runtime"),
		semconv.GenAIOperationNameExecuteTool,
		semconv.GenAIToolName(act.Name),
		semconv.GenAIToolDescription(act.Description),
		attribute.String("copilot.runtime.action_execution_id", actionExecutionID),
	)

	if bts, err := json.Marshal(args); err == nil {
		span.SetAttributes(attribute.String("copilot.runtime.action_args", string(bts)))
	} else {
		span.SetAttributes(attribute.String("copilot.runtime.action_args", "<not json serializable>"))
	}

	span.SetAttributes(attribute.String("copilot.runtime.action_result", result))
}

// TraceGenerateContent traces one provider adapter call.
func TraceGenerateContent(span trace.Span, threadID, runID string, req *provider.Request, resp *provider.Response) {
	span.SetAttributes(
		semconv.GenAISystemKey.String("copilot-runtime"),
		attribute.String("copilot.runtime.thread_id", threadID),
		attribute.String("copilot.runtime.run_id", runID),
	)
	if req != nil {
		if bts, err := json.Marshal(req); err == nil {
			span.SetAttributes(attribute.String("copilot.runtime.provider_request", string(bts)))
		} else {
			span.SetAttributes(attribute.String("copilot.runtime.provider_request", "<not json serializable>"))
		}
	}
	if resp != nil {
		if bts, err := json.Marshal(resp); err == nil {
			span.SetAttributes(attribute.String("copilot.runtime.provider_response", string(bts)))
		} else {
			span.SetAttributes(attribute.String("copilot.runtime.provider_response", "<not json serializable>"))
		}
	}
}

// NewConn creates a new gRPC connection to the OpenTelemetry Collector.
func NewConn(endpoint string) (*grpc.ClientConn, error) {
	// It connects the OpenTelemetry Collector through gRPC connection.
	// The endpoint is supplied by the caller.
	conn, err := grpc.NewClient(endpoint,
		// Note the use of insecure transport here. TLS is recommended in production.
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}

	return conn, err
}
