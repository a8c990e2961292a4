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

// Package main is the copilot-runtime server entrypoint.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kestrel-ai/copilot-runtime/action"
	"github.com/kestrel-ai/copilot-runtime/guardrails"
	"github.com/kestrel-ai/copilot-runtime/httpserver"
	"github.com/kestrel-ai/copilot-runtime/log"
	"github.com/kestrel-ai/copilot-runtime/middleware"
	"github.com/kestrel-ai/copilot-runtime/provider"
	"github.com/kestrel-ai/copilot-runtime/provider/openai"
	"github.com/kestrel-ai/copilot-runtime/runtime"
	"github.com/kestrel-ai/copilot-runtime/telemetry"
	"github.com/kestrel-ai/copilot-runtime/telemetry/langfuse"
)

// Exit codes per the recognized external interface.
const (
	exitOK            = 0
	exitMissingAPIKey = 1
	exitBindFailure   = 2
)

const handlerPoolSize = 64

func main() {
	os.Exit(run())
}

// run builds and serves the runtime, returning the process exit code. It is
// factored out of main so that every deferred release (worker pools, the
// telemetry exporters) actually runs before the process exits: os.Exit does
// not unwind defers.
func run() int {
	addr := flag.String("addr", ":8080", "address to listen on")
	providerModel := flag.String("provider-model", "gpt-4o-mini", "model name registered with the provider adapter")
	openAIBaseURL := flag.String("openai-base-url", "", "override the OpenAI-compatible API base URL")
	rateLimitPerMinute := flag.Int("rate-limit-per-minute", 60, "max requests per thread_id per 60s window")
	logLevel := flag.String("log-level", log.LevelInfo, "log level: debug, info, warn, error, fatal")
	otelDisabled := flag.Bool("otel-disabled", false, "skip bootstrapping the OTLP trace/metric exporters")
	tracingBackend := flag.String("tracing-backend", "otlp", "tracing exporter: otlp or langfuse (langfuse reads LANGFUSE_SECRET_KEY/LANGFUSE_PUBLIC_KEY/LANGFUSE_HOST)")
	allowedAPIKeys := flag.String("allowed-api-keys", "", "comma-separated allow-set checked against context.properties.api_key; empty disables the check")
	flag.Parse()

	log.SetLevel(*logLevel)

	if !*otelDisabled && *tracingBackend == "langfuse" {
		shutdown, err := langfuse.Start(context.Background())
		if err != nil {
			log.Warnf("copilot-runtime: langfuse tracing disabled: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	} else if !*otelDisabled {
		shutdown, err := telemetry.Start(context.Background(), telemetry.WithServiceName("copilot-runtime"))
		if err != nil {
			log.Warnf("copilot-runtime: telemetry disabled, exporters unreachable: %v", err)
		} else {
			defer shutdown()
		}
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Errorf("copilot-runtime: OPENAI_API_KEY is required")
		return exitMissingAPIKey
	}

	var modelOpts []openai.Option
	modelOpts = append(modelOpts, openai.WithAPIKey(apiKey))
	if *openAIBaseURL != "" {
		modelOpts = append(modelOpts, openai.WithBaseURL(*openAIBaseURL))
	}
	adapter := openai.New(*providerModel, modelOpts...)

	registry := provider.NewRegistry()
	registry.Register(*providerModel, adapter)

	chain := middleware.NewChain()
	loggingBefore, loggingAfter := middleware.NewLoggingMiddleware()
	chain.RegisterBefore(loggingBefore)
	chain.RegisterAfter(loggingAfter)
	chain.RegisterBefore(middleware.NewAuthMiddleware(splitAndTrim(*allowedAPIKeys)))
	metrics := middleware.NewMetrics()
	metricsBefore, metricsAfter := middleware.NewMetricsMiddleware(metrics)
	chain.RegisterBefore(metricsBefore)
	chain.RegisterAfter(metricsAfter)
	chain.RegisterBefore(middleware.NewRateLimitMiddleware(
		middleware.NewRateLimiter(*rateLimitPerMinute, time.Minute)))

	handlerPool, err := ants.NewPool(handlerPoolSize)
	if err != nil {
		log.Errorf("copilot-runtime: creating action handler pool: %v", err)
		return exitBindFailure
	}
	defer handlerPool.Release()

	var guardrailsClient *guardrails.Client
	if cloudBaseURL := os.Getenv("COPILOT_CLOUD_BASE_URL"); cloudBaseURL != "" {
		guardrailsPool, err := ants.NewPool(handlerPoolSize)
		if err != nil {
			log.Errorf("copilot-runtime: creating guardrails worker pool: %v", err)
			return exitBindFailure
		}
		defer guardrailsPool.Release()
		guardrailsClient = guardrails.New(cloudBaseURL, os.Getenv("COPILOT_CLOUD_API_KEY"), guardrailsPool)
	}

	var serverActions []*action.Action
	orch := runtime.NewOrchestrator(registry, chain, serverActions, nil, guardrailsClient, handlerPool)
	orch.ModelCallbacks = provider.NewModelCallbacks()
	orch.ActionMetrics = metrics

	srv := httpserver.New(orch, httpserver.WithProviderInfo(adapter.ProviderName(), *providerModel))

	log.Infof("copilot-runtime: listening on %s", *addr)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		log.Errorf("copilot-runtime: server exited: %v", err)
		return exitBindFailure
	}
	return exitOK
}

// splitAndTrim parses a comma-separated flag value into a trimmed,
// non-empty slice. An empty input yields a nil slice, which
// middleware.NewAuthMiddleware treats as "auth disabled".
func splitAndTrim(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
