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

package middleware

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	atelemetry "github.com/kestrel-ai/copilot-runtime/telemetry"
)

// MetricsSnapshot is a point-in-time read of Metrics' counters, returned to
// callers (tests, a status endpoint) that do not want to stand up an otel
// metrics backend.
type MetricsSnapshot struct {
	RequestCount       int64
	SuccessCount       int64
	FailureCount       int64
	OutputMessageCount int64
	ActionCallCount    int64
	AvgLatencyMS       float64
}

// ewmaAlpha weights the most recent latency sample against the running
// average. Lower values smooth more, higher values track more closely.
const ewmaAlpha = 0.2

// Metrics tracks process-wide request counters and a rolling-average
// latency, both in a plain in-memory snapshot and (best-effort) mirrored
// to the otel meter as counters and a histogram.
type Metrics struct {
	mu                 sync.Mutex
	requestCount       int64
	successCount       int64
	failureCount       int64
	outputMessageCount int64
	actionCallCount    int64
	avgLatencyMS       float64
	haveLatency        bool

	requestCounter metric.Int64Counter
	successCounter metric.Int64Counter
	failureCounter metric.Int64Counter
	latencyHist    metric.Float64Histogram
}

// NewMetrics creates a Metrics instance backed by the process otel meter.
// Instrument creation failures are tolerated (the otel mirror becomes a
// no-op); the in-memory snapshot always works.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.requestCounter, _ = atelemetry.Meter.Int64Counter(
		"copilot_runtime_requests_total",
		metric.WithDescription("Total number of chat requests handled"),
	)
	m.successCounter, _ = atelemetry.Meter.Int64Counter(
		"copilot_runtime_requests_success_total",
		metric.WithDescription("Total number of chat requests that completed successfully"),
	)
	m.failureCounter, _ = atelemetry.Meter.Int64Counter(
		"copilot_runtime_requests_failure_total",
		metric.WithDescription("Total number of chat requests that failed"),
	)
	m.latencyHist, _ = atelemetry.Meter.Float64Histogram(
		"copilot_runtime_request_latency_ms",
		metric.WithDescription("Request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	return m
}

// NewMetricsMiddleware returns a Before/After pair wired to m: before
// stamps a start timestamp into opts.Metadata, after records the outcome.
func NewMetricsMiddleware(m *Metrics) (Before, After) {
	const startKey = "metrics_start_ms"

	before := func(ctx context.Context, opts *HookOpts) HookResult {
		m.recordRequest()
		return HookResult{Success: true, Metadata: map[string]any{startKey: time.Now().UnixMilli()}}
	}
	after := func(ctx context.Context, opts *HookOpts) HookResult {
		var elapsedMS float64
		if start, ok := opts.Metadata[startKey].(int64); ok {
			elapsedMS = float64(time.Now().UnixMilli() - start)
		}
		m.recordOutcome(ctx, opts.RunErr == nil, elapsedMS)
		m.recordOutputMessages(ctx, len(opts.Messages))
		return ok()
	}
	return before, after
}

func (m *Metrics) recordRequest() {
	m.mu.Lock()
	m.requestCount++
	m.mu.Unlock()
	if m.requestCounter != nil {
		m.requestCounter.Add(context.Background(), 1)
	}
}

func (m *Metrics) recordOutcome(ctx context.Context, success bool, latencyMS float64) {
	m.mu.Lock()
	if success {
		m.successCount++
	} else {
		m.failureCount++
	}
	if m.haveLatency {
		m.avgLatencyMS = ewmaAlpha*latencyMS + (1-ewmaAlpha)*m.avgLatencyMS
	} else {
		m.avgLatencyMS = latencyMS
		m.haveLatency = true
	}
	m.mu.Unlock()

	if success && m.successCounter != nil {
		m.successCounter.Add(ctx, 1)
	} else if !success && m.failureCounter != nil {
		m.failureCounter.Add(ctx, 1)
	}
	if m.latencyHist != nil {
		m.latencyHist.Record(ctx, latencyMS)
	}
}

func (m *Metrics) recordOutputMessages(ctx context.Context, count int) {
	m.mu.Lock()
	m.outputMessageCount += int64(count)
	m.mu.Unlock()
}

// RecordActionCall increments the action-call counter. Called by the
// event pipeline once per dispatched server-side action execution.
func (m *Metrics) RecordActionCall() {
	m.mu.Lock()
	m.actionCallCount++
	m.mu.Unlock()
}

// Snapshot returns a consistent point-in-time read of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		RequestCount:       m.requestCount,
		SuccessCount:       m.successCount,
		FailureCount:       m.failureCount,
		OutputMessageCount: m.outputMessageCount,
		ActionCallCount:    m.actionCallCount,
		AvgLatencyMS:       m.avgLatencyMS,
	}
}
