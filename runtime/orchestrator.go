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
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/kestrel-ai/copilot-runtime/action"
	"github.com/kestrel-ai/copilot-runtime/events"
	"github.com/kestrel-ai/copilot-runtime/guardrails"
	itelemetry "github.com/kestrel-ai/copilot-runtime/internal/telemetry"
	"github.com/kestrel-ai/copilot-runtime/log"
	"github.com/kestrel-ai/copilot-runtime/middleware"
	"github.com/kestrel-ai/copilot-runtime/pipeline"
	"github.com/kestrel-ai/copilot-runtime/provider"
	"github.com/kestrel-ai/copilot-runtime/provider/openai"
	"github.com/kestrel-ai/copilot-runtime/runtime/message"
	"github.com/kestrel-ai/copilot-runtime/telemetry"
)

// Orchestrator ties the middleware chain, action resolution, guardrails,
// the provider adapter and the event pipeline together for one request.
type Orchestrator struct {
	Registry   *provider.Registry
	Chain      *middleware.Chain
	Actions    []*action.Action
	Approval   pipeline.ApprovalGate
	Guardrails *guardrails.Client
	Pool       *ants.Pool

	// RemoteActions holds actions discovered from remote agent endpoints
	// (AvailabilityRemote, dispatched via RemoteAgentHandler). They merge
	// into every request's action set at the lowest precedence tier: a
	// server action or client-declared action with the same name wins.
	RemoteActions []*action.Action

	// ActionMetrics, when set, is notified once per dispatched server-side
	// action execution via the per-request pipeline.
	ActionMetrics pipeline.ActionCallRecorder

	// ModelCallbacks, when set, runs around the provider call: a before-hook
	// may short-circuit the adapter entirely with a canned Response, an
	// after-hook observes the run's outcome once the stream is drained.
	ModelCallbacks *provider.ModelCallbacks
}

// NewOrchestrator wires an Orchestrator. approval and guardrailsClient may
// be nil (no gated actions / no guardrails configured); pool may be nil, in
// which case server-side action handlers run directly on the pipeline's
// goroutine instead of a bounded worker pool.
func NewOrchestrator(
	registry *provider.Registry,
	chain *middleware.Chain,
	serverActions []*action.Action,
	approval pipeline.ApprovalGate,
	guardrailsClient *guardrails.Client,
	pool *ants.Pool,
) *Orchestrator {
	return &Orchestrator{
		Registry:   registry,
		Chain:      chain,
		Actions:    serverActions,
		Approval:   approval,
		Guardrails: guardrailsClient,
		Pool:       pool,
	}
}

// HandleChat drives one request to completion and returns the collated
// Message list: the non-streaming /api/chat shape.
func (o *Orchestrator) HandleChat(ctx context.Context, req *ChatRequest, reqCtx *middleware.RequestContext) (*Result, error) {
	return o.run(ctx, req, reqCtx, nil)
}

// HandleChatStream drives one request to completion, invoking onEvent for
// every pipeline event as it is produced; the /api/chat/stream shape. The
// returned Result is the same collated view HandleChat returns, useful for
// the terminal response_end frame.
func (o *Orchestrator) HandleChatStream(ctx context.Context, req *ChatRequest, reqCtx *middleware.RequestContext, onEvent func(events.Event)) (*Result, error) {
	return o.run(ctx, req, reqCtx, onEvent)
}

// run implements the request lifecycle. onEvent may be nil for the
// collation-only path.
func (o *Orchestrator) run(ctx context.Context, req *ChatRequest, reqCtx *middleware.RequestContext, onEvent func(events.Event)) (*Result, error) {
	// 1. Normalize.
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.New().String()
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	reqCtx.ThreadID = threadID
	reqCtx.RunID = runID
	reqCtx.RequestStartMS = time.Now().UnixMilli()

	// 2. Middleware "before".
	beforeOpts := &middleware.HookOpts{Context: reqCtx, Messages: req.Messages}
	if res := o.Chain.BeforeAll(ctx, beforeOpts); !res.Success {
		return nil, res.Err
	}
	messages := beforeOpts.Messages

	// 3. Resolve action set.
	actionsByName, orderedActions := o.resolveActions(req.Actions)

	// Register the output-messages promise before any path that might need
	// to resolve it (guardrails denial included).
	promise, err := o.Chain.Promises.Create(threadID)
	if err != nil {
		return nil, err
	}

	collector := NewEventCollector()
	sink := func(ev events.Event) {
		collector.Push(ev)
		if onEvent != nil {
			onEvent(ev)
		}
	}

	// 4. Guardrails, if configured.
	if req.Cloud != nil && req.Cloud.Guardrails != nil && o.Guardrails != nil {
		if status, reason, handled := o.runGuardrails(ctx, *req.Cloud.Guardrails, messages, sink); handled {
			o.Chain.Promises.Resolve(threadID, collector.Messages())
			o.Chain.RunAfterOnSettled(ctx, reqCtx, promise)
			return &Result{
				ThreadID: threadID, RunID: runID, Messages: collector.Messages(),
				Status: ResponseStatus{Code: status, Reason: reason},
			}, nil
		}
	}

	// 6. Invoke adapter.
	adapter, err := o.resolveAdapter(req)
	if err != nil {
		return nil, err
	}
	providerReq := &provider.Request{
		Messages:         ToProviderMessages(message.FilterAllowedResults(messages)),
		GenerationConfig: buildGenerationConfig(req.ForwardedParameters),
		Tools:            orderedActions,
	}
	spanCtx, span := telemetry.Tracer.Start(ctx, itelemetry.NewChatSpanName(req.Model))
	defer span.End()
	itelemetry.TraceGenerateContent(span, threadID, runID, providerReq, nil)

	var respCh <-chan *provider.Response
	if o.ModelCallbacks != nil {
		customResp, cbErr := o.ModelCallbacks.RunBeforeModel(spanCtx, threadID, providerReq)
		if cbErr != nil {
			return nil, fmt.Errorf("runtime: before-model callback: %w", cbErr)
		}
		if customResp != nil {
			single := make(chan *provider.Response, 1)
			single <- customResp
			close(single)
			respCh = single
		}
	}
	if respCh == nil {
		respCh, err = adapter.GenerateContent(spanCtx, providerReq)
		if err != nil {
			return nil, fmt.Errorf("runtime: invoking provider adapter: %w", err)
		}
	}

	// 7. Collect output: drain the adapter's response stream through the
	// event pipeline, which both emits events live (onEvent) and folds
	// them into the collector.
	pl := pipeline.New(threadID, actionsByName, sink, o.Approval)
	pl.Metrics = o.ActionMetrics
	chunks := make(chan pipeline.Chunk)
	go func() {
		defer close(chunks)
		for resp := range respCh {
			if resp == nil {
				continue
			}
			if resp.Error != nil {
				sink(events.NewError("PROVIDER_ERROR", resp.Error.Message))
				continue
			}
			c, ok := openai.DecodeChunk(resp)
			if !ok {
				continue
			}
			select {
			case chunks <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	runErr := pl.Run(ctx, chunks)

	status := StatusSuccess
	reason := ""
	switch {
	case runErr == context.Canceled || runErr == context.DeadlineExceeded:
		status = StatusMessageStreamInterrupted
		reason = runErr.Error()
	case runErr != nil:
		status = StatusUnknownError
		reason = runErr.Error()
	}

	if o.ModelCallbacks != nil {
		if _, cbErr := o.ModelCallbacks.RunAfterModel(ctx, threadID, nil, runErr); cbErr != nil {
			log.Warnf("runtime: after-model callback for thread %q: %v", threadID, cbErr)
		}
	}

	outputMessages := collector.Messages()
	if runErr != nil {
		o.Chain.Promises.Reject(threadID, runErr)
	} else {
		o.Chain.Promises.Resolve(threadID, outputMessages)
	}

	// 8. Middleware "after".
	if afterRes := o.Chain.RunAfterOnSettled(ctx, reqCtx, promise); !afterRes.Success {
		log.Warnf("runtime: after-middleware chain reported failure for thread %q: %v", threadID, afterRes.Err)
	}

	// 9. Cleanup: nothing else to release; pending-approval entries that
	// were never decided remain in the queue by design.

	return &Result{
		ThreadID: threadID, RunID: runID, Messages: outputMessages,
		Status: ResponseStatus{Code: status, Reason: reason},
	}, nil
}

// runGuardrails implements lifecycle step 4. It returns handled=true when
// the request was denied or the guardrails call itself failed, in which
// case the caller must stop before invoking the adapter.
func (o *Orchestrator) runGuardrails(ctx context.Context, cfg guardrails.Config, messages []message.Message, sink func(events.Event)) (status ErrorStatus, reason string, handled bool) {
	finalMessage := lastUserText(messages)
	verdict, err := o.Guardrails.Validate(ctx, cfg, finalMessage, ToProviderMessages(messages))
	if err != nil {
		sink(events.NewError("GUARDRAILS_ERROR", err.Error()))
		return StatusUnknownError, err.Error(), true
	}
	if verdict.Status != guardrails.StatusDenied {
		return StatusSuccess, "", false
	}
	emitAssistantText(sink, verdict.Reason)
	return StatusGuardrailsValidationFailure, verdict.Reason, true
}

// emitAssistantText emits a complete TextMessageStart/Content/End group
// carrying content as the only delta, for paths that short-circuit the
// pipeline (guardrails denial) but still need a well-formed message.
func emitAssistantText(sink func(events.Event), content string) {
	id := events.NewID()
	sink(events.TextMessageStart(id, ""))
	sink(events.TextMessageContent(id, content))
	sink(events.TextMessageEnd(id))
}

func lastUserText(messages []message.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Kind == message.KindText && messages[i].Role == message.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// resolveActions resolves the action set and, when a worker pool is
// configured, rewraps every server-side handler through it so handler work
// runs off the pipeline's own goroutine.
func (o *Orchestrator) resolveActions(clientDescriptors []ActionDescriptor) (map[string]*action.Action, []*action.Action) {
	byName, ordered := ResolveActionSet(o.Actions, clientDescriptors, o.RemoteActions)
	if o.Pool == nil {
		return byName, ordered
	}
	wrapped := make(map[string]*action.Action, len(byName))
	for i, a := range ordered {
		if a.Handler == nil {
			wrapped[a.Name] = a
			continue
		}
		cp := *a
		cp.Handler = PooledHandler(o.Pool, a.Handler)
		ordered[i] = &cp
		wrapped[cp.Name] = &cp
	}
	return wrapped, ordered
}

func (o *Orchestrator) resolveAdapter(req *ChatRequest) (provider.Adapter, error) {
	key := req.Model
	if req.ForwardedParameters != nil && req.ForwardedParameters.Model != nil && *req.ForwardedParameters.Model != "" {
		key = *req.ForwardedParameters.Model
	}
	if key == "" {
		return o.Registry.Default()
	}
	return o.Registry.Resolve(key)
}

func buildGenerationConfig(fp *ForwardedParameters) provider.GenerationConfig {
	cfg := provider.GenerationConfig{Stream: true}
	if fp == nil {
		return cfg
	}
	cfg.Temperature = fp.Temperature
	cfg.MaxTokens = fp.MaxTokens
	cfg.Stop = fp.Stop
	cfg.ToolChoice = fp.ToolChoice
	cfg.ToolChoiceFunctionName = fp.ToolChoiceFunctionName
	cfg.ParallelToolCalls = fp.ParallelToolCalls
	return cfg
}
