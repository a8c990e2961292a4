package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kestrel-ai/copilot-runtime/action"
	"github.com/kestrel-ai/copilot-runtime/events"
	"github.com/kestrel-ai/copilot-runtime/log"
	"github.com/kestrel-ai/copilot-runtime/runtime/message"
)

// Sink receives events emitted by a Pipeline, in order.
type Sink func(events.Event)

// ApprovalGate decides whether a server-side action call must be diverted
// to the approval subsystem (C6) instead of running immediately. When it
// returns handled=true, the gate itself is responsible for eventually
// emitting the ActionExecutionResult via emit.
type ApprovalGate interface {
	Gate(ctx context.Context, threadID string, act *action.Action, actionExecutionID string, args json.RawMessage, emit Sink) (handled bool)
}

// deferredCall is a nested tool call queued by a structured handler result,
// drained after the current chunk source is exhausted.
type deferredCall struct {
	name string
	args string
}

// ActionCallRecorder observes each dispatched server-side action execution.
// Satisfied by *middleware.Metrics; kept as a small interface here so this
// package doesn't need to import middleware just for one counter.
type ActionCallRecorder interface {
	RecordActionCall()
}

// Pipeline is one request's event-pipeline instance: one chunk source, one
// state machine, one sink. Per §5 it is single-threaded-cooperative: at
// most one outstanding chunk is processed at a time, and tool execution
// suspends further chunk consumption.
type Pipeline struct {
	threadID string
	actions  map[string]*action.Action
	sink     Sink
	approval ApprovalGate

	// Metrics, when set, is notified once per dispatched server-side
	// action execution (excludes client-side, remote-agent, and
	// invalid-argument calls, which never reach a local handler).
	Metrics ActionCallRecorder

	state    State
	deferred []deferredCall
}

// New creates a Pipeline over the given action set (keyed by name) and
// sink. approval may be nil, in which case no action is ever gated.
func New(threadID string, actions map[string]*action.Action, sink Sink, approval ApprovalGate) *Pipeline {
	return &Pipeline{threadID: threadID, actions: actions, sink: sink, approval: approval, state: State{Mode: ModeIdle}}
}

// Run drains chunks until the channel closes, applying the state machine
// rules in §4.1 to each, then finalizes. It returns ctx.Err() when the
// context is cancelled and nil otherwise; a failing handler is reported as
// a result event carrying a HANDLER_ERROR or INVALID_ARGUMENTS code, not
// as a returned error.
func (p *Pipeline) Run(ctx context.Context, chunks <-chan Chunk) error {
	for {
		select {
		case <-ctx.Done():
			p.finalize(ctx)
			return ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				p.finalize(ctx)
				p.drainDeferred(ctx)
				return nil
			}
			if stop := p.apply(ctx, c); stop {
				p.finalize(ctx)
				p.drainDeferred(ctx)
				return nil
			}
		}
	}
}

// apply runs rules 1-7 against a single chunk. It returns true when rule 7
// says the chunk loop should terminate.
func (p *Pipeline) apply(ctx context.Context, c Chunk) bool {
	s := &p.state

	// Rule 1: switch mode out of message.
	if s.Mode == ModeInMessage && c.HasToolCallWithID {
		p.emit(events.TextMessageEnd(s.CurrentMessageID))
		s.Mode = ModeIdle
	}

	// Rule 2: switch mode out of function.
	if s.Mode == ModeInFunction &&
		(c.FinishReason != "" || (c.HasToolCallWithID && c.ToolCallID != s.CurrentToolCallID) || c.TextDelta != "") {
		p.closeFunction(ctx)
	}

	// Rule 3: enter function.
	if s.Mode == ModeIdle && c.HasToolCallWithID {
		s.CurrentToolCallID = c.ToolCallID
		s.CurrentActionName = c.ToolCallName
		act, isServerSide := p.lookupAction(c.ToolCallName)
		s.Action = act
		s.ActionIsServerSide = isServerSide
		s.ParentMessageID = c.ChunkID
		s.AccumulatedArgs = ""
		p.emit(events.ActionExecutionStart(s.CurrentToolCallID, s.CurrentActionName, s.ParentMessageID))
		s.Mode = ModeInFunction
	} else if s.Mode == ModeIdle && c.TextDelta != "" {
		// Rule 4: enter message.
		id := c.ChunkID
		if id == "" {
			id = events.NewID()
		}
		s.CurrentMessageID = id
		p.emit(events.TextMessageStart(s.CurrentMessageID, ""))
		s.Mode = ModeInMessage
	}

	// Rule 5: emit content.
	if s.Mode == ModeInMessage && c.TextDelta != "" {
		p.emit(events.TextMessageContent(s.CurrentMessageID, c.TextDelta))
	}

	// Rule 6: emit args.
	if s.Mode == ModeInFunction && c.ToolCallArgsDelta != "" {
		s.AccumulatedArgs += c.ToolCallArgsDelta
		p.emit(events.ActionExecutionArgs(s.CurrentToolCallID, c.ToolCallArgsDelta))
	}

	// Rule 7: terminate on finish.
	return c.FinishReason != ""
}

func (p *Pipeline) lookupAction(name string) (act *action.Action, serverSide bool) {
	a, ok := p.actions[name]
	if !ok {
		return nil, false
	}
	return a, a.Availability != action.AvailabilityRemote && a.Handler != nil
}

// finalize closes whichever group is still open, then runs the tool
// execution policy if the last closed group was a server-side action call.
func (p *Pipeline) finalize(ctx context.Context) {
	switch p.state.Mode {
	case ModeInMessage:
		p.emit(events.TextMessageEnd(p.state.CurrentMessageID))
		p.state.Mode = ModeIdle
	case ModeInFunction:
		p.closeFunction(ctx)
	}
}

// closeFunction emits ActionExecutionEnd and, if the action is a
// server-side handler, executes the tool-execution policy (§4.1).
func (p *Pipeline) closeFunction(ctx context.Context) {
	s := &p.state
	id, name, act, serverSide, args := s.CurrentToolCallID, s.CurrentActionName, s.Action, s.ActionIsServerSide, s.AccumulatedArgs
	p.emit(events.ActionExecutionEnd(id))
	s.Mode = ModeIdle

	if !serverSide || act == nil || act.Handler == nil {
		return
	}
	p.executeToolCall(ctx, id, name, act, args)
}

// executeToolCall implements the §4.1 tool execution policy.
func (p *Pipeline) executeToolCall(ctx context.Context, id, name string, act *action.Action, rawArgs string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("pipeline: action %s panicked: %v", name, r)
			p.emit(events.ActionExecutionResult(id, name, message.EncodeResult("", &message.ResultError{
				Code: "HANDLER_ERROR", Message: fmt.Sprintf("%v", r),
			})))
		}
	}()

	var args json.RawMessage
	if rawArgs == "" {
		rawArgs = "{}"
	}
	if !json.Valid([]byte(rawArgs)) {
		p.emit(events.ActionExecutionResult(id, name, message.EncodeResult("", &message.ResultError{
			Code: "INVALID_ARGUMENTS", Message: "tool call arguments are not valid JSON",
		})))
		return
	}
	args = json.RawMessage(rawArgs)

	if act.RemoteAgentHandler != nil {
		p.emit(events.ActionExecutionResult(id, name, fmt.Sprintf("%s agent started", name)))
		stream, err := act.RemoteAgentHandler(ctx, args)
		if err != nil {
			log.Errorf("pipeline: remote agent handler for %s failed: %v", name, err)
			return
		}
		for chunk := range stream {
			if chunk.Err != nil {
				p.emit(events.NewError("REMOTE_AGENT_ERROR", chunk.Err.Error()))
				continue
			}
			if ev, ok := chunk.Value.(events.Event); ok {
				p.emit(ev)
			}
		}
		return
	}

	if p.approval != nil && p.approval.Gate(ctx, p.threadID, act, id, args, p.emit) {
		// The approval subsystem owns emitting the eventual result.
		return
	}

	if p.Metrics != nil {
		p.Metrics.RecordActionCall()
	}

	value, stream, err := act.Handler(ctx, args)
	if err != nil {
		p.emit(events.ActionExecutionResult(id, name, message.EncodeResult("", &message.ResultError{
			Code: "HANDLER_ERROR", Message: err.Error(),
		})))
		return
	}

	if stream != nil {
		p.drainHandlerStream(id, name, stream)
		return
	}

	switch v := value.(type) {
	case string:
		p.emit(events.ActionExecutionResult(id, name, v))
	case map[string]any:
		p.handleStructuredResult(id, name, v)
	default:
		b, marshalErr := json.Marshal(v)
		if marshalErr != nil {
			p.emit(events.ActionExecutionResult(id, name, fmt.Sprintf("%v", v)))
			return
		}
		p.emit(events.ActionExecutionResult(id, name, string(b)))
	}
}

// handleStructuredResult handles a handler result shaped as
// {content?, tool_calls?}: emit a synthetic text message for content, and
// queue any nested tool_calls as deferred work.
func (p *Pipeline) handleStructuredResult(id, name string, v map[string]any) {
	if content, ok := v["content"].(string); ok && content != "" {
		msgID := events.NewID()
		p.emit(events.TextMessageStart(msgID, ""))
		p.emit(events.TextMessageContent(msgID, content))
		p.emit(events.TextMessageEnd(msgID))
	}
	if calls, ok := v["tool_calls"].([]any); ok {
		for _, c := range calls {
			call, ok := c.(map[string]any)
			if !ok {
				continue
			}
			callName, _ := call["name"].(string)
			var argsStr string
			switch a := call["arguments"].(type) {
			case string:
				argsStr = a
			default:
				if b, err := json.Marshal(a); err == nil {
					argsStr = string(b)
				}
			}
			p.deferred = append(p.deferred, deferredCall{name: callName, args: argsStr})
		}
	}
	p.emit(events.ActionExecutionResult(id, name, "Sending a message"))
}

// drainHandlerStream feeds a streamed handler result into a nested
// text-message group sharing this Pipeline's sink, then emits the
// terminating ActionExecutionResult. A handler stream that itself wants to
// emit nested ActionExecution groups can send events.Event values instead
// of plain strings; those are forwarded to the sink verbatim, which is the
// "stack of pipeline states" the nested-tool-call case reduces to since
// both share the same flat sink.
func (p *Pipeline) drainHandlerStream(id, name string, stream <-chan action.Chunk) {
	msgID := events.NewID()
	p.emit(events.TextMessageStart(msgID, ""))
	for chunk := range stream {
		if chunk.Err != nil {
			p.emit(events.NewError("HANDLER_STREAM_ERROR", chunk.Err.Error()))
			continue
		}
		switch v := chunk.Value.(type) {
		case string:
			p.emit(events.TextMessageContent(msgID, v))
		case events.Event:
			p.emit(v)
		}
	}
	p.emit(events.TextMessageEnd(msgID))
	p.emit(events.ActionExecutionResult(id, name, "Sending a message"))
}

// drainDeferred processes nested tool calls queued by handleStructuredResult,
// each producing a fresh ActionExecutionStart/Args/End group fed through the
// same state machine rules, after the current chunk source is exhausted.
func (p *Pipeline) drainDeferred(ctx context.Context) {
	for len(p.deferred) > 0 {
		call := p.deferred[0]
		p.deferred = p.deferred[1:]

		id := events.NewID()
		act, serverSide := p.lookupAction(call.name)
		p.emit(events.ActionExecutionStart(id, call.name, ""))
		if call.args != "" {
			p.emit(events.ActionExecutionArgs(id, call.args))
		}
		p.emit(events.ActionExecutionEnd(id))
		if serverSide && act != nil {
			p.executeToolCall(ctx, id, call.name, act, call.args)
		}
	}
}

func (p *Pipeline) emit(e events.Event) {
	if p.sink != nil {
		p.sink(e)
	}
}
