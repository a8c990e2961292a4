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

	"github.com/kestrel-ai/copilot-runtime/runtime/message"
)

// HookOpts is passed to every Before/After hook.
type HookOpts struct {
	Context *RequestContext

	// Messages carries the inbound message list into a Before hook
	// and the collated output list into an After hook. A hook that wants
	// to rewrite it returns a non-nil ModifiedMessages on its HookResult.
	Messages []message.Message

	// RunErr is populated for After hooks when the request failed; nil on
	// success.
	RunErr error

	// Metadata is free-form state a hook may stash for a later hook in the
	// same chain run (e.g. a start timestamp for a latency metric).
	Metadata map[string]any
}

// HookResult is returned by a Before or After hook.
type HookResult struct {
	// Success false short-circuits the remaining Before chain (After
	// hooks always keep running regardless of Success).
	Success bool
	Err     error

	// ModifiedMessages, if non-nil, replaces HookOpts.Messages for
	// subsequent hooks and for the orchestrator.
	ModifiedMessages []message.Message

	// Metadata is merged into HookOpts.Metadata for subsequent hooks.
	Metadata map[string]any
}

func ok() HookResult { return HookResult{Success: true} }

func fail(err error) HookResult { return HookResult{Success: false, Err: err} }

// Before runs ahead of the adapter invocation.
type Before func(ctx context.Context, opts *HookOpts) HookResult

// After runs once the request's OutputMessagesPromise resolves or rejects.
type After func(ctx context.Context, opts *HookOpts) HookResult
