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
	"maps"
)

// Chain holds the ordered before/after hook registries for one runtime,
// mirroring the forward-before/reverse-after, short-circuit-only-on-
// before semantics of a before/after callback registry.
type Chain struct {
	before []Before
	after  []After

	Promises *Promises
}

// NewChain creates an empty chain backed by its own promise registry.
func NewChain() *Chain {
	return &Chain{Promises: NewPromises()}
}

// RegisterBefore appends a Before hook to run, in registration order.
func (c *Chain) RegisterBefore(h Before) {
	c.before = append(c.before, h)
}

// RegisterAfter appends an After hook to run, in reverse registration
// order.
func (c *Chain) RegisterAfter(h After) {
	c.after = append(c.after, h)
}

// BeforeAll runs every Before hook in order. The first hook to report
// Success=false stops the chain and its HookResult is returned; any
// messages rewritten so far are already in opts.Messages.
func (c *Chain) BeforeAll(ctx context.Context, opts *HookOpts) HookResult {
	if opts.Metadata == nil {
		opts.Metadata = map[string]any{}
	}
	for _, h := range c.before {
		res := h(ctx, opts)
		if res.ModifiedMessages != nil {
			opts.Messages = res.ModifiedMessages
		}
		if res.Metadata != nil {
			maps.Copy(opts.Metadata, res.Metadata)
		}
		if !res.Success {
			return res
		}
	}
	return ok()
}

// AfterAll runs every After hook in reverse registration order. Unlike
// BeforeAll, a failing After hook does not stop the chain: every hook
// runs, and the last failure (if any) is returned.
func (c *Chain) AfterAll(ctx context.Context, opts *HookOpts) HookResult {
	if opts.Metadata == nil {
		opts.Metadata = map[string]any{}
	}
	result := ok()
	for i := len(c.after) - 1; i >= 0; i-- {
		res := c.after[i](ctx, opts)
		if res.ModifiedMessages != nil {
			opts.Messages = res.ModifiedMessages
		}
		if res.Metadata != nil {
			maps.Copy(opts.Metadata, res.Metadata)
		}
		if !res.Success {
			result = res
		}
	}
	return result
}

// RunAfterOnSettled waits for promise to settle (resolve or reject) and
// then runs the After chain with the collated messages or error it
// produced. This is the integration point described for the middleware
// chain: after-hooks run only once the promise resolves or rejects.
func (c *Chain) RunAfterOnSettled(ctx context.Context, reqCtx *RequestContext, promise *OutputMessagesPromise) HookResult {
	messages, err := promise.Await(ctx)
	opts := &HookOpts{
		Context:  reqCtx,
		Messages: messages,
		RunErr:   err,
	}
	return c.AfterAll(ctx, opts)
}
