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

	"github.com/kestrel-ai/copilot-runtime/log"
)

// NewLoggingMiddleware returns a Before/After pair that logs the start and
// outcome of every request at info level.
func NewLoggingMiddleware() (Before, After) {
	before := func(ctx context.Context, opts *HookOpts) HookResult {
		log.Infof("request start thread_id=%s run_id=%s messages=%d",
			opts.Context.ThreadID, opts.Context.RunID, len(opts.Messages))
		return ok()
	}
	after := func(ctx context.Context, opts *HookOpts) HookResult {
		if opts.RunErr != nil {
			log.Warnf("request failed thread_id=%s run_id=%s: %v",
				opts.Context.ThreadID, opts.Context.RunID, opts.RunErr)
		} else {
			log.Infof("request done thread_id=%s run_id=%s output_messages=%d",
				opts.Context.ThreadID, opts.Context.RunID, len(opts.Messages))
		}
		return ok()
	}
	return before, after
}
