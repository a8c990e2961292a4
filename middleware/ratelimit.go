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
	"fmt"
	"sync"
	"time"
)

// RateLimiter is a sliding-window request counter keyed by thread_id: for
// each key it tracks a list of recent request timestamps, pruning any
// older than the window on each check. The (N+1)-th request within the
// same window is rejected; the window then slides forward as older
// timestamps age out.
type RateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	limit    int
	recent   map[string][]time.Time
	nowFunc  func() time.Time
}

// NewRateLimiter creates a limiter allowing at most limit requests per
// key in any rolling window duration.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		window:  window,
		limit:   limit,
		recent:  make(map[string][]time.Time),
		nowFunc: time.Now,
	}
}

// Allow records a request for key at the current time and reports
// whether it falls within the limit.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	cutoff := now.Add(-r.window)

	times := r.recent[key]
	pruned := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= r.limit {
		r.recent[key] = pruned
		return false
	}

	pruned = append(pruned, now)
	r.recent[key] = pruned
	return true
}

// NewRateLimitMiddleware returns a Before hook enforcing limiter against
// context.thread_id.
func NewRateLimitMiddleware(limiter *RateLimiter) Before {
	return func(ctx context.Context, opts *HookOpts) HookResult {
		if !limiter.Allow(opts.Context.ThreadID) {
			return fail(fmt.Errorf("middleware: rate limit exceeded for thread %q", opts.Context.ThreadID))
		}
		return ok()
	}
}
