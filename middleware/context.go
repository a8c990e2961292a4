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

// Package middleware implements the before/after hook chain that wraps
// every request to the runtime orchestrator: logging, metrics, auth, rate
// limiting, and the output-message promise handshake.
package middleware

import "net/http"

// RequestContext carries the per-request identity and metadata threaded
// through the middleware chain and into the orchestrator. thread_id is
// the correlation key used for approvals, rate limiting, and
// OutputMessagesPromise lookups.
type RequestContext struct {
	ThreadID       string
	RunID          string
	Properties     map[string]any
	URL            string
	Headers        http.Header
	RequestStartMS int64
}

// Property returns a string-typed entry from Properties, or "" if absent
// or not a string. Convenience for middlewares like auth that only read
// one well-known key.
func (c *RequestContext) Property(key string) string {
	if c == nil || c.Properties == nil {
		return ""
	}
	v, ok := c.Properties[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
