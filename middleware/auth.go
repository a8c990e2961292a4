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
)

// NewAuthMiddleware returns a Before hook that rejects any request whose
// context.properties["api_key"] is not in the allow-set. An empty
// allow-set accepts every request (auth disabled).
func NewAuthMiddleware(allowedAPIKeys []string) Before {
	allowed := make(map[string]struct{}, len(allowedAPIKeys))
	for _, k := range allowedAPIKeys {
		allowed[k] = struct{}{}
	}
	return func(ctx context.Context, opts *HookOpts) HookResult {
		if len(allowed) == 0 {
			return ok()
		}
		key := opts.Context.Property("api_key")
		if _, present := allowed[key]; !present {
			return fail(fmt.Errorf("middleware: missing or unrecognized api_key"))
		}
		return ok()
	}
}
