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
	"encoding/json"
	"fmt"

	"github.com/panjf2000/ants/v2"

	"github.com/kestrel-ai/copilot-runtime/action"
)

// handlerResult carries a PooledHandler invocation's outcome back across
// the ants worker goroutine.
type handlerResult struct {
	value  any
	stream <-chan action.Chunk
	err    error
}

// PooledHandler wraps h so that its body runs on pool instead of directly
// on the pipeline's goroutine, bounding the number of concurrent handler
// invocations across all in-flight requests. The call still blocks until
// the handler completes: the pipeline's single-threaded-cooperative
// suspension point (awaiting an action handler) is unchanged, only which
// goroutine does the work.
func PooledHandler(pool *ants.Pool, h action.Handler) action.Handler {
	return func(ctx context.Context, args json.RawMessage) (any, <-chan action.Chunk, error) {
		done := make(chan handlerResult, 1)
		err := pool.Submit(func() {
			v, s, e := h(ctx, args)
			done <- handlerResult{value: v, stream: s, err: e}
		})
		if err != nil {
			return nil, nil, fmt.Errorf("runtime: submitting action handler to worker pool: %w", err)
		}
		select {
		case res := <-done:
			return res.value, res.stream, res.err
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}
