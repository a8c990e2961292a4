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

	"github.com/kestrel-ai/copilot-runtime/runtime/message"
)

// OutputMessagesPromise is a one-shot future carrying the collated list of
// messages produced by one request. It is resolved exactly once, either
// with the final message list or with an error.
type OutputMessagesPromise struct {
	done     chan struct{}
	once     sync.Once
	messages []message.Message
	err      error
}

func newOutputMessagesPromise() *OutputMessagesPromise {
	return &OutputMessagesPromise{done: make(chan struct{})}
}

// Resolve fulfills the promise with messages. Only the first call of
// Resolve or Reject on a given promise has any effect.
func (p *OutputMessagesPromise) Resolve(messages []message.Message) {
	p.once.Do(func() {
		p.messages = messages
		close(p.done)
	})
}

// Reject fulfills the promise with an error. Only the first call of
// Resolve or Reject on a given promise has any effect.
func (p *OutputMessagesPromise) Reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Await blocks until the promise is resolved or rejected, or ctx is
// cancelled first.
func (p *OutputMessagesPromise) Await(ctx context.Context) ([]message.Message, error) {
	select {
	case <-p.done:
		return p.messages, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Promises is the process-wide registry of in-flight OutputMessagesPromise
// instances, keyed by thread_id. At most one live entry per thread_id.
type Promises struct {
	mu    sync.Mutex
	byKey map[string]*OutputMessagesPromise
}

// NewPromises creates an empty registry.
func NewPromises() *Promises {
	return &Promises{byKey: make(map[string]*OutputMessagesPromise)}
}

// Create registers a new promise for threadID. It returns an error if one
// is already pending for that thread_id.
func (r *Promises) Create(threadID string) (*OutputMessagesPromise, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[threadID]; exists {
		return nil, fmt.Errorf("middleware: an output-messages promise is already pending for thread %q", threadID)
	}
	p := newOutputMessagesPromise()
	r.byKey[threadID] = p
	return p, nil
}

// Resolve fulfills and removes the pending promise for threadID, if any.
func (r *Promises) Resolve(threadID string, messages []message.Message) {
	r.mu.Lock()
	p, ok := r.byKey[threadID]
	if ok {
		delete(r.byKey, threadID)
	}
	r.mu.Unlock()
	if ok {
		p.Resolve(messages)
	}
}

// Reject fulfills and removes the pending promise for threadID, if any.
func (r *Promises) Reject(threadID string, err error) {
	r.mu.Lock()
	p, ok := r.byKey[threadID]
	if ok {
		delete(r.byKey, threadID)
	}
	r.mu.Unlock()
	if ok {
		p.Reject(err)
	}
}
