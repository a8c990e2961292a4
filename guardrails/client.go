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

// Package guardrails implements the optional pre-flight validation call
// (C8): a request carrying a cloud guardrails config is checked against a
// remote endpoint before the provider adapter is ever invoked.
package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kestrel-ai/copilot-runtime/provider"
)

const defaultTimeout = 15 * time.Second

const defaultEndpointPath = "/guardrails/validate"

// InputValidationRules carries the topic allow/deny lists a request may
// attach under cloud.guardrails.
type InputValidationRules struct {
	AllowList []string `json:"allow_list,omitempty"`
	DenyList  []string `json:"deny_list,omitempty"`
}

// Config is the per-request guardrails configuration parsed from the
// request body's cloud.guardrails field.
type Config struct {
	InputValidationRules InputValidationRules `json:"input_validation_rules"`
}

// Status is the verdict a guardrails call returns.
type Status string

// Recognized verdict statuses.
const (
	StatusAllowed Status = "allowed"
	StatusDenied  Status = "denied"
)

// Verdict is the decoded guardrails response.
type Verdict struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type validateRequest struct {
	Message              string               `json:"message"`
	Messages             []provider.Message   `json:"messages"`
	InputValidationRules InputValidationRules `json:"input_validation_rules"`
}

// Client calls a configured guardrails endpoint. It is safe for concurrent
// use; outbound calls are bounded through pool so a burst of requests
// cannot spawn unbounded concurrent HTTP work.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pool       *ants.Pool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (used by tests to point
// at an httptest.Server with a short timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// New creates a Client targeting baseURL (the value of
// COPILOT_CLOUD_BASE_URL) authenticated with apiKey, dispatching calls
// through pool.
func New(baseURL, apiKey string, pool *ants.Pool, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		pool:       pool,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate sends the final user message plus prior dialog context to the
// guardrails endpoint and returns its verdict. The call runs on c.pool;
// Validate blocks until it completes or ctx is cancelled.
func (c *Client) Validate(ctx context.Context, cfg Config, finalMessage string, history []provider.Message) (Verdict, error) {
	type result struct {
		v   Verdict
		err error
	}
	done := make(chan result, 1)
	submitErr := c.pool.Submit(func() {
		v, err := c.doValidate(ctx, cfg, finalMessage, history)
		done <- result{v, err}
	})
	if submitErr != nil {
		return Verdict{}, fmt.Errorf("guardrails: submitting validation call to worker pool: %w", submitErr)
	}
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return Verdict{}, ctx.Err()
	}
}

func (c *Client) doValidate(ctx context.Context, cfg Config, finalMessage string, history []provider.Message) (Verdict, error) {
	body, err := json.Marshal(validateRequest{
		Message:              finalMessage,
		Messages:             history,
		InputValidationRules: cfg.InputValidationRules,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("guardrails: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+defaultEndpointPath, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("guardrails: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("guardrails: calling validation endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("guardrails: validation endpoint returned status %d", resp.StatusCode)
	}

	var v Verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return Verdict{}, fmt.Errorf("guardrails: decoding response: %w", err)
	}
	return v, nil
}
