//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

// Package openai provides OpenAI-compatible model implementations.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kestrel-ai/copilot-runtime/action"
	"github.com/kestrel-ai/copilot-runtime/log"
	"github.com/kestrel-ai/copilot-runtime/pipeline"
	"github.com/kestrel-ai/copilot-runtime/provider"
	imodel "github.com/kestrel-ai/copilot-runtime/provider/internal/model"
)

// defaultCompletionReserve is the token headroom reserved for the model's
// own completion when no MaxTokens is set on the request.
const defaultCompletionReserve = 1024

const (
	functionToolType string = "function"

	defaultChannelBufferSize = 256

	minTemperature = 0.0
	maxTemperature = 2.0
)

// clampTemperature restricts t to OpenAI's documented [0,2] range.
func clampTemperature(t float64) float64 {
	switch {
	case t < minTemperature:
		return minTemperature
	case t > maxTemperature:
		return maxTemperature
	default:
		return t
	}
}

// HTTPClient is the interface for the HTTP client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// HTTPClientNewFunc is the function type for creating a new HTTP client.
type HTTPClientNewFunc func(opts ...HTTPClientOption) HTTPClient

// DefaultNewHTTPClient is the default HTTP client for OpenAI.
var DefaultNewHTTPClient HTTPClientNewFunc = func(opts ...HTTPClientOption) HTTPClient {
	options := &HTTPClientOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return &http.Client{
		Transport: options.Transport,
	}
}

// HTTPClientOption is the option for the HTTP client.
type HTTPClientOption func(*HTTPClientOptions)

// WithHTTPClientName is the option for the HTTP client name.
func WithHTTPClientName(name string) HTTPClientOption {
	return func(options *HTTPClientOptions) {
		options.Name = name
	}
}

// WithHTTPClientTransport is the option for the HTTP client transport.
func WithHTTPClientTransport(transport http.RoundTripper) HTTPClientOption {
	return func(options *HTTPClientOptions) {
		options.Transport = transport
	}
}

// HTTPClientOptions is the options for the HTTP client.
type HTTPClientOptions struct {
	Name      string
	Transport http.RoundTripper
}

// Model implements the provider.Model interface for OpenAI API.
type Model struct {
	client               openai.Client
	name                 string
	baseURL              string
	apiKey               string
	channelBufferSize    int
	chatRequestCallback  ChatRequestCallbackFunc
	chatResponseCallback ChatResponseCallbackFunc
	chatChunkCallback    ChatChunkCallbackFunc
	extraFields          map[string]interface{}
	tailor               provider.TailoringStrategy
	tokenCounter         provider.TokenCounter
}

// ChatRequestCallbackFunc is the function type for the chat request callback.
type ChatRequestCallbackFunc func(
	ctx context.Context,
	chatRequest *openai.ChatCompletionNewParams,
)

// ChatResponseCallbackFunc is the function type for the chat response callback.
type ChatResponseCallbackFunc func(
	ctx context.Context,
	chatRequest *openai.ChatCompletionNewParams,
	chatResponse *openai.ChatCompletion,
)

// ChatChunkCallbackFunc is the function type for the chat chunk callback.
type ChatChunkCallbackFunc func(
	ctx context.Context,
	chatRequest *openai.ChatCompletionNewParams,
	chatChunk *openai.ChatCompletionChunk,
)

// options contains configuration options for creating a Model.
type options struct {
	// API key for the OpenAI client.
	APIKey string
	// Base URL for the OpenAI client. It is optional for OpenAI-compatible APIs.
	BaseURL string
	// Buffer size for response channels (default: 256)
	ChannelBufferSize int
	// Options for the HTTP client.
	HTTPClientOptions []HTTPClientOption
	// Callback for the chat request.
	ChatRequestCallback ChatRequestCallbackFunc
	// Callback for the chat response.
	ChatResponseCallback ChatResponseCallbackFunc
	// Callback for the chat chunk.
	ChatChunkCallback ChatChunkCallbackFunc
	// Options for the OpenAI client.
	OpenAIOptions []openaiopt.RequestOption
	// Extra fields to be added to the HTTP request body.
	ExtraFields map[string]interface{}
	// Tailor trims the conversation to the model's context window before
	// every request when set (§4.2 token budget).
	Tailor provider.TailoringStrategy
	// TokenCounter estimates the request's token footprint, including its
	// tool schemas, when Tailor is set. Defaults to a SimpleTokenCounter.
	TokenCounter provider.TokenCounter
}

// Option is a function that configures an OpenAI provider.
type Option func(*options)

// WithAPIKey sets the API key for the OpenAI client.
func WithAPIKey(key string) Option {
	return func(opts *options) {
		opts.APIKey = key
	}
}

// WithBaseURL sets the base URL for the OpenAI client.
func WithBaseURL(url string) Option {
	return func(opts *options) {
		opts.BaseURL = url
	}
}

// WithChannelBufferSize sets the channel buffer size for the OpenAI client.
func WithChannelBufferSize(size int) Option {
	return func(opts *options) {
		opts.ChannelBufferSize = size
	}
}

// WithChatRequestCallback sets the function to be called before sending a chat request.
func WithChatRequestCallback(fn ChatRequestCallbackFunc) Option {
	return func(opts *options) {
		opts.ChatRequestCallback = fn
	}
}

// WithChatResponseCallback sets the function to be called after receiving a chat response.
// Used for non-streaming responses.
func WithChatResponseCallback(fn ChatResponseCallbackFunc) Option {
	return func(opts *options) {
		opts.ChatResponseCallback = fn
	}
}

// WithChatChunkCallback sets the function to be called after receiving a chat chunk.
// Used for streaming responses.
func WithChatChunkCallback(fn ChatChunkCallbackFunc) Option {
	return func(opts *options) {
		opts.ChatChunkCallback = fn
	}
}

// WithHTTPClientOptions sets the HTTP client options for the OpenAI client.
func WithHTTPClientOptions(httpOpts ...HTTPClientOption) Option {
	return func(opts *options) {
		opts.HTTPClientOptions = httpOpts
	}
}

// WithOpenAIOptions sets the OpenAI options for the OpenAI client.
// E.g. use its middleware option:
//
//	import (
//		openai "github.com/openai/openai-go"
//		openaiopt "github.com/openai/openai-go/option"
//	)
//
//	WithOpenAIOptions(openaiopt.WithMiddleware(
//		func(req *http.Request, next openaiopt.MiddlewareNext) (*http.Response, error) {
//			// do something
//			return next(req)
//		}
//	)))
func WithOpenAIOptions(openaiOpts ...openaiopt.RequestOption) Option {
	return func(opts *options) {
		opts.OpenAIOptions = append(opts.OpenAIOptions, openaiOpts...)
	}
}

// WithExtraFields sets extra fields to be added to the HTTP request body.
// These fields will be included in every chat completion request.
// E.g.:
//
//	WithExtraFields(map[string]interface{}{
//		"custom_metadata": map[string]string{
//			"session_id": "abc",
//		},
//	})
//
// and "session_id" : "abc" will be added to the HTTP request json body.
func WithExtraFields(extraFields map[string]interface{}) Option {
	return func(opts *options) {
		if opts.ExtraFields == nil {
			opts.ExtraFields = make(map[string]interface{})
		}
		for k, v := range extraFields {
			opts.ExtraFields[k] = v
		}
	}
}

// WithTailoringStrategy sets the strategy used to fit the conversation
// within the model's context window before each request. Without one,
// GenerateContent sends the full message list unmodified.
func WithTailoringStrategy(s provider.TailoringStrategy) Option {
	return func(opts *options) {
		opts.Tailor = s
	}
}

// WithTokenCounter overrides the TokenCounter used to estimate tool-schema
// and message token costs when a tailoring strategy is set.
func WithTokenCounter(c provider.TokenCounter) Option {
	return func(opts *options) {
		opts.TokenCounter = c
	}
}

// New creates a new OpenAI-like provider.
func New(name string, opts ...Option) *Model {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []openaiopt.RequestOption

	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}

	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}

	clientOpts = append(clientOpts, openaiopt.WithHTTPClient(DefaultNewHTTPClient(o.HTTPClientOptions...)))
	clientOpts = append(clientOpts, o.OpenAIOptions...)

	client := openai.NewClient(clientOpts...)

	// Set default channel buffer size if not specified.
	channelBufferSize := o.ChannelBufferSize
	if channelBufferSize <= 0 {
		channelBufferSize = defaultChannelBufferSize
	}

	return &Model{
		client:               client,
		name:                 name,
		baseURL:              o.BaseURL,
		apiKey:               o.APIKey,
		channelBufferSize:    channelBufferSize,
		chatRequestCallback:  o.ChatRequestCallback,
		chatResponseCallback: o.ChatResponseCallback,
		chatChunkCallback:    o.ChatChunkCallback,
		extraFields:          o.ExtraFields,
		tailor:               o.Tailor,
		tokenCounter:         o.TokenCounter,
	}
}

// Info implements the provider.Model interface.
func (m *Model) Info() provider.Info {
	return provider.Info{
		Name: m.name,
	}
}

// ProviderName implements provider.Adapter.
func (m *Model) ProviderName() string { return "openai" }

// SupportsStreaming implements provider.Adapter.
func (m *Model) SupportsStreaming() bool { return true }

// SupportsFunctionCalling implements provider.Adapter.
func (m *Model) SupportsFunctionCalling() bool { return true }

// GenerateContent implements the provider.Model interface.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *provider.Request,
) (<-chan *provider.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	responseChan := make(chan *provider.Response, m.channelBufferSize)

	messages := request.Messages
	if m.tailor != nil {
		reserve := defaultCompletionReserve
		if request.MaxTokens != nil {
			reserve = *request.MaxTokens
		}
		budget := imodel.ResolveContextWindow(m.name) - reserve
		if budget > 0 {
			counter := m.tokenCounter
			if counter == nil {
				counter = provider.NewSimpleTokenCounter()
			}
			tailored, err := provider.TailorRequest(ctx, counter, m.tailor, request, budget)
			if err != nil {
				log.Errorf("openai: token tailoring failed, sending untrimmed messages: %v", err)
			} else {
				messages = tailored.Messages
			}
		}
	}

	// Convert our request format to OpenAI format.
	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: m.convertMessages(messages),
		Tools:    m.convertTools(request.Tools),
	}

	// Set optional parameters if provided.
	if request.MaxTokens != nil {
		chatRequest.MaxTokens = openai.Int(int64(*request.MaxTokens)) // Convert to int64
	}
	if request.Temperature != nil {
		chatRequest.Temperature = openai.Float(clampTemperature(*request.Temperature))
	}
	if request.TopP != nil {
		chatRequest.TopP = openai.Float(*request.TopP)
	}
	if len(request.Stop) > 0 {
		// Use the first stop string for simplicity.
		chatRequest.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfString: openai.String(request.Stop[0]),
		}
	}
	if request.PresencePenalty != nil {
		chatRequest.PresencePenalty = openai.Float(*request.PresencePenalty)
	}
	if request.FrequencyPenalty != nil {
		chatRequest.FrequencyPenalty = openai.Float(*request.FrequencyPenalty)
	}
	if request.ReasoningEffort != nil {
		chatRequest.ReasoningEffort = shared.ReasoningEffort(*request.ReasoningEffort)
	}
	var opts []openaiopt.RequestOption
	switch request.ToolChoice {
	case "":
	case "function":
		opts = append(opts, openaiopt.WithJSONSet("tool_choice", map[string]any{
			"type":     "function",
			"function": map[string]string{"name": request.ToolChoiceFunctionName},
		}))
	default:
		opts = append(opts, openaiopt.WithJSONSet("tool_choice", request.ToolChoice))
	}
	if request.ParallelToolCalls != nil {
		opts = append(opts, openaiopt.WithJSONSet("parallel_tool_calls", *request.ParallelToolCalls))
	}
	if request.ThinkingEnabled != nil {
		opts = append(opts, openaiopt.WithJSONSet(provider.ThinkingEnabledKey, *request.ThinkingEnabled))
	}
	if request.ThinkingTokens != nil {
		opts = append(opts, openaiopt.WithJSONSet(provider.ThinkingTokensKey, *request.ThinkingTokens))
	}

	// Add extra fields to the request
	for key, value := range m.extraFields {
		opts = append(opts, openaiopt.WithJSONSet(key, value))
	}

	// Add streaming options if needed.
	if request.Stream {
		chatRequest.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}

	go func() {
		defer close(responseChan)

		if m.chatRequestCallback != nil {
			m.chatRequestCallback(ctx, &chatRequest)
		}

		if request.Stream {
			m.handleStreamingResponse(ctx, chatRequest, responseChan, opts...)
		} else {
			m.handleNonStreamingResponse(ctx, chatRequest, responseChan, opts...)
		}
	}()

	return responseChan, nil
}

// convertMessages converts our Message format to OpenAI's format.
func (m *Model) convertMessages(messages []provider.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case provider.RoleSystem:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		case provider.RoleUser:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		case provider.RoleAssistant:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCalls: m.convertToolCalls(msg.ToolCalls),
				},
			}
		case provider.RoleTool:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCallID: msg.ToolID,
				},
			}
		default:
			// Default to user message if role is unknown.
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		}
	}

	return result
}

func (m *Model) convertToolCalls(toolCalls []provider.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	var result []openai.ChatCompletionMessageToolCallParam
	for _, toolCall := range toolCalls {
		result = append(result, openai.ChatCompletionMessageToolCallParam{
			ID: toolCall.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      toolCall.Function.Name,
				Arguments: string(toolCall.Function.Arguments),
			},
		})
	}
	return result
}

func (m *Model) convertTools(actions []*action.Action) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, a := range actions {
		if a.Availability == action.AvailabilityDisabled {
			continue
		}
		schemaBytes, err := json.Marshal(a.JSONSchema())
		if err != nil {
			log.Errorf("failed to marshal action schema for %s: %v", a.Name, err)
			continue
		}
		var parameters shared.FunctionParameters
		if err := json.Unmarshal(schemaBytes, &parameters); err != nil {
			log.Errorf("failed to unmarshal action schema for %s: %v", a.Name, err)
			continue
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        a.Name,
				Description: openai.String(a.Description),
				Parameters:  parameters,
			},
		})
	}
	return result
}

// handleStreamingResponse handles streaming chat completion responses.
func (m *Model) handleStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *provider.Response,
	opts ...openaiopt.RequestOption,
) {
	stream := m.client.Chat.Completions.NewStreaming(
		ctx, chatRequest, opts...)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	// Track ID -> Index mapping.
	idToIndexMap := make(map[string]int)

	for stream.Next() {
		chunk := stream.Current()

		// Record ID -> Index mapping when ID is present (first chunk of each tool call).
		if len(chunk.Choices) > 0 && len(chunk.Choices[0].Delta.ToolCalls) > 0 {
			toolCall := chunk.Choices[0].Delta.ToolCalls[0]
			index := int(toolCall.Index)
			if toolCall.ID != "" {
				idToIndexMap[toolCall.ID] = index
			}
		}

		acc.AddChunk(chunk)

		if m.chatChunkCallback != nil {
			m.chatChunkCallback(ctx, &chatRequest, &chunk)
		}

		response := &provider.Response{
			ID:        chunk.ID,
			Object:    string(chunk.Object), // Convert constant to string
			Created:   chunk.Created,
			Model:     chunk.Model,
			Timestamp: time.Now(),
			Done:      false,
			IsPartial: true,
		}

		// Convert choices for partial responses (content streaming).
		if len(chunk.Choices) > 0 {
			if response.Choices == nil {
				response.Choices = make([]provider.Choice, 1)
			}
			response.Choices[0].Delta = provider.Message{
				Role:    provider.RoleAssistant,
				Content: chunk.Choices[0].Delta.Content,
			}
			if deltaToolCalls := chunk.Choices[0].Delta.ToolCalls; len(deltaToolCalls) > 0 {
				tc := deltaToolCalls[0]
				index := int(tc.Index)
				response.Choices[0].Delta.ToolCalls = []provider.ToolCall{{
					ID:    tc.ID,
					Type:  functionToolType,
					Index: &index,
					Function: provider.FunctionDefinitionParam{
						Name:      tc.Function.Name,
						Arguments: []byte(tc.Function.Arguments),
					},
				}}
			}

			// Handle finish reason - FinishReason is a plain string.
			if chunk.Choices[0].FinishReason != "" {
				finishReason := chunk.Choices[0].FinishReason
				response.Choices[0].FinishReason = &finishReason
			}
		}

		select {
		case responseChan <- response:
		case <-ctx.Done():
			return
		}
	}

	// Send final response with usage information if available.
	if stream.Err() == nil {
		// Check accumulated tool calls (batch processing after streaming is complete).
		var hasToolCall bool
		var accumulatedToolCalls []provider.ToolCall

		if len(acc.Choices) > 0 && len(acc.Choices[0].Message.ToolCalls) > 0 {
			hasToolCall = true
			accumulatedToolCalls = make([]provider.ToolCall, 0, len(acc.Choices[0].Message.ToolCalls))

			for i, toolCall := range acc.Choices[0].Message.ToolCalls {
				// if openai return function tool call start with index 1 or more
				// ChatCompletionAccumulator will return empty tool call for index like 0, skip it.
				if toolCall.Function.Name == "" && toolCall.ID == "" {
					continue
				}

				// Use the original index from ID->Index mapping if available, otherwise use loop index.
				originalIndex := i
				if toolCall.ID != "" {
					if mappedIndex, exists := idToIndexMap[toolCall.ID]; exists {
						originalIndex = mappedIndex
					}
				}

				accumulatedToolCalls = append(accumulatedToolCalls, provider.ToolCall{
					Index: func() *int { idx := originalIndex; return &idx }(),
					ID:    toolCall.ID,
					Type:  functionToolType, // openapi only supports a function type for now.
					Function: provider.FunctionDefinitionParam{
						Name:      toolCall.Function.Name,
						Arguments: []byte(toolCall.Function.Arguments),
					},
				})
			}
		}

		finalResponse := &provider.Response{
			ID:      acc.ID,
			Created: acc.Created,
			Model:   acc.Model,
			Choices: make([]provider.Choice, len(acc.Choices)),
			Usage: &provider.Usage{
				PromptTokens:     int(acc.Usage.PromptTokens),
				CompletionTokens: int(acc.Usage.CompletionTokens),
				TotalTokens:      int(acc.Usage.TotalTokens),
			},
			Timestamp: time.Now(),
			Done:      !hasToolCall,
			IsPartial: false,
		}
		for i, choice := range acc.Choices {
			finalResponse.Choices[i] = provider.Choice{
				Index: int(choice.Index),
				Message: provider.Message{
					Role:    provider.RoleAssistant,
					Content: choice.Message.Content,
				},
			}

			// If there are tool calls, add them to the final response.
			if hasToolCall && i == 0 { // Usually only the first choice contains tool calls.
				finalResponse.Choices[i].Message.ToolCalls = accumulatedToolCalls
			}
		}

		select {
		case responseChan <- finalResponse:
		case <-ctx.Done():
		}
	} else {
		// Send error response.
		errorResponse := &provider.Response{
			Error: &provider.ResponseError{
				Message: stream.Err().Error(),
				Type:    provider.ErrorTypeStreamError,
			},
			Timestamp: time.Now(),
			Done:      true,
		}

		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
	}
}

// handleNonStreamingResponse handles non-streaming chat completion responses.
func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *provider.Response,
	opts ...openaiopt.RequestOption,
) {
	chatCompletion, err := m.client.Chat.Completions.New(
		ctx, chatRequest, opts...)
	if m.chatResponseCallback != nil {
		m.chatResponseCallback(ctx, &chatRequest, chatCompletion)
	}
	if err != nil {
		errorResponse := &provider.Response{
			Error: &provider.ResponseError{
				Message: err.Error(),
				Type:    provider.ErrorTypeAPIError,
			},
			Timestamp: time.Now(),
			Done:      true,
		}

		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
		return
	}

	response := &provider.Response{
		ID:        chatCompletion.ID,
		Object:    string(chatCompletion.Object), // Convert constant to string
		Created:   chatCompletion.Created,
		Model:     chatCompletion.Model,
		Timestamp: time.Now(),
		Done:      true,
	}

	// Convert choices.
	if len(chatCompletion.Choices) > 0 {
		response.Choices = make([]provider.Choice, len(chatCompletion.Choices))
		for i, choice := range chatCompletion.Choices {
			response.Choices[i] = provider.Choice{
				Index: int(choice.Index),
				Message: provider.Message{
					Role:    provider.RoleAssistant,
					Content: choice.Message.Content,
				},
			}

			response.Choices[i].Message.ToolCalls = make([]provider.ToolCall, len(choice.Message.ToolCalls))
			for j, toolCall := range choice.Message.ToolCalls {
				response.Choices[i].Message.ToolCalls[j] = provider.ToolCall{
					ID:   toolCall.ID,
					Type: string(toolCall.Type),
					Function: provider.FunctionDefinitionParam{
						Name:      toolCall.Function.Name,
						Arguments: []byte(toolCall.Function.Arguments),
					},
				}
			}

			// Handle finish reason - FinishReason is a plain string.
			if choice.FinishReason != "" {
				finishReason := choice.FinishReason
				response.Choices[i].FinishReason = &finishReason
			}
		}
	}

	// Convert usage information.
	if chatCompletion.Usage.PromptTokens > 0 || chatCompletion.Usage.CompletionTokens > 0 {
		response.Usage = &provider.Usage{
			PromptTokens:     int(chatCompletion.Usage.PromptTokens),
			CompletionTokens: int(chatCompletion.Usage.CompletionTokens),
			TotalTokens:      int(chatCompletion.Usage.TotalTokens),
		}
	}

	// Set system fingerprint if available.
	if chatCompletion.SystemFingerprint != "" {
		response.SystemFingerprint = &chatCompletion.SystemFingerprint
	}

	select {
	case responseChan <- response:
	case <-ctx.Done():
	}
}

// DecodeChunk normalizes a streamed *provider.Response into the Chunk tuple
// the event pipeline (§4.1) consumes. It reports ok=false for responses that
// carry no choice (e.g. a pure error response), which the caller should
// surface separately rather than feed into the pipeline.
func DecodeChunk(r *provider.Response) (c pipeline.Chunk, ok bool) {
	if r == nil || len(r.Choices) == 0 {
		return pipeline.Chunk{}, false
	}
	choice := r.Choices[0]
	c.ChunkID = r.ID

	if len(choice.Delta.ToolCalls) > 0 {
		tc := choice.Delta.ToolCalls[0]
		if tc.ID != "" {
			c.HasToolCallWithID = true
			c.ToolCallID = tc.ID
			c.ToolCallName = tc.Function.Name
		}
		c.ToolCallArgsDelta = string(tc.Function.Arguments)
	}
	c.TextDelta = choice.Delta.Content

	if choice.FinishReason != nil {
		c.FinishReason = *choice.FinishReason
	}
	return c, true
}
