// Package models provides test doubles for the provider.Model interface.
package models

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrel-ai/copilot-runtime/provider"
)

// MockModel is a scripted provider.Model used by runtime and httpserver tests
// in place of a real provider adapter.
type MockModel struct {
	name    string
	chunks  []*provider.Response
	err     error
	lastReq *provider.Request
}

// MockModelOption configures a MockModel.
type MockModelOption func(*MockModel)

// WithChunks scripts the sequence of response chunks GenerateContent sends
// on its channel, in order.
func WithChunks(chunks ...*provider.Response) MockModelOption {
	return func(m *MockModel) { m.chunks = chunks }
}

// WithText scripts a single non-streaming assistant reply of the given text.
func WithText(text string) MockModelOption {
	return func(m *MockModel) {
		m.chunks = []*provider.Response{{
			Choices: []provider.Choice{{Delta: provider.Message{Role: provider.RoleAssistant, Content: text}}},
			Done:    true,
		}}
	}
}

// WithError makes GenerateContent fail with the given system-level error.
func WithError(err error) MockModelOption {
	return func(m *MockModel) { m.err = err }
}

// NewMockModel creates a new MockModel with the given options.
func NewMockModel(name string, opts ...MockModelOption) *MockModel {
	m := &MockModel{name: name}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LastRequest returns the request the most recent GenerateContent call received.
func (m *MockModel) LastRequest() *provider.Request { return m.lastReq }

// Info implements provider.Model.
func (m *MockModel) Info() provider.Info { return provider.Info{Name: m.name} }

// ProviderName implements provider.Adapter.
func (m *MockModel) ProviderName() string { return m.name }

// SupportsStreaming implements provider.Adapter.
func (m *MockModel) SupportsStreaming() bool { return true }

// SupportsFunctionCalling implements provider.Adapter.
func (m *MockModel) SupportsFunctionCalling() bool { return true }

// GenerateContent implements provider.Model by replaying the scripted chunks.
func (m *MockModel) GenerateContent(ctx context.Context, req *provider.Request) (<-chan *provider.Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan *provider.Response, len(m.chunks))
	defer close(ch)
	for _, c := range m.chunks {
		c.Timestamp = time.Now()
		select {
		case ch <- c:
		case <-ctx.Done():
			return ch, fmt.Errorf("mock model: %w", ctx.Err())
		}
	}
	return ch, nil
}
