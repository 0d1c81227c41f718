// Package api provides the completion gateway used by the council: a single
// interface over the text-generation backends (a local Ollama server, the
// Anthropic API, or Anthropic on AWS Bedrock).
package api

import (
	"context"
	"iter"
	"time"
)

// Role tags a message in a completion request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry in a completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Request is a single completion call. Zero values take the gateway's
// configured defaults.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(t float64) *float64 { return &t }

// Gateway wraps calls to a text-generation backend.
//
// Failures are reported as *BackendError values that match
// ErrBackendUnavailable, ErrBackendTimeout or ErrBackendError with
// errors.Is. A cancelled caller context is returned as context.Canceled.
type Gateway interface {
	// Complete blocks until the backend returns the full text.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream returns a lazy, finite, single-use sequence of text fragments.
	// Breaking out of the range loop cancels the underlying request. A
	// failure is yielded once as a non-nil error and ends the sequence.
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]

	// Name identifies the backend and model for logs.
	Name() string
}

// Defaults are applied to requests that leave a field at its zero value.
type Defaults struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultSettings mirror the local-model defaults: 500 tokens, temperature
// 0.7 and a 30 minute timeout for slow first loads.
var DefaultSettings = Defaults{
	MaxTokens:   500,
	Temperature: 0.7,
	Timeout:     30 * time.Minute,
}

// resolved holds the effective settings for a request.
type resolved struct {
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

func (d Defaults) resolve(req Request) resolved {
	r := resolved{
		maxTokens:   d.MaxTokens,
		temperature: d.Temperature,
		timeout:     d.Timeout,
	}
	if req.MaxTokens > 0 {
		r.maxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		r.temperature = *req.Temperature
	}
	if req.Timeout > 0 {
		r.timeout = req.Timeout
	}
	if r.maxTokens <= 0 {
		r.maxTokens = DefaultSettings.MaxTokens
	}
	if r.timeout <= 0 {
		r.timeout = DefaultSettings.Timeout
	}
	return r
}

// withDefaults fills zero fields of d from DefaultSettings.
func (d Defaults) withDefaults() Defaults {
	if d.MaxTokens <= 0 {
		d.MaxTokens = DefaultSettings.MaxTokens
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultSettings.Timeout
	}
	return d
}
