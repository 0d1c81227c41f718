package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
)

// DefaultOllamaEndpoint is the local Ollama server address.
const DefaultOllamaEndpoint = "http://localhost:11434"

// DefaultOllamaModel is the small local model the council was tuned for.
const DefaultOllamaModel = "phi3:mini"

// OllamaBackend talks to an Ollama server's /api/chat endpoint.
type OllamaBackend struct {
	endpoint string
	model    string
	defaults Defaults
	client   *http.Client
	tracker  *TokenTracker
}

// OllamaConfig configures an OllamaBackend.
type OllamaConfig struct {
	// Endpoint is the server base URL. Defaults to DefaultOllamaEndpoint.
	Endpoint string
	// Model is the model tag. A LiteLLM-style "ollama/" prefix is accepted.
	Model    string
	Defaults Defaults
	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client
}

// NewOllamaBackend creates a backend for a local Ollama server.
func NewOllamaBackend(cfg OllamaConfig) *OllamaBackend {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	model := strings.TrimPrefix(cfg.Model, "ollama/")
	if model == "" {
		model = DefaultOllamaModel
	}
	client := cfg.HTTPClient
	if client == nil {
		// Per-call timeouts come from the request context.
		client = &http.Client{}
	}
	return &OllamaBackend{
		endpoint: endpoint,
		model:    model,
		defaults: cfg.Defaults.withDefaults(),
		client:   client,
		tracker:  NewTokenTracker(),
	}
}

// Name returns the backend identifier.
func (o *OllamaBackend) Name() string {
	return fmt.Sprintf("ollama:%s", o.model)
}

// Model returns the model tag.
func (o *OllamaBackend) Model() string {
	return o.model
}

// Tracker returns the token tracker for this backend.
func (o *OllamaBackend) Tracker() *TokenTracker {
	return o.tracker
}

// Complete sends a non-streaming chat request.
func (o *OllamaBackend) Complete(ctx context.Context, req Request) (string, error) {
	settings := o.defaults.resolve(req)
	callCtx, cancel := context.WithTimeout(ctx, settings.timeout)
	defer cancel()

	resp, err := o.post(callCtx, req, settings, false)
	if err != nil {
		return "", classify(ctx, o.Name(), err)
	}
	defer resp.Body.Close()

	var chat ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", classify(ctx, o.Name(), fmt.Errorf("decode response: %w", err))
	}
	if chat.Error != "" {
		return "", statusError(o.Name(), resp.StatusCode, chat.Error)
	}

	o.tracker.Add(chat.PromptEvalCount, chat.EvalCount)
	return chat.Message.Content, nil
}

// Stream sends a streaming chat request and yields message fragments as
// the server's NDJSON lines arrive.
func (o *OllamaBackend) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		settings := o.defaults.resolve(req)
		callCtx, cancel := context.WithTimeout(ctx, settings.timeout)
		defer cancel()

		resp, err := o.post(callCtx, req, settings, true)
		if err != nil {
			yield("", classify(ctx, o.Name(), err))
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				yield("", classify(ctx, o.Name(), fmt.Errorf("decode stream chunk: %w", err)))
				return
			}
			if chunk.Error != "" {
				yield("", statusError(o.Name(), resp.StatusCode, chunk.Error))
				return
			}
			if chunk.Message.Content != "" {
				if !yield(chunk.Message.Content, nil) {
					return
				}
			}
			if chunk.Done {
				o.tracker.Add(chunk.PromptEvalCount, chunk.EvalCount)
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", classify(ctx, o.Name(), err))
			return
		}
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}
		yield("", &BackendError{Kind: KindFailure, Backend: o.Name(), Message: "stream ended before done"})
	}
}

// post issues the chat request and checks the status code.
func (o *OllamaBackend) post(ctx context.Context, req Request, settings resolved, stream bool) (*http.Response, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Messages: req.Messages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: settings.temperature,
			NumPredict:  settings.maxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(bodyBytes))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(bodyBytes, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return nil, statusError(o.Name(), resp.StatusCode, msg)
	}
	return resp, nil
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	Error           string  `json:"error,omitempty"`
	PromptEvalCount int64   `json:"prompt_eval_count"`
	EvalCount       int64   `json:"eval_count"`
}

// Verify OllamaBackend implements Gateway at compile time.
var _ Gateway = (*OllamaBackend)(nil)
