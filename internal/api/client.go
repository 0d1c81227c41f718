package api

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// AnthropicBackend wraps the Anthropic SDK client with token tracking.
type AnthropicBackend struct {
	inner    anthropic.Client
	model    anthropic.Model
	defaults Defaults
	tracker  *TokenTracker
}

// AnthropicConfig contains configuration for creating an AnthropicBackend.
type AnthropicConfig struct {
	// Model is the Claude model to use (e.g., anthropic.ModelClaudeSonnet4_20250514).
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// BaseURL overrides the API endpoint (used by tests and proxies).
	BaseURL  string
	Defaults Defaults
}

// NewAnthropicBackend creates a new Anthropic API backend.
func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	// One attempt per call; the pipeline turns failures into stage errors.
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	return &AnthropicBackend{
		inner:    anthropic.NewClient(opts...),
		model:    model,
		defaults: cfg.Defaults.withDefaults(),
		tracker:  NewTokenTracker(),
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to Bedrock
// cross-region inference profiles: us.anthropic.{model}-v1:0
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaudeOpus4_5_20251101:   "us.anthropic.claude-opus-4-5-20251101-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// Name returns the backend identifier.
func (c *AnthropicBackend) Name() string {
	if strings.HasPrefix(string(c.model), "us.anthropic") {
		return "bedrock:" + string(c.model)
	}
	return "anthropic:" + string(c.model)
}

// Model returns the configured model name.
func (c *AnthropicBackend) Model() anthropic.Model {
	return c.model
}

// Tracker returns the token tracker for this backend.
func (c *AnthropicBackend) Tracker() *TokenTracker {
	return c.tracker
}

// params converts a Request into SDK parameters. System messages are
// folded into the System block; the rest keep their order.
func (c *AnthropicBackend) params(req Request, settings resolved) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	return anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(settings.maxTokens),
		Temperature: anthropic.Float(settings.temperature),
		System:      system,
		Messages:    messages,
	}
}

// Complete executes a buffered request and returns the concatenated text.
func (c *AnthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	settings := c.defaults.resolve(req)
	callCtx, cancel := context.WithTimeout(ctx, settings.timeout)
	defer cancel()

	resp, err := c.inner.Messages.New(callCtx, c.params(req, settings))
	if err != nil {
		return "", c.classify(ctx, err)
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var result strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			result.WriteString(variant.Text)
		}
	}
	return result.String(), nil
}

// Stream executes a streaming request and yields text deltas.
func (c *AnthropicBackend) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		settings := c.defaults.resolve(req)
		callCtx, cancel := context.WithTimeout(ctx, settings.timeout)
		defer cancel()

		stream := c.inner.Messages.NewStreaming(callCtx, c.params(req, settings))
		defer stream.Close()

		var inputTok, outputTok int64
		for stream.Next() {
			switch event := stream.Current().AsAny().(type) {
			case anthropic.MessageStartEvent:
				inputTok = event.Message.Usage.InputTokens
			case anthropic.MessageDeltaEvent:
				outputTok = event.Usage.OutputTokens
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := event.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !yield(delta.Text, nil) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", c.classify(ctx, err))
			return
		}
		c.tracker.Add(inputTok, outputTok)
	}
}

// classify maps SDK errors to BackendError kinds.
func (c *AnthropicBackend) classify(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind := KindFailure
		if apiErr.StatusCode == 408 || apiErr.StatusCode == 504 {
			kind = KindTimeout
		}
		return &BackendError{Kind: kind, Backend: c.Name(), StatusCode: apiErr.StatusCode, Message: err.Error(), Err: err}
	}
	return classify(ctx, c.Name(), err)
}

// Verify AnthropicBackend implements Gateway at compile time.
var _ Gateway = (*AnthropicBackend)(nil)
