package api

import (
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Backend names accepted by New.
const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendBedrock   = "bedrock"
)

// Options selects and configures a Gateway implementation.
type Options struct {
	Backend    string
	Model      string
	BaseURL    string
	APIKey     string
	AWSRegion  string
	AWSProfile string
	Defaults   Defaults
}

// New builds the Gateway named by opts.Backend. An empty backend means
// Ollama.
func New(opts Options) (Gateway, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendOllama:
		return NewOllamaBackend(OllamaConfig{
			Endpoint: opts.BaseURL,
			Model:    opts.Model,
			Defaults: opts.Defaults,
		}), nil
	case BackendAnthropic:
		return NewAnthropicBackend(AnthropicConfig{
			Model:    anthropic.Model(opts.Model),
			APIKey:   opts.APIKey,
			BaseURL:  opts.BaseURL,
			Defaults: opts.Defaults,
		})
	case BackendBedrock:
		return NewAnthropicBackend(AnthropicConfig{
			Model:         anthropic.Model(opts.Model),
			UseAWSBedrock: true,
			AWSRegion:     opts.AWSRegion,
			AWSProfile:    opts.AWSProfile,
			Defaults:      opts.Defaults,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}
