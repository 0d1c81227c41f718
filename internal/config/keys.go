package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// apiKeyEnv is read before llm.api_key.
const apiKeyEnv = "ANTHROPIC_API_KEY"

var (
	// ErrNoAPIKey is returned when the anthropic backend has no key.
	ErrNoAPIKey = errors.New("no Anthropic API key configured")

	// ErrInvalidAPIKey is returned for keys that cannot be Anthropic keys.
	ErrInvalidAPIKey = errors.New("invalid API key format")
)

// KeySource records where the Anthropic key was found.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// lookupAPIKey prefers the environment over llm.api_key. A "${VAR}"
// reference left unexpanded counts as unset.
func lookupAPIKey(cfg *Config) (string, KeySource) {
	if key := os.Getenv(apiKeyEnv); key != "" {
		return key, KeySourceEnv
	}
	if cfg == nil || cfg.LLM.APIKey == "" {
		return "", KeySourceNone
	}
	key := os.ExpandEnv(cfg.LLM.APIKey)
	if key == "" || strings.HasPrefix(key, "${") {
		return "", KeySourceNone
	}
	return key, KeySourceConfig
}

// GetAPIKey returns the Anthropic API key.
func GetAPIKey(cfg *Config) (string, error) {
	key, src := lookupAPIKey(cfg)
	if src == KeySourceNone {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// GetAPIKeySource reports where GetAPIKey would read the key from.
func GetAPIKeySource(cfg *Config) KeySource {
	_, src := lookupAPIKey(cfg)
	return src
}

// ValidateAPIKey checks the shape of an Anthropic key without calling the
// API.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return ErrNoAPIKey
	case !strings.HasPrefix(key, "sk-ant-"):
		return fmt.Errorf("%w: expected 'sk-ant-' prefix", ErrInvalidAPIKey)
	case len(key) < 20:
		return fmt.Errorf("%w: key too short", ErrInvalidAPIKey)
	}
	return nil
}

// CheckCredentials fails early when the selected backend needs a key that
// is missing or malformed. Ollama needs none and bedrock authenticates
// through the AWS credential chain.
func CheckCredentials(cfg *Config) error {
	if !strings.EqualFold(cfg.LLM.Backend, "anthropic") {
		return nil
	}
	key, err := GetAPIKey(cfg)
	if err != nil {
		return fmt.Errorf("%w (set %s or llm.api_key)", err, apiKeyEnv)
	}
	return ValidateAPIKey(key)
}

// MaskAPIKey keeps the "sk-ant-" prefix and the last four characters.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 15:
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
