// Package clients constructs provider drivers from engine names. It
// lives outside pkg/llm so the drivers can depend on pkg/llm without
// a cycle.
package clients

import (
	"fmt"
	"os"

	"maestro/pkg/config"
	"maestro/pkg/llm"
	"maestro/pkg/llm/anthropic"
	"maestro/pkg/llm/google"
	"maestro/pkg/llm/openai"
)

// Environment variables holding provider API keys.
const (
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvGeminiKey    = "GEMINI_API_KEY"
)

// New builds a driver for the named engine using API keys from the
// environment.
func New(engine string) (llm.LLMClient, error) {
	info, ok := config.Engines[engine]
	if !ok {
		return nil, fmt.Errorf("unknown engine: %s", engine)
	}

	switch info.Provider {
	case config.ProviderAnthropic:
		key := os.Getenv(EnvAnthropicKey)
		if key == "" {
			return nil, fmt.Errorf("%s is not set", EnvAnthropicKey)
		}
		return anthropic.New(key, info.Model), nil
	case config.ProviderOpenAI:
		key := os.Getenv(EnvOpenAIKey)
		if key == "" {
			return nil, fmt.Errorf("%s is not set", EnvOpenAIKey)
		}
		return openai.New(key, info.Model), nil
	case config.ProviderGoogle:
		key := os.Getenv(EnvGeminiKey)
		if key == "" {
			return nil, fmt.Errorf("%s is not set", EnvGeminiKey)
		}
		return google.New(key, info.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q for engine %s", info.Provider, engine)
	}
}
