// Package provider implements the completion, model listing and embedding backends.
package provider

import (
	"context"
	"errors"
)

var (
	ErrRateLimit     = errors.New("provider rate limited")
	ErrProviderDown  = errors.New("provider unavailable")
	ErrEmptyResponse = errors.New("provider returned an empty response")
	ErrNoCredentials = errors.New("missing API key")
)

// Backend names used for routing, logging and metrics labels.
const (
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendLocal     = "local"
)

// GenerationParams are the sampling parameters sent with every request.
type GenerationParams struct {
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	TopK              int     `json:"top_k"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	MaxTokens         int     `json:"max_tokens,omitempty"`
}

func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		Temperature:       1.0,
		TopP:              0.95,
		TopK:              40,
		RepetitionPenalty: 1.0,
		MaxTokens:         2048,
	}
}

// Credentials override the process-wide API keys for one request.
type Credentials struct {
	OpenAIKey    string
	AnthropicKey string
}

// Request is a single completion call. Schema, when set, asks the backend for JSON
// matching it; JSON alone asks for any JSON object.
type Request struct {
	Model       string
	Template    string
	Prompt      string
	Params      GenerationParams
	JSON        bool
	SchemaName  string
	Schema      map[string]any
	Credentials Credentials
}

// Completer sends a prompt to a model and returns its raw text output.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
