package llm

import (
	"context"
)

// GenerateOptions holds per-request sampling settings.
type GenerateOptions struct {
	SystemPrompt string
	Temperature  *float32
	MaxTokens    int
}

type GenerateOption func(*GenerateOptions)

func WithSystemPrompt(prompt string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompt = prompt
	}
}

func WithTemperature(t float32) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &t
	}
}

// WithMaxTokens bounds the completion length. Values <= 0 leave the
// provider default in place.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

func ApplyOptions(opts ...GenerateOption) GenerateOptions {
	var o GenerateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type LLMClient interface {
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)
}

type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
