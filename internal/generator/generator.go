// Package generator wraps the external language model invocation,
// deliberately kept opaque: this package only does request/response
// plumbing, never prompt engineering or model logic.
package generator

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"

	"convoindex/internal/config"
	"convoindex/internal/model"
)

// Options overrides a single call's sampling parameters; zero values
// fall back to the generator's configured defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Generator is the opaque external-collaborator surface the query
// orchestrator drives.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// openAIGenerator is a thin client over an OpenAI-compatible chat
// completions endpoint.
type openAIGenerator struct {
	client   openai.Client
	model    string
	defaults Options
}

// NewOpenAIGenerator builds a Generator from config.GeneratorConfig.
// BaseURL may point at any OpenAI-compatible endpoint (local or cloud).
func NewOpenAIGenerator(cfg config.GeneratorConfig) Generator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAIGenerator{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		defaults: Options{
			Temperature: cfg.DefaultOptions.Temperature,
			MaxTokens:   cfg.DefaultOptions.MaxTokens,
			TopP:        cfg.DefaultOptions.TopP,
		},
	}
}

func (g *openAIGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	opts = mergeDefaults(opts, g.defaults)

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(g.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: param.NewOpt(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(opts.MaxTokens))
	}
	if opts.TopP > 0 {
		params.TopP = param.NewOpt(opts.TopP)
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrGenerator, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", model.ErrGenerator)
	}
	return resp.Choices[0].Message.Content, nil
}

func mergeDefaults(opts, defaults Options) Options {
	if opts.Temperature == 0 {
		opts.Temperature = defaults.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaults.MaxTokens
	}
	if opts.TopP == 0 {
		opts.TopP = defaults.TopP
	}
	return opts
}

// Echo is a Generator stub with no external calls: it returns the
// whole prompt prefixed with "echo: ". Used in tests.
type Echo struct{}

func (Echo) Generate(_ context.Context, prompt string, _ Options) (string, error) {
	return "echo: " + prompt, nil
}
