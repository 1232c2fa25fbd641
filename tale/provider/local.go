package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
)

// Local completes prompts against an OpenAI-compatible completion server (llama.cpp, vLLM),
// wrapping each prompt in the configured instruction format.
type Local struct {
	client *openai.Client
	Retry  RetryPolicy
}

func NewLocal(baseURL string) *Local {
	c := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey("local"),
		option.WithMaxRetries(0),
	)
	return &Local{client: &c, Retry: RetryPolicy{
		MaxAttempts:      2,
		ServerErrorWaits: DefaultRetryPolicy().ServerErrorWaits,
	}}
}

func (l *Local) Complete(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		return "", errors.New("local: model is empty")
	}
	prompt, err := prompts.Wrap(req.Template, req.Prompt)
	if err != nil {
		return "", err
	}

	params := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(req.Model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(prompt),
		},
	}
	if req.Params.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.Params.MaxTokens))
	}
	if req.Params.Temperature > 0 {
		params.Temperature = openai.Float(req.Params.Temperature)
	}
	if req.Params.TopP > 0 {
		params.TopP = openai.Float(req.Params.TopP)
	}

	var opts []option.RequestOption
	if req.Params.TopK > 0 {
		opts = append(opts, option.WithJSONSet("top_k", req.Params.TopK))
	}
	if req.Params.RepetitionPenalty > 0 {
		opts = append(opts, option.WithJSONSet("repeat_penalty", req.Params.RepetitionPenalty))
	}

	resp, err := callWithRetry(ctx, l.Retry, BackendLocal, func(ctx context.Context) (*openai.Completion, error) {
		return l.client.Completions.New(ctx, params, opts...)
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	out := strings.TrimSpace(resp.Choices[0].Text)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
