package provider

import (
	"context"
	"errors"
	"strings"
	"sync"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// Anthropic completes prompts with the Messages API.
type Anthropic struct {
	APIKey  string
	BaseURL string
	Retry   RetryPolicy

	mu      sync.Mutex
	clients map[string]*sdkanthropic.Client
}

func NewAnthropic(apiKey string) *Anthropic {
	return &Anthropic{APIKey: apiKey, Retry: DefaultRetryPolicy()}
}

func (a *Anthropic) client(apiKey string) (*sdkanthropic.Client, error) {
	key := firstNonEmpty(apiKey, a.APIKey)
	if key == "" {
		return nil, ErrNoCredentials
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.clients[key]; ok {
		return c, nil
	}
	opts := []option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(0)}
	if a.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.BaseURL))
	}
	c := sdkanthropic.NewClient(opts...)
	if a.clients == nil {
		a.clients = make(map[string]*sdkanthropic.Client)
	}
	a.clients[key] = &c
	return &c, nil
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		return "", errors.New("anthropic: model is empty")
	}
	client, err := a.client(req.Credentials.AnthropicKey)
	if err != nil {
		return "", err
	}

	maxTokens := int64(req.Params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []sdkanthropic.MessageParam{
			sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Params.Temperature > 0 {
		params.Temperature = sdkanthropic.Float(min(req.Params.Temperature, 1.0))
	}
	if req.Params.TopK > 0 {
		params.TopK = sdkanthropic.Int(int64(req.Params.TopK))
	}
	if req.JSON || req.Schema != nil {
		params.System = []sdkanthropic.TextBlockParam{{Text: "Respond with a single JSON object and nothing else."}}
	}

	msg, err := callWithRetry(ctx, a.Retry, BackendAnthropic, func(ctx context.Context) (*sdkanthropic.Message, error) {
		return client.Messages.New(ctx, params)
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(sdkanthropic.TextBlock); ok {
			b.WriteString(v.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
