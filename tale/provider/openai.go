package provider

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// OpenAI completes prompts with the Responses API.
type OpenAI struct {
	APIKey  string
	BaseURL string
	Retry   RetryPolicy

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{APIKey: apiKey, Retry: DefaultRetryPolicy()}
}

func (o *OpenAI) client(apiKey string) (*openai.Client, error) {
	key := firstNonEmpty(apiKey, o.APIKey)
	if key == "" {
		return nil, ErrNoCredentials
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.clients[key]; ok {
		return c, nil
	}
	opts := []option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(0)}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	c := openai.NewClient(opts...)
	if o.clients == nil {
		o.clients = make(map[string]*openai.Client)
	}
	o.clients[key] = &c
	return &c, nil
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		return "", errors.New("openai: model is empty")
	}
	client, err := o.client(req.Credentials.OpenAIKey)
	if err != nil {
		return "", err
	}

	params := responses.ResponseNewParams{
		Model: req.Model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Prompt, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if req.Params.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.Params.MaxTokens))
	}
	if req.Params.Temperature > 0 {
		params.Temperature = openai.Float(req.Params.Temperature)
	}
	if req.Params.TopP > 0 {
		params.TopP = openai.Float(req.Params.TopP)
	}
	switch {
	case req.Schema != nil:
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   firstNonEmpty(req.SchemaName, "Response"),
					Schema: req.Schema,
					Strict: openai.Bool(true),
					Type:   "json_schema",
				},
			},
		}
	case req.JSON:
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		}
	}

	resp, err := callWithRetry(ctx, o.Retry, BackendOpenAI, func(ctx context.Context) (*responses.Response, error) {
		return client.Responses.New(ctx, params)
	})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.OutputText())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
