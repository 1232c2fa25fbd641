package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Embedders lists the embedding models selectable as an embedder name.
var Embedders = []string{"text-embedding-3-small", "text-embedding-3-large"}

// OpenAIEmbedder embeds texts with the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	Retry  RetryPolicy
}

func NewOpenAIEmbedder(apiKey string) *OpenAIEmbedder {
	c := openai.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return &OpenAIEmbedder{client: &c, Retry: DefaultRetryPolicy()}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	if model == "" {
		return nil, errors.New("embedder: model is empty")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	resp, err := callWithRetry(ctx, e.Retry, BackendOpenAI, func(ctx context.Context) (*openai.CreateEmbeddingResponse, error) {
		return e.client.Embeddings.New(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedder: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embedder: vector index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
