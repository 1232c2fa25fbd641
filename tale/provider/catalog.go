package provider

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/sync/errgroup"

	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
)

// ModelLister lists the models available to a backend family under the given credentials.
type ModelLister interface {
	ListModels(ctx context.Context, family prompts.Family, creds Credentials) ([]string, error)
}

// Catalog lists hosted models through the vendor APIs and local models from configuration.
type Catalog struct {
	OpenAIKey     string
	AnthropicKey  string
	OpenAIBaseURL string
	LocalModels   []string

	listOpenAI    func(ctx context.Context, key string) ([]string, error)
	listAnthropic func(ctx context.Context, key string) ([]string, error)
}

func NewCatalog(openAIKey, anthropicKey string, localModels []string) *Catalog {
	return &Catalog{OpenAIKey: openAIKey, AnthropicKey: anthropicKey, LocalModels: localModels}
}

func (c *Catalog) ListModels(ctx context.Context, family prompts.Family, creds Credentials) ([]string, error) {
	switch family {
	case prompts.FamilyOpenAI:
		key := firstNonEmpty(creds.OpenAIKey, c.OpenAIKey)
		if key == "" {
			return nil, nil
		}
		if c.listOpenAI == nil {
			return c.openAIModels(ctx, key)
		}
		return c.listOpenAI(ctx, key)
	case prompts.FamilyAnthropic:
		key := firstNonEmpty(creds.AnthropicKey, c.AnthropicKey)
		if key == "" {
			return nil, nil
		}
		if c.listAnthropic == nil {
			return c.anthropicModels(ctx, key)
		}
		return c.listAnthropic(ctx, key)
	case prompts.FamilyLocal:
		return slices.Clone(c.LocalModels), nil
	default:
		return nil, fmt.Errorf("unknown backend family %q", family)
	}
}

// All lists every family concurrently: local models first, then OpenAI, then Anthropic.
func (c *Catalog) All(ctx context.Context, creds Credentials) ([]string, error) {
	families := []prompts.Family{prompts.FamilyLocal, prompts.FamilyOpenAI, prompts.FamilyAnthropic}
	results := make([][]string, len(families))

	g, gctx := errgroup.WithContext(ctx)
	for i, family := range families {
		g.Go(func() error {
			models, err := c.ListModels(gctx, family, creds)
			if err != nil {
				return fmt.Errorf("list %s models: %w", family, err)
			}
			results[i] = models
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []string
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func (c *Catalog) openAIModels(ctx context.Context, key string) ([]string, error) {
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if c.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.OpenAIBaseURL))
	}
	client := openai.NewClient(opts...)

	var out []string
	iter := client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		id := iter.Current().ID
		if isChatModel(id) {
			out = append(out, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, mapError(BackendOpenAI, err)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Catalog) anthropicModels(ctx context.Context, key string) ([]string, error) {
	client := sdkanthropic.NewClient(anthropicoption.WithAPIKey(key))

	var out []string
	iter := client.Models.ListAutoPaging(ctx, sdkanthropic.ModelListParams{})
	for iter.Next() {
		out = append(out, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, mapError(BackendAnthropic, err)
	}
	return out, nil
}

// isChatModel filters the OpenAI listing down to text generation models.
func isChatModel(id string) bool {
	if !(strings.HasPrefix(id, "gpt-") || strings.HasPrefix(id, "o1") || strings.HasPrefix(id, "o3") || strings.HasPrefix(id, "o4") || strings.HasPrefix(id, "chatgpt-")) {
		return false
	}
	for _, skip := range []string{"audio", "realtime", "transcribe", "tts", "image", "search"} {
		if strings.Contains(id, skip) {
			return false
		}
	}
	return true
}
