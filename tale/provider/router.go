package provider

import (
	"context"
	"fmt"

	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
)

// Router dispatches a request to the backend selected by its prompt template.
type Router struct {
	OpenAI    Completer
	Anthropic Completer
	Local     Completer
}

func (r *Router) Complete(ctx context.Context, req Request) (string, error) {
	var c Completer
	switch prompts.FamilyOf(req.Template) {
	case prompts.FamilyOpenAI:
		c = r.OpenAI
	case prompts.FamilyAnthropic:
		c = r.Anthropic
	default:
		c = r.Local
	}
	if c == nil {
		return "", fmt.Errorf("no backend configured for prompt template %q", req.Template)
	}
	return c.Complete(ctx, req)
}

// BackendOf names the backend a prompt template routes to.
func BackendOf(template string) string {
	switch prompts.FamilyOf(template) {
	case prompts.FamilyOpenAI:
		return BackendOpenAI
	case prompts.FamilyAnthropic:
		return BackendAnthropic
	default:
		return BackendLocal
	}
}
