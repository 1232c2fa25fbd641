package tale

import (
	"context"

	"github.com/theimaginaryfoundation/tale-studio/tale/apperr"
	"github.com/theimaginaryfoundation/tale-studio/tale/fileutils"
	"github.com/theimaginaryfoundation/tale-studio/tale/logger"
	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
	"github.com/theimaginaryfoundation/tale-studio/tale/provider"
)

func render(reg *prompts.Registry, id prompts.PromptID, settings Settings, vars map[string]string) (string, error) {
	text, err := reg.Render(id, settings.Family(), vars)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeConfiguration, "render prompt")
	}
	return text, nil
}

func completeText(ctx context.Context, c provider.Completer, req provider.Request) (string, error) {
	logger.FromContext(ctx).Debug("completion request", "model", req.Model, "prompt_chars", len(req.Prompt), "schema", req.SchemaName)
	out, err := c.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperr.Wrap(err, apperr.CodeUpstream, "completion failed")
	}
	return out, nil
}

// completeJSON asks for JSON matching the schema of T and decodes it.
func completeJSON[T any](ctx context.Context, c provider.Completer, req provider.Request, schemaName string, schema map[string]any) (T, error) {
	var out T
	req.JSON = true
	req.SchemaName = schemaName
	req.Schema = schema
	raw, err := completeText(ctx, c, req)
	if err != nil {
		return out, err
	}
	if err := fileutils.DecodeModelJSON(raw, &out); err != nil {
		return out, apperr.Wrap(err, apperr.CodeMalformedCompletion, "decode "+schemaName)
	}
	return out, nil
}
