package tale

import (
	"context"
	"slices"

	"github.com/theimaginaryfoundation/tale-studio/tale/apperr"
	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
	"github.com/theimaginaryfoundation/tale-studio/tale/provider"
)

// ValidateSettings checks that the prompt template is usable and that the model is listed by the
// backend family the template selects, under the settings' credentials.
func ValidateSettings(ctx context.Context, models provider.ModelLister, settings Settings) error {
	if settings.ModelName == "" {
		return apperr.New(apperr.CodeConfiguration, "model name is empty")
	}
	if _, err := prompts.FormatText(settings.PromptTemplate); err != nil {
		return apperr.Wrap(err, apperr.CodeConfiguration, "invalid prompt template")
	}
	if models == nil {
		return apperr.New(apperr.CodeConfiguration, "no model catalog configured")
	}
	family := settings.Family()
	available, err := models.ListModels(ctx, family, settings.Credentials())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Wrap(err, apperr.CodeConfiguration, "list "+string(family)+" models")
	}
	if !slices.Contains(available, settings.ModelName) {
		return apperr.Newf(apperr.CodeConfiguration, "model %q is not available for prompt template %q; set the correct prompt template", settings.ModelName, settings.PromptTemplate)
	}
	return nil
}
