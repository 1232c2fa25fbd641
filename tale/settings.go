package tale

import (
	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
	"github.com/theimaginaryfoundation/tale-studio/tale/provider"
)

// Settings selects the model, its instruction format and sampling parameters.
// PromptTemplate is an instruction format name or custom template text containing {prompt}.
type Settings struct {
	ModelName        string                    `json:"model_name"`
	PromptTemplate   string                    `json:"prompt_template"`
	EmbedderName     string                    `json:"embedder_name"`
	GenerationParams provider.GenerationParams `json:"generation_params"`
	OpenAIAPIKey     string                    `json:"openai_api_key,omitempty"`
	AnthropicAPIKey  string                    `json:"anthropic_api_key,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		ModelName:        "gpt-4o-mini",
		PromptTemplate:   prompts.DefaultFormat,
		GenerationParams: provider.DefaultGenerationParams(),
	}
}

func (s Settings) Family() prompts.Family {
	return prompts.FamilyOf(s.PromptTemplate)
}

func (s Settings) Credentials() provider.Credentials {
	return provider.Credentials{OpenAIKey: s.OpenAIAPIKey, AnthropicKey: s.AnthropicAPIKey}
}

func (s Settings) request(prompt string) provider.Request {
	return provider.Request{
		Model:       s.ModelName,
		Template:    s.PromptTemplate,
		Prompt:      prompt,
		Params:      s.GenerationParams,
		Credentials: s.Credentials(),
	}
}
