package prompts

import (
	"fmt"
	"strings"
)

// Instruction format names accepted as a prompt template setting.
const (
	FormatOpenAI    = "openai"
	FormatAnthropic = "anthropic"
	FormatAlpaca    = "alpaca"
	FormatChatML    = "chatml"
	FormatLlama3    = "llama3"
	FormatMistral   = "mistral"
	FormatCustom    = "custom"

	DefaultFormat = FormatOpenAI

	promptPlaceholder = "{prompt}"
)

var formats = map[string]string{
	FormatOpenAI:    promptPlaceholder,
	FormatAnthropic: promptPlaceholder,
	FormatAlpaca:    "Below is an instruction that describes a task. Write a response that appropriately completes the request.\n\n### Instruction:\n{prompt}\n\n### Response:\n",
	FormatChatML:    "<|im_start|>user\n{prompt}<|im_end|>\n<|im_start|>assistant\n",
	FormatLlama3:    "<|begin_of_text|><|start_header_id|>user<|end_header_id|>\n\n{prompt}<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n",
	FormatMistral:   "<s>[INST] {prompt} [/INST]",
	FormatCustom:    "### User:\n{prompt}\n\n### Assistant:\n",
}

// FormatNames lists the selectable formats in display order.
func FormatNames() []string {
	return []string{FormatOpenAI, FormatAnthropic, FormatAlpaca, FormatChatML, FormatLlama3, FormatMistral, FormatCustom}
}

// FormatText returns the wrapping text for a format name. A value that is not a known name but
// contains {prompt} is treated as custom template text.
func FormatText(template string) (string, error) {
	if t, ok := formats[template]; ok {
		return t, nil
	}
	if strings.Contains(template, promptPlaceholder) {
		return template, nil
	}
	return "", fmt.Errorf("prompt template %q is neither a known format nor contains %s", template, promptPlaceholder)
}

// Wrap renders prompt inside the instruction format.
func Wrap(template string, prompt string) (string, error) {
	t, err := FormatText(template)
	if err != nil {
		return "", err
	}
	return strings.Replace(t, promptPlaceholder, prompt, 1), nil
}

// FamilyOf maps a prompt template setting to its backend family.
func FamilyOf(template string) Family {
	switch template {
	case FormatOpenAI:
		return FamilyOpenAI
	case FormatAnthropic:
		return FamilyAnthropic
	default:
		return FamilyLocal
	}
}
