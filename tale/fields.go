package tale

import (
	"sort"
	"strconv"
	"strings"

	"github.com/theimaginaryfoundation/tale-studio/tale/apperr"
)

// stateFields are the story fields a driver may edit between steps.
var stateFields = map[string]func(*State, string) error{
	"name":         func(s *State, v string) error { s.Name = v; return nil },
	"language":     func(s *State, v string) error { s.Language = v; return nil },
	"description":  func(s *State, v string) error { s.Description = v; return nil },
	"novel_type":   func(s *State, v string) error { s.NovelType = v; return nil },
	"synopsis":     func(s *State, v string) error { s.Synopsis = v; return nil },
	"outline":      func(s *State, v string) error { s.Outline = v; return nil },
	"instruction":  func(s *State, v string) error { s.Instruction = v; return nil },
	"short_memory": func(s *State, v string) error { s.ShortMemory = v; return nil },
	"paragraphs":   func(s *State, v string) error { s.Paragraphs = SplitBlocks(v); return nil },
}

var settingsFields = map[string]func(*Settings, string) error{
	"model_name":         func(s *Settings, v string) error { s.ModelName = v; return nil },
	"prompt_template":    func(s *Settings, v string) error { s.PromptTemplate = v; return nil },
	"embedder_name":      func(s *Settings, v string) error { s.EmbedderName = v; return nil },
	"openai_api_key":     func(s *Settings, v string) error { s.OpenAIAPIKey = v; return nil },
	"anthropic_api_key":  func(s *Settings, v string) error { s.AnthropicAPIKey = v; return nil },
	"temperature":        floatField(func(s *Settings) *float64 { return &s.GenerationParams.Temperature }, 0, 2),
	"top_p":              floatField(func(s *Settings) *float64 { return &s.GenerationParams.TopP }, 0, 1),
	"repetition_penalty": floatField(func(s *Settings) *float64 { return &s.GenerationParams.RepetitionPenalty }, 0, 2),
	"top_k": func(s *Settings, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return apperr.Newf(apperr.CodeInvalidParam, "top_k must be a non-negative integer, got %q", v)
		}
		s.GenerationParams.TopK = n
		return nil
	},
	"max_tokens": func(s *Settings, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return apperr.Newf(apperr.CodeInvalidParam, "max_tokens must be a non-negative integer, got %q", v)
		}
		s.GenerationParams.MaxTokens = n
		return nil
	},
}

func floatField(field func(*Settings) *float64, lo, hi float64) func(*Settings, string) error {
	return func(s *Settings, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < lo || f > hi {
			return apperr.Newf(apperr.CodeInvalidParam, "value must be a number in [%g, %g], got %q", lo, hi, v)
		}
		*field(s) = f
		return nil
	}
}

// SetField returns a copy of s with one editable field replaced.
func SetField(s State, field, value string) (State, error) {
	set, ok := stateFields[field]
	if !ok {
		return s, apperr.Newf(apperr.CodeInvalidParam, "unknown story field %q", field)
	}
	next := s.Clone()
	if err := set(&next, value); err != nil {
		return s, err
	}
	return next, nil
}

// SetSettingsField returns a copy of settings with one field replaced.
func SetSettingsField(settings Settings, field, value string) (Settings, error) {
	set, ok := settingsFields[field]
	if !ok {
		return settings, apperr.Newf(apperr.CodeInvalidParam, "unknown settings field %q", field)
	}
	next := settings
	if err := set(&next, value); err != nil {
		return settings, err
	}
	return next, nil
}

func StateFieldNames() []string    { return sortedKeys(stateFields) }
func SettingsFieldNames() []string { return sortedKeys(settingsFields) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
