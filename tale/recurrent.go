package tale

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/theimaginaryfoundation/tale-studio/tale/apperr"
	"github.com/theimaginaryfoundation/tale-studio/tale/logger"
	"github.com/theimaginaryfoundation/tale-studio/tale/metrics"
	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
	"github.com/theimaginaryfoundation/tale-studio/tale/provider"
)

const instructionCount = 3

// Writer drives the recurrent generation loop: meta, first step, candidate instructions and
// steps. Every transition takes a State by value and returns the next State; on error the
// input State is returned unchanged.
type Writer struct {
	Completer provider.Completer
	Prompts   *prompts.Registry
	Models    provider.ModelLister
	// Embedder is optional; without it steps carry no related passages.
	Embedder Embedder
	// Intn picks a uniform index in [0, n); defaults to math/rand/v2.
	Intn func(n int) int
}

func (w *Writer) intn(n int) int {
	if w.Intn != nil {
		return w.Intn(n)
	}
	return rand.IntN(n)
}

func storyVars(s State) map[string]string {
	return map[string]string{
		"name":           s.Name,
		"language":       s.Language,
		"novel_type":     s.NovelType,
		"description":    s.Description,
		"synopsis":       s.Synopsis,
		"outline":        s.Outline,
		"short_memory":   s.ShortMemory,
		"last_paragraph": s.LastParagraph(),
		"instruction":    s.Instruction,
	}
}

func observe(transition string, err error) {
	metrics.StoryTransitionsTotal.WithLabelValues(transition, metrics.StatusLabel(err)).Inc()
}

// GenerateMeta starts a new story from a genre and a free-text description.
func (w *Writer) GenerateMeta(ctx context.Context, settings Settings, novelType, description string) (st State, err error) {
	defer func() { observe("meta", err) }()

	prompt, err := render(w.Prompts, prompts.PromptMeta, settings, map[string]string{
		"novel_type":  novelType,
		"description": description,
	})
	if err != nil {
		return State{}, err
	}
	out, err := completeJSON[metaResponse](ctx, w.Completer, settings.request(prompt), "StoryMeta", metaSchema)
	if err != nil {
		return State{}, err
	}
	if strings.TrimSpace(out.Name) == "" || strings.TrimSpace(out.Synopsis) == "" {
		return State{}, apperr.New(apperr.CodeMalformedCompletion, "story meta is missing name or synopsis")
	}

	st = State{
		Name:        strings.TrimSpace(out.Name),
		Language:    strings.TrimSpace(out.Language),
		Description: description,
		NovelType:   novelType,
		Synopsis:    strings.TrimSpace(out.Synopsis),
		Outline:     strings.TrimSpace(out.Outline),
	}.Clone()
	logger.FromContext(ctx).Info("story created", "story", st.Name, "language", st.Language)
	return st, nil
}

// GenerateFirstStep writes the opening passage, the initial short memory and three candidates.
func (w *Writer) GenerateFirstStep(ctx context.Context, s State, settings Settings) (State, error) {
	next, err := w.generateFirstStep(ctx, s, settings)
	observe("first_step", err)
	if err != nil {
		return s, err
	}
	return next, nil
}

func (w *Writer) generateFirstStep(ctx context.Context, s State, settings Settings) (State, error) {
	if err := ValidateSettings(ctx, w.Models, settings); err != nil {
		return State{}, err
	}
	if strings.TrimSpace(s.Synopsis) == "" && strings.TrimSpace(s.Outline) == "" {
		return State{}, apperr.New(apperr.CodeInvalidParam, "story has no synopsis or outline; generate meta first")
	}
	prompt, err := render(w.Prompts, prompts.PromptFirstStep, settings, storyVars(s))
	if err != nil {
		return State{}, err
	}
	out, err := completeJSON[passageResponse](ctx, w.Completer, settings.request(prompt), "Passage", passageSchema)
	if err != nil {
		return State{}, err
	}
	if err := checkPassage(out); err != nil {
		return State{}, err
	}

	next := s.Clone()
	next.Paragraphs = []string{strings.TrimSpace(out.Paragraph)}
	next.ShortMemory = strings.TrimSpace(out.ShortMemory)
	next.NextInstructions = trimAll(out.NextInstructions)
	next.Instruction = ""
	metrics.StoryParagraphLength.Observe(float64(len([]rune(next.LastParagraph()))))
	return next, nil
}

// GenerateInstructions regenerates the three candidate instructions.
func (w *Writer) GenerateInstructions(ctx context.Context, s State, settings Settings) (State, error) {
	next, err := w.generateInstructions(ctx, s, settings)
	observe("instructions", err)
	if err != nil {
		return s, err
	}
	return next, nil
}

func (w *Writer) generateInstructions(ctx context.Context, s State, settings Settings) (State, error) {
	if err := ValidateSettings(ctx, w.Models, settings); err != nil {
		return State{}, err
	}
	prompt, err := render(w.Prompts, prompts.PromptInstructions, settings, storyVars(s))
	if err != nil {
		return State{}, err
	}
	out, err := completeJSON[instructionsResponse](ctx, w.Completer, settings.request(prompt), "Instructions", instructionsSchema)
	if err != nil {
		return State{}, err
	}
	if err := checkInstructions(out.NextInstructions); err != nil {
		return State{}, err
	}
	next := s.Clone()
	next.NextInstructions = trimAll(out.NextInstructions)
	return next, nil
}

// Step resolves the instruction with the selection policy, writes the next passage, updates the
// short memory and proposes three new candidates.
func (w *Writer) Step(ctx context.Context, s State, settings Settings, sel Selection) (State, error) {
	next, err := w.step(ctx, s, settings, sel)
	observe("step", err)
	if err != nil {
		return s, err
	}
	return next, nil
}

func (w *Writer) step(ctx context.Context, s State, settings Settings, sel Selection) (State, error) {
	if err := ValidateSettings(ctx, w.Models, settings); err != nil {
		return State{}, err
	}
	instruction, err := w.selectInstruction(ctx, s, settings, sel)
	if err != nil {
		return State{}, err
	}

	vars := storyVars(s)
	vars["instruction"] = instruction
	vars["related_paragraphs"] = ""
	if settings.EmbedderName != "" && w.Embedder != nil {
		related, err := relatedParagraphs(ctx, w.Embedder, settings.EmbedderName, instruction+"\n"+s.ShortMemory, s.Paragraphs, relatedParagraphsCount)
		if err != nil {
			return State{}, err
		}
		vars["related_paragraphs"] = strings.Join(related, "\n\n")
	}

	prompt, err := render(w.Prompts, prompts.PromptStep, settings, vars)
	if err != nil {
		return State{}, err
	}
	out, err := completeJSON[passageResponse](ctx, w.Completer, settings.request(prompt), "Passage", passageSchema)
	if err != nil {
		return State{}, err
	}
	if err := checkPassage(out); err != nil {
		return State{}, err
	}

	next := s.Clone()
	next.Paragraphs = append(next.Paragraphs, strings.TrimSpace(out.Paragraph))
	next.ShortMemory = strings.TrimSpace(out.ShortMemory)
	next.NextInstructions = trimAll(out.NextInstructions)
	next.Instruction = ""
	metrics.StoryParagraphLength.Observe(float64(len([]rune(next.LastParagraph()))))
	logger.FromContext(ctx).Info("step written", "story", s.Name, "mode", sel.Mode, "paragraphs", len(next.Paragraphs))
	return next, nil
}

func checkPassage(out passageResponse) error {
	if strings.TrimSpace(out.Paragraph) == "" {
		return apperr.New(apperr.CodeMalformedCompletion, "completion has no paragraph")
	}
	return checkInstructions(out.NextInstructions)
}

func checkInstructions(in []string) error {
	if len(in) != instructionCount {
		return apperr.Newf(apperr.CodeMalformedCompletion, "got %d instructions, want %d", len(in), instructionCount)
	}
	for i, s := range in {
		if strings.TrimSpace(s) == "" {
			return apperr.Newf(apperr.CodeMalformedCompletion, "instruction %d is empty", i+1)
		}
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
