package tale

import (
	"context"
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/tale-studio/tale/apperr"
	"github.com/theimaginaryfoundation/tale-studio/tale/logger"
	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
)

// SelectionMode is the policy that picks the instruction for a step.
type SelectionMode string

const (
	// SelectAuto lets a model judge pick among the candidates.
	SelectAuto SelectionMode = "gpt"
	// SelectRandom picks a candidate uniformly.
	SelectRandom SelectionMode = "random"
	// SelectManual uses the caller's instruction text.
	SelectManual SelectionMode = "manual"
)

func ParseSelectionMode(s string) (SelectionMode, error) {
	switch m := SelectionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case SelectAuto, SelectRandom, SelectManual:
		return m, nil
	case "auto":
		return SelectAuto, nil
	case "":
		return SelectRandom, nil
	default:
		return "", apperr.Newf(apperr.CodeInvalidParam, "unknown selection mode %q", s)
	}
}

// Selection configures how Step obtains its instruction. Instruction is used in manual mode;
// when empty the state's current instruction is used.
type Selection struct {
	Mode        SelectionMode `json:"mode"`
	Instruction string        `json:"instruction,omitempty"`
}

func (w *Writer) selectInstruction(ctx context.Context, s State, settings Settings, sel Selection) (string, error) {
	switch sel.Mode {
	case SelectManual:
		instruction := strings.TrimSpace(sel.Instruction)
		if instruction == "" {
			instruction = strings.TrimSpace(s.Instruction)
		}
		if instruction == "" {
			return "", apperr.New(apperr.CodeInvalidParam, "manual selection requires an instruction")
		}
		return instruction, nil
	case SelectRandom:
		if err := haveCandidates(s); err != nil {
			return "", err
		}
		return s.NextInstructions[w.intn(len(s.NextInstructions))], nil
	case SelectAuto:
		if err := haveCandidates(s); err != nil {
			return "", err
		}
		return w.judge(ctx, s, settings)
	default:
		return "", apperr.Newf(apperr.CodeInvalidParam, "unknown selection mode %q", sel.Mode)
	}
}

func haveCandidates(s State) error {
	if len(s.NextInstructions) != instructionCount {
		return apperr.Newf(apperr.CodeInvalidParam, "need %d candidate instructions, have %d", instructionCount, len(s.NextInstructions))
	}
	return nil
}

// judge asks the model to pick a candidate and optionally revise it.
func (w *Writer) judge(ctx context.Context, s State, settings Settings) (string, error) {
	vars := storyVars(s)
	for i, c := range s.NextInstructions {
		vars[fmt.Sprintf("instruction_%d", i+1)] = c
	}
	prompt, err := render(w.Prompts, prompts.PromptSelectInstruction, settings, vars)
	if err != nil {
		return "", err
	}
	out, err := completeJSON[selectionResponse](ctx, w.Completer, settings.request(prompt), "InstructionSelection", selectionSchema)
	if err != nil {
		return "", err
	}
	if out.Selected < 1 || out.Selected > len(s.NextInstructions) {
		return "", apperr.Newf(apperr.CodeMalformedCompletion, "selected candidate %d is out of range", out.Selected)
	}
	logger.FromContext(ctx).Debug("instruction selected", "selected", out.Selected, "reason", out.Reason, "revised", out.RevisedInstruction != "")
	if revised := strings.TrimSpace(out.RevisedInstruction); revised != "" {
		return revised, nil
	}
	return s.NextInstructions[out.Selected-1], nil
}

// PickRandom stores a uniformly chosen candidate as the state's instruction.
func (w *Writer) PickRandom(s State) (State, error) {
	if err := haveCandidates(s); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Instruction = s.NextInstructions[w.intn(len(s.NextInstructions))]
	return next, nil
}
