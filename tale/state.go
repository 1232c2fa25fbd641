// Package tale implements the story generator and the book summarizer.
package tale

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/theimaginaryfoundation/tale-studio/tale/apperr"
	"github.com/theimaginaryfoundation/tale-studio/tale/fileutils"
)

// State is the story record threaded through generation and summarization.
// Transitions take a State by value and return the next one.
type State struct {
	Name             string         `json:"name"`
	Language         string         `json:"language"`
	Description      string         `json:"description"`
	NovelType        string         `json:"novel_type"`
	Synopsis         string         `json:"synopsis"`
	Outline          string         `json:"outline"`
	Paragraphs       []string       `json:"paragraphs"`
	ShortMemory      string         `json:"short_memory"`
	NextInstructions []string       `json:"next_instructions"`
	Instruction      string         `json:"instruction"`
	L1Summaries      []SummaryEntry `json:"l1_summaries"`
	L2Summaries      []string       `json:"l2_summaries"`
}

// Clone returns a copy that shares no slices with s. Nil slices become empty.
func (s State) Clone() State {
	out := s
	out.Paragraphs = cloneNonNil(s.Paragraphs)
	out.NextInstructions = cloneNonNil(s.NextInstructions)
	out.L1Summaries = cloneNonNil(s.L1Summaries)
	out.L2Summaries = cloneNonNil(s.L2Summaries)
	return out
}

func cloneNonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return slices.Clone(in)
}

// Encode serializes the snapshot as indented UTF-8 JSON.
func (s State) Encode() ([]byte, error) {
	return fileutils.MarshalJSON(s.Clone(), true)
}

// DecodeState parses a snapshot. Unknown keys are rejected.
func DecodeState(b []byte) (State, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var s State
	if err := dec.Decode(&s); err != nil {
		return State{}, apperr.Wrap(err, apperr.CodeInvalidParam, "decode story snapshot")
	}
	if n := len(s.NextInstructions); n != 0 && n != instructionCount {
		return State{}, apperr.Newf(apperr.CodeInvalidParam, "snapshot has %d next instructions, want %d", n, instructionCount)
	}
	return s.Clone(), nil
}

// Save writes the snapshot atomically.
func (s State) Save(path string) error {
	if err := fileutils.WriteJSONFileAtomic(path, s.Clone(), true); err != nil {
		return apperr.Wrap(err, apperr.CodePersistence, fmt.Sprintf("save %s", path))
	}
	return nil
}

func LoadState(path string) (State, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, apperr.Wrap(err, apperr.CodeNotFound, fmt.Sprintf("load %s", path))
		}
		return State{}, apperr.Wrap(err, apperr.CodePersistence, fmt.Sprintf("load %s", path))
	}
	return DecodeState(b)
}

// LastParagraph returns the most recent manuscript entry, or "".
func (s State) LastParagraph() string {
	if len(s.Paragraphs) == 0 {
		return ""
	}
	return s.Paragraphs[len(s.Paragraphs)-1]
}
