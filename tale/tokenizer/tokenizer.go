// Package tokenizer counts tokens for a model.
package tokenizer

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// Counter counts the tokens a model would see for text.
type Counter interface {
	CountTokens(text string) int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(text string) int

func (f CounterFunc) CountTokens(text string) int { return f(text) }

// Tiktoken counts tokens with a BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func (t *Tiktoken) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Heuristic approximates tokens as one per four bytes.
type Heuristic struct{}

func (Heuristic) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Tiktoken{}
)

// ForModel returns a tiktoken counter for the model's encoding, falling back to cl100k_base
// for models tiktoken does not know, and to Heuristic when no encoding can be loaded.
func ForModel(model string) Counter {
	key := strings.TrimSpace(model)

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if c, ok := cache[key]; ok {
		return c
	}

	enc, err := tiktoken.EncodingForModel(key)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		return Heuristic{}
	}
	c := &Tiktoken{enc: enc}
	cache[key] = c
	return c
}

// Runes counts characters, used for paragraph length thresholds.
func Runes(text string) int {
	return utf8.RuneCountInString(text)
}
