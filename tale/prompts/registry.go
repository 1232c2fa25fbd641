// Package prompts renders the embedded prompt templates used by the generator and summarizer.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed templates
var templatesFS embed.FS

type PromptID string

const (
	PromptMeta              PromptID = "meta"
	PromptFirstStep         PromptID = "first_step"
	PromptInstructions      PromptID = "instructions"
	PromptStep              PromptID = "step"
	PromptSelectInstruction PromptID = "select_instruction"
	PromptExtractMeta       PromptID = "existing_book/extract_meta"
	PromptL1Summarize       PromptID = "existing_book/l1_summarize"
	PromptL2Summarize       PromptID = "existing_book/l2_summarize"
)

// Family selects backend-specific template overrides.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyLocal     Family = "local"
)

const defaultDir = "default"

var ErrUnknownPrompt = errors.New("unknown prompt")

// Registry loads templates from an fs.FS laid out as <family>/<id>.txt with a default/ fallback.
type Registry struct {
	fsys  fs.FS
	mu    sync.RWMutex
	cache map[string]string
}

func NewRegistry() *Registry {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return NewRegistryFS(sub)
}

func NewRegistryFS(fsys fs.FS) *Registry {
	return &Registry{fsys: fsys, cache: make(map[string]string)}
}

// Template returns the raw template text for id, preferring the family override.
func (r *Registry) Template(id PromptID, family Family) (string, error) {
	if r == nil {
		return "", fmt.Errorf("prompt registry is nil")
	}
	for _, dir := range []string{string(family), defaultDir} {
		if dir == "" {
			continue
		}
		p := path.Join(dir, string(id)+".txt")

		r.mu.RLock()
		text, ok := r.cache[p]
		r.mu.RUnlock()
		if ok {
			return text, nil
		}

		b, err := fs.ReadFile(r.fsys, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read template %s: %w", p, err)
		}
		text = strings.TrimSpace(string(b))
		r.mu.Lock()
		r.cache[p] = text
		r.mu.Unlock()
		return text, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownPrompt, id)
}

// Render substitutes {key} placeholders in the template. Placeholders without a value are left as is.
func (r *Registry) Render(id PromptID, family Family, vars map[string]string) (string, error) {
	text, err := r.Template(id, family)
	if err != nil {
		return "", err
	}
	return Substitute(text, vars), nil
}

// Substitute performs a single pass of {key} replacement; substituted values are not rescanned.
func Substitute(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
