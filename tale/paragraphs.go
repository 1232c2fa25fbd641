package tale

import (
	"regexp"
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/data"
	"github.com/neurosnap/sentences/english"

	"github.com/theimaginaryfoundation/tale-studio/tale/tokenizer"
)

// SplitText turns raw book text into paragraphs, one per non-blank line.
func SplitText(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if p := strings.TrimSpace(line); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitBlocks splits an edited manuscript on blank lines, trimming each block.
func SplitBlocks(text string) []string {
	out := []string{}
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p := strings.TrimSpace(block); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitParagraphs partitions every paragraph of at least maxLen characters into
// ceil(len/maxLen) parts at sentence boundaries. Sentences are accumulated greedily while the
// part stays within ceil(len/parts) characters; a single sentence longer than that is cut.
func SplitParagraphs(paragraphs []string, maxLen int, language string) []string {
	out := make([]string, 0, len(paragraphs))
	if maxLen <= 0 {
		return append(out, paragraphs...)
	}
	split := sentenceSplitter(language)

	for _, p := range paragraphs {
		n := tokenizer.Runes(p)
		if n < maxLen {
			out = append(out, p)
			continue
		}
		parts := ceilDiv(n, maxLen)
		partLen := ceilDiv(n, parts)

		current := ""
		for _, s := range split(p) {
			for _, piece := range cutRunes(s, partLen) {
				if current == "" {
					current = piece
					continue
				}
				joined := current + " " + piece
				if tokenizer.Runes(joined) > partLen {
					out = append(out, current)
					current = piece
					continue
				}
				current = joined
			}
		}
		if current != "" {
			out = append(out, current)
		}
	}
	return out
}

// MergeParagraphs joins consecutive paragraphs shorter than minLen with a line break until the
// joined text reaches minLen. A trailing short accumulation is kept as is. Blank paragraphs are dropped.
func MergeParagraphs(paragraphs []string, minLen int) []string {
	var out []string
	current := ""
	for _, p := range paragraphs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if tokenizer.Runes(p) >= minLen {
			if current != "" {
				out = append(out, current)
				current = ""
			}
			out = append(out, p)
			continue
		}
		if current == "" {
			current = p
		} else {
			current = current + "\n" + p
		}
		if tokenizer.Runes(current) >= minLen {
			out = append(out, current)
			current = ""
		}
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}

// Reshape runs the split phase then the merge phase.
func Reshape(paragraphs []string, minLen, maxLen int, language string) []string {
	return MergeParagraphs(SplitParagraphs(paragraphs, maxLen, language), minLen)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// cutRunes splits s into pieces of at most n runes, preferring to cut at whitespace.
func cutRunes(s string, n int) []string {
	r := []rune(s)
	if len(r) <= n {
		return []string{s}
	}
	var out []string
	for len(r) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if r[i] == ' ' || r[i] == '\t' {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(r[:cut])); piece != "" {
			out = append(out, piece)
		}
		r = []rune(strings.TrimLeft(string(r[cut:]), " \t"))
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

var (
	splittersMu sync.Mutex
	splitters   = map[string]func(string) []string{}
)

// sentenceSplitter returns a punkt tokenizer for the language when trained data ships with
// the sentences module, and a punctuation splitter otherwise.
func sentenceSplitter(language string) func(string) []string {
	lang := strings.ToLower(strings.TrimSpace(language))

	splittersMu.Lock()
	defer splittersMu.Unlock()
	if f, ok := splitters[lang]; ok {
		return f
	}

	f := punctuationSplit
	if tok := punktTokenizer(lang); tok != nil {
		f = func(text string) []string {
			var out []string
			for _, s := range tok.Tokenize(text) {
				if t := strings.TrimSpace(s.Text); t != "" {
					out = append(out, t)
				}
			}
			return out
		}
	}
	splitters[lang] = f
	return f
}

func punktTokenizer(lang string) *sentences.DefaultSentenceTokenizer {
	if lang == "" || lang == "english" {
		tok, err := english.NewSentenceTokenizer(nil)
		if err != nil {
			return nil
		}
		return tok
	}
	b, err := data.Asset("data/" + lang + ".json")
	if err != nil {
		return nil
	}
	training, err := sentences.LoadTraining(b)
	if err != nil {
		return nil
	}
	return sentences.NewSentenceTokenizer(training)
}

var sentenceEnd = regexp.MustCompile(`[.!?…]+["'»”’)\]]*\s+`)

func punctuationSplit(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}
