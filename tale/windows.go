package tale

import (
	"iter"

	"github.com/theimaginaryfoundation/tale-studio/tale/tokenizer"
)

// StartCursor places the windowing cursor before the first paragraph.
const StartCursor = -1

// Paragraph is a manuscript paragraph with its position.
type Paragraph struct {
	Index int
	Text  string
}

// Window is a run of consecutive paragraphs whose token count stays under a limit,
// unless it holds a single oversized paragraph.
type Window []Paragraph

func (w Window) Texts() []string {
	out := make([]string, len(w))
	for i, p := range w {
		out[i] = p.Text
	}
	return out
}

// MaxIndex returns the highest paragraph index in the window, or StartCursor when empty.
func (w Window) MaxIndex() int {
	m := StartCursor
	for _, p := range w {
		m = max(m, p.Index)
	}
	return m
}

// Windows yields token-bounded windows over paragraphs, skipping every index <= cursor.
// A paragraph joins the current window only while the running count plus its own count stays
// strictly below limit. Each range over the result starts a fresh pass.
func Windows(paragraphs []string, counter tokenizer.Counter, cursor int, limit int) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		var window Window
		count := 0
		for i, p := range paragraphs {
			if i <= cursor {
				continue
			}
			n := counter.CountTokens(p)
			if count+n < limit {
				count += n
				window = append(window, Paragraph{Index: i, Text: p})
				continue
			}
			if len(window) > 0 && !yield(window) {
				return
			}
			window = Window{{Index: i, Text: p}}
			count = n
		}
		if len(window) > 0 {
			yield(window)
		}
	}
}

// Cursor returns the highest paragraph number among stamped entries, or StartCursor.
func Cursor(entries []SummaryEntry) int {
	c := StartCursor
	for _, e := range entries {
		if e.Stamped() {
			c = max(c, e.ParagraphNumber)
		}
	}
	return c
}
