package tale

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/theimaginaryfoundation/tale-studio/tale/apperr"
	"github.com/theimaginaryfoundation/tale-studio/tale/fileutils"
	"github.com/theimaginaryfoundation/tale-studio/tale/logger"
	"github.com/theimaginaryfoundation/tale-studio/tale/metrics"
	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
	"github.com/theimaginaryfoundation/tale-studio/tale/provider"
	"github.com/theimaginaryfoundation/tale-studio/tale/tokenizer"
)

const DefaultInputTokensLimit = 2000

// Summarizer condenses a manuscript into per-window and per-chapter summaries.
type Summarizer struct {
	Completer  provider.Completer
	Prompts    *prompts.Registry
	Counter    tokenizer.Counter
	Settings   Settings
	TokenLimit int

	// checkpoint replaces State.Save in tests.
	checkpoint func(s State, path string) error
}

func (sm *Summarizer) save(s State, path string) error {
	if sm.checkpoint != nil {
		return sm.checkpoint(s, path)
	}
	return s.Save(path)
}

func (sm *Summarizer) counter() tokenizer.Counter {
	if sm.Counter != nil {
		return sm.Counter
	}
	return tokenizer.ForModel(sm.Settings.ModelName)
}

func (sm *Summarizer) limit() int {
	if sm.TokenLimit > 0 {
		return sm.TokenLimit
	}
	return DefaultInputTokensLimit
}

// WindowOptions configures one windowed summarization pass.
type WindowOptions struct {
	Language string
	Prompt   prompts.PromptID
	// Cached entries from an earlier run; the pass resumes after their highest paragraph number.
	Cached []SummaryEntry
}

// SummarizeByWindows summarizes each window in order and yields its entries stamped with the
// window's highest paragraph index. A plain summary yields a single text entry. Iteration stops
// after the first error.
func (sm *Summarizer) SummarizeByWindows(ctx context.Context, paragraphs []string, opts WindowOptions) iter.Seq2[SummaryEntry, error] {
	return func(yield func(SummaryEntry, error) bool) {
		for entries, err := range sm.summarizeWindows(ctx, paragraphs, opts) {
			if err != nil {
				yield(SummaryEntry{}, err)
				return
			}
			for _, e := range entries {
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// summarizeWindows yields all stamped entries of one window at a time, so a window can be
// checkpointed as a unit.
func (sm *Summarizer) summarizeWindows(ctx context.Context, paragraphs []string, opts WindowOptions) iter.Seq2[[]SummaryEntry, error] {
	return func(yield func([]SummaryEntry, error) bool) {
		prompt := opts.Prompt
		if prompt == "" {
			prompt = prompts.PromptL1Summarize
		}
		prevSummary, prevHeader, err := carryOver(opts.Cached)
		if err != nil {
			yield(nil, err)
			return
		}
		log := logger.FromContext(ctx)

		for window := range Windows(paragraphs, sm.counter(), Cursor(opts.Cached), sm.limit()) {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			last := window.MaxIndex()
			c, err := sm.summarize(ctx, window.Texts(), opts.Language, prevSummary, prevHeader, prompt)
			if err != nil {
				yield(nil, fmt.Errorf("window ending at paragraph %d: %w", last, err))
				return
			}
			metrics.SummaryWindowsTotal.WithLabelValues(string(prompt)).Inc()
			log.Info("window summarized", "prompt", prompt, "paragraphs", len(window), "cursor", last)

			var entries []SummaryEntry
			switch c := c.(type) {
			case PlainSummary:
				prevSummary = c.Text
				entries = []SummaryEntry{Text(c.Text).WithParagraph(last)}
			case StructuredSummary:
				prevSummary, err = encodePoints(c.Entries)
				if err != nil {
					yield(nil, err)
					return
				}
				if h, ok := lastHeader(c.Entries); ok {
					prevHeader = h
				}
				entries = make([]SummaryEntry, len(c.Entries))
				for i, e := range c.Entries {
					entries[i] = e.WithParagraph(last)
				}
			}
			if !yield(entries, nil) {
				return
			}
		}
	}
}

func (sm *Summarizer) summarize(ctx context.Context, texts []string, language, prevSummary, prevHeader string, id prompts.PromptID) (Completion, error) {
	prompt, err := render(sm.Prompts, id, sm.Settings, map[string]string{
		"text":                strings.Join(texts, "\n\n"),
		"language":            language,
		"prev_summary":        prevSummary,
		"prev_chapter_header": prevHeader,
	})
	if err != nil {
		return nil, err
	}
	req := sm.Settings.request(prompt)
	req.JSON = true
	raw, err := completeText(ctx, sm.Completer, req)
	if err != nil {
		return nil, err
	}
	c, err := ParseCompletion(raw)
	if err != nil {
		return nil, err
	}
	switch c := c.(type) {
	case PlainSummary:
		if strings.TrimSpace(c.Text) == "" {
			return nil, apperr.New(apperr.CodeMalformedCompletion, "empty summary")
		}
	case StructuredSummary:
		if len(c.Entries) == 0 {
			return nil, apperr.New(apperr.CodeMalformedCompletion, "empty summary")
		}
	}
	return c, nil
}

// carryOver rebuilds the previous-summary context from cached entries of the last summarized window.
func carryOver(cached []SummaryEntry) (prevSummary string, prevHeader string, err error) {
	cursor := Cursor(cached)
	if cursor == StartCursor {
		return "", "", nil
	}
	var last []SummaryEntry
	for _, e := range cached {
		if e.ParagraphNumber == cursor {
			last = append(last, e)
		}
	}
	if h, ok := lastHeader(cached); ok {
		prevHeader = h
	}
	if len(last) == 1 && last[0].Kind == EntryText {
		return last[0].Text, prevHeader, nil
	}
	prevSummary, err = encodePoints(last)
	return prevSummary, prevHeader, err
}

func encodePoints(entries []SummaryEntry) (string, error) {
	points := make([]SummaryEntry, 0, len(entries))
	for _, e := range entries {
		if e.Kind == EntryPoint {
			points = append(points, e.content())
		}
	}
	b, err := fileutils.MarshalJSON(struct {
		Summary []SummaryEntry `json:"summary"`
	}{points}, false)
	if err != nil {
		return "", fmt.Errorf("encode previous summary: %w", err)
	}
	return string(b), nil
}

func lastHeader(entries []SummaryEntry) (string, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == EntryHeader {
			return entries[i].Text, true
		}
	}
	return "", false
}

// Dedup drops entries whose content, ignoring the paragraph number, was already seen.
func Dedup(entries []SummaryEntry) []SummaryEntry {
	seen := make(map[SummaryEntry]struct{}, len(entries))
	out := make([]SummaryEntry, 0, len(entries))
	for _, e := range entries {
		key := e.content()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

// dedupKeepingCursor deduplicates entries without lowering the resume cursor: when every entry of
// the last window was a duplicate, the last surviving entry takes over its paragraph number.
func dedupKeepingCursor(entries []SummaryEntry) []SummaryEntry {
	cursor := Cursor(entries)
	out := Dedup(entries)
	if len(out) > 0 && Cursor(out) < cursor {
		out[len(out)-1] = out[len(out)-1].WithParagraph(cursor)
	}
	return out
}

// Chapters groups level-1 points into one newline-joined text per chapter, starting a new
// chapter at every header. Chapters without points are dropped.
func Chapters(entries []SummaryEntry) []string {
	groups := [][]string{nil}
	for _, e := range entries {
		switch e.Kind {
		case EntryHeader:
			groups = append(groups, nil)
		case EntryPoint:
			groups[len(groups)-1] = append(groups[len(groups)-1], e.Text)
		}
	}
	var out []string
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, strings.Join(g, "\n"))
		}
	}
	return out
}

// ExtractMeta asks for the title and language of a book from its opening paragraphs.
func (sm *Summarizer) ExtractMeta(ctx context.Context, paragraphs []string) (name string, language string, err error) {
	prompt, err := render(sm.Prompts, prompts.PromptExtractMeta, sm.Settings, map[string]string{
		"text": strings.Join(paragraphs, "\n\n"),
	})
	if err != nil {
		return "", "", err
	}
	out, err := completeJSON[bookMetaResponse](ctx, sm.Completer, sm.Settings.request(prompt), "BookMeta", bookMetaSchema)
	if err != nil {
		return "", "", err
	}
	out.Name = strings.TrimSpace(out.Name)
	out.Language = strings.TrimSpace(out.Language)
	if out.Name == "" || out.Language == "" {
		return "", "", apperr.New(apperr.CodeMalformedCompletion, "book meta is missing name or language")
	}
	return out.Name, out.Language, nil
}

// BookOptions configures SummarizeBook.
type BookOptions struct {
	InputFile          string
	OutputFile         string
	Language           string
	MinParagraphLength int
	MaxParagraphLength int
}

// SummarizeBook summarizes a .txt book into the snapshot at OutputFile. The snapshot doubles as
// a checkpoint: it is saved after every window and chapter, and an existing snapshot is resumed
// instead of re-reading the book.
func (sm *Summarizer) SummarizeBook(ctx context.Context, opts BookOptions) (State, error) {
	if !strings.HasSuffix(opts.InputFile, ".txt") {
		return State{}, apperr.Newf(apperr.CodeInvalidParam, "input file %q must be a .txt file", opts.InputFile)
	}
	if opts.OutputFile == "" {
		return State{}, apperr.New(apperr.CodeInvalidParam, "output file is required")
	}

	state, err := sm.openBook(opts)
	if err != nil {
		return State{}, err
	}
	if state.Language == "" {
		state.Language = opts.Language
	}

	if state.Name == "" {
		for window := range Windows(state.Paragraphs, sm.counter(), StartCursor, sm.limit()) {
			name, language, err := sm.ExtractMeta(ctx, window.Texts())
			if err != nil {
				return state, fmt.Errorf("extract meta: %w", err)
			}
			state.Name, state.Language = name, language
			break
		}
		if err := sm.save(state, opts.OutputFile); err != nil {
			return state, err
		}
	}
	ctx = logger.WithContext(ctx, logger.StoryKey, state.Name)
	log := logger.FromContext(ctx)

	log.Info("level-1 pass", "paragraphs", len(state.Paragraphs), "cursor", Cursor(state.L1Summaries))
	for entries, err := range sm.summarizeWindows(ctx, state.Paragraphs, WindowOptions{
		Language: state.Language,
		Prompt:   prompts.PromptL1Summarize,
		Cached:   state.L1Summaries,
	}) {
		if err != nil {
			return state, fmt.Errorf("level-1 summary: %w", err)
		}
		for _, e := range entries {
			if e.Kind == EntryText {
				return state, apperr.Newf(apperr.CodeMalformedCompletion, "level-1 summary for paragraph %d is not a list of points", e.ParagraphNumber)
			}
		}
		next := state.Clone()
		next.L1Summaries = append(next.L1Summaries, entries...)
		if err := sm.save(next, opts.OutputFile); err != nil {
			return state, err
		}
		state = next
	}

	state.L1Summaries = dedupKeepingCursor(state.L1Summaries)
	if err := sm.save(state, opts.OutputFile); err != nil {
		return state, err
	}

	chapters := Chapters(state.L1Summaries)
	log.Info("level-2 pass", "chapters", len(chapters), "cached", len(state.L2Summaries))
	for i, chapter := range chapters {
		if i < len(state.L2Summaries) {
			continue
		}
		var parts []string
		for entry, err := range sm.SummarizeByWindows(ctx, []string{chapter}, WindowOptions{
			Language: state.Language,
			Prompt:   prompts.PromptL2Summarize,
		}) {
			if err != nil {
				return state, fmt.Errorf("level-2 summary of chapter %d: %w", i, err)
			}
			parts = append(parts, entry.Text)
		}
		state.L2Summaries = append(state.L2Summaries, strings.Join(parts, "\n"))
		if err := sm.save(state, opts.OutputFile); err != nil {
			return state, err
		}
		metrics.SummaryChaptersTotal.Inc()
		log.Info("chapter summarized", "chapter", i+1, "of", len(chapters))
	}
	return state, nil
}

func (sm *Summarizer) openBook(opts BookOptions) (State, error) {
	if fileutils.FileExists(opts.OutputFile) {
		return LoadState(opts.OutputFile)
	}
	b, err := os.ReadFile(opts.InputFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, apperr.Wrap(err, apperr.CodeNotFound, "read book")
		}
		return State{}, apperr.Wrap(err, apperr.CodePersistence, "read book")
	}
	state := State{Language: opts.Language}.Clone()
	state.Paragraphs = Reshape(SplitText(string(b)), opts.MinParagraphLength, opts.MaxParagraphLength, opts.Language)
	return state, nil
}
