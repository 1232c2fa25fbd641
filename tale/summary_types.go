package tale

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/theimaginaryfoundation/tale-studio/tale/apperr"
	"github.com/theimaginaryfoundation/tale-studio/tale/fileutils"
)

// NoParagraph marks a summary entry that carries no paragraph cursor.
const NoParagraph = -1

type EntryKind int

const (
	// EntryPoint is a summary point of a window.
	EntryPoint EntryKind = iota
	// EntryHeader is a chapter header seen in a window.
	EntryHeader
	// EntryText is an opaque running summary.
	EntryText
)

func (k EntryKind) String() string {
	switch k {
	case EntryPoint:
		return "summary_point"
	case EntryHeader:
		return "chapter_header"
	case EntryText:
		return "summary"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// SummaryEntry is one level-1 summary record, stamped with the highest paragraph index of
// the window it summarizes.
type SummaryEntry struct {
	Kind            EntryKind
	Text            string
	ParagraphNumber int
}

func Point(text string, paragraph int) SummaryEntry {
	return SummaryEntry{Kind: EntryPoint, Text: text, ParagraphNumber: paragraph}
}

func Header(text string, paragraph int) SummaryEntry {
	return SummaryEntry{Kind: EntryHeader, Text: text, ParagraphNumber: paragraph}
}

func Text(text string) SummaryEntry {
	return SummaryEntry{Kind: EntryText, Text: text, ParagraphNumber: NoParagraph}
}

func (e SummaryEntry) Stamped() bool { return e.ParagraphNumber >= 0 }

func (e SummaryEntry) WithParagraph(n int) SummaryEntry {
	e.ParagraphNumber = n
	return e
}

// content is the entry with its cursor stripped, used for deduplication.
func (e SummaryEntry) content() SummaryEntry {
	e.ParagraphNumber = NoParagraph
	return e
}

type entryJSON struct {
	SummaryPoint    *string `json:"summary_point,omitempty"`
	ChapterHeader   *string `json:"chapter_header,omitempty"`
	Summary         *string `json:"summary,omitempty"`
	ParagraphNumber *int    `json:"paragraph_number,omitempty"`
}

func (e SummaryEntry) MarshalJSON() ([]byte, error) {
	if e.Kind == EntryText && !e.Stamped() {
		return fileutils.MarshalJSON(e.Text, false)
	}
	var j entryJSON
	text := e.Text
	switch e.Kind {
	case EntryPoint:
		j.SummaryPoint = &text
	case EntryHeader:
		j.ChapterHeader = &text
	case EntryText:
		j.Summary = &text
	default:
		return nil, fmt.Errorf("unknown summary entry kind %d", e.Kind)
	}
	if e.Stamped() {
		n := e.ParagraphNumber
		j.ParagraphNumber = &n
	}
	return fileutils.MarshalJSON(j, false)
}

func (e *SummaryEntry) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = Text(s)
		return nil
	}

	var j entryJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	switch {
	case j.SummaryPoint != nil:
		*e = SummaryEntry{Kind: EntryPoint, Text: *j.SummaryPoint}
	case j.ChapterHeader != nil:
		*e = SummaryEntry{Kind: EntryHeader, Text: *j.ChapterHeader}
	case j.Summary != nil:
		*e = SummaryEntry{Kind: EntryText, Text: *j.Summary}
	default:
		return errors.New("summary entry has none of summary_point, chapter_header, summary")
	}
	e.ParagraphNumber = NoParagraph
	if j.ParagraphNumber != nil {
		e.ParagraphNumber = *j.ParagraphNumber
	}
	return nil
}

// Completion is the parsed result of a summarization call: PlainSummary or StructuredSummary.
type Completion interface {
	isCompletion()
}

// PlainSummary is an opaque running summary carried forward verbatim.
type PlainSummary struct {
	Text string
}

// StructuredSummary is a list of summary points and chapter headers.
type StructuredSummary struct {
	Entries []SummaryEntry
}

func (PlainSummary) isCompletion()      {}
func (StructuredSummary) isCompletion() {}

// ParseCompletion decodes the model output {"summary": ...} into a Completion.
func ParseCompletion(raw string) (Completion, error) {
	var out struct {
		Summary json.RawMessage `json:"summary"`
	}
	if err := fileutils.DecodeModelJSON(raw, &out); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeMalformedCompletion, "decode summary")
	}
	body := bytes.TrimSpace(out.Summary)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, apperr.New(apperr.CodeMalformedCompletion, "completion has no summary")
	}

	switch body[0] {
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeMalformedCompletion, "decode summary text")
		}
		return PlainSummary{Text: s}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeMalformedCompletion, "decode summary list")
		}
		entries := make([]SummaryEntry, 0, len(items))
		for _, item := range items {
			var e SummaryEntry
			if err := json.Unmarshal(item, &e); err != nil {
				return nil, apperr.Wrap(err, apperr.CodeMalformedCompletion, "decode summary entry")
			}
			// A bare string inside the list is a summary point.
			if e.Kind == EntryText {
				e.Kind = EntryPoint
			}
			e.ParagraphNumber = NoParagraph
			entries = append(entries, e)
		}
		return StructuredSummary{Entries: entries}, nil
	default:
		return nil, apperr.Newf(apperr.CodeMalformedCompletion, "summary is neither text nor a list: %s", fileutils.Truncate(string(body), 80))
	}
}
