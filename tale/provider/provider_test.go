package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
)

func TestRouter_DispatchesByTemplate(t *testing.T) {
	t.Parallel()

	named := func(name string) Completer {
		return CompleterFunc(func(context.Context, Request) (string, error) { return name, nil })
	}
	r := &Router{OpenAI: named("openai"), Anthropic: named("anthropic"), Local: named("local")}
	cases := map[string]string{
		prompts.FormatOpenAI:    "openai",
		prompts.FormatAnthropic: "anthropic",
		prompts.FormatChatML:    "local",
		"Q: {prompt}":           "local",
	}
	for tpl, want := range cases {
		got, err := r.Complete(context.Background(), Request{Template: tpl})
		if err != nil || got != want {
			t.Fatalf("template=%q got=%q err=%v", tpl, got, err)
		}
	}

	if _, err := (&Router{}).Complete(context.Background(), Request{Template: prompts.FormatOpenAI}); err == nil {
		t.Fatalf("expected error without backend")
	}
}

func TestLocal_WrapsPromptAndSendsSamplingExtras(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/completions") {
			t.Errorf("path=%q", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"text_completion","created":0,"model":"m","choices":[{"index":0,"text":"  once upon a time ","finish_reason":"stop","logprobs":null}]}`)
	}))
	defer srv.Close()

	l := NewLocal(srv.URL + "/v1/")
	got, err := l.Complete(context.Background(), Request{
		Model:    "llama",
		Template: prompts.FormatMistral,
		Prompt:   "write",
		Params:   GenerationParams{Temperature: 0.5, TopK: 30, RepetitionPenalty: 1.2},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "once upon a time" {
		t.Fatalf("got=%q", got)
	}
	if body["prompt"] != "<s>[INST] write [/INST]" {
		t.Fatalf("prompt=%v", body["prompt"])
	}
	if body["top_k"] != float64(30) || body["repeat_penalty"] != 1.2 {
		t.Fatalf("top_k=%v repeat_penalty=%v", body["top_k"], body["repeat_penalty"])
	}
}

func TestAnthropic_JoinsTextBlocks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			t.Errorf("api key=%q", r.Header.Get("X-Api-Key"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-x","content":[{"type":"text","text":"{\"name\":"},{"type":"text","text":"\"x\"}"}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	a := &Anthropic{BaseURL: srv.URL, Retry: NoRetry()}
	got, err := a.Complete(context.Background(), Request{
		Model:       "claude-x",
		Prompt:      "hi",
		JSON:        true,
		Credentials: Credentials{AnthropicKey: "k"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"name":"x"}` {
		t.Fatalf("got=%q", got)
	}
}

func TestOpenAI_RequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAI("").Complete(context.Background(), Request{Model: "gpt-4o-mini", Prompt: "hi"})
	if err != ErrNoCredentials {
		t.Fatalf("err=%v", err)
	}
}

func TestCatalog_ListsFamiliesInOrder(t *testing.T) {
	t.Parallel()

	c := &Catalog{
		OpenAIKey:   "o",
		LocalModels: []string{"llama-3-8b"},
		listOpenAI: func(_ context.Context, key string) ([]string, error) {
			if key != "override" {
				t.Errorf("key=%q", key)
			}
			return []string{"gpt-4o"}, nil
		},
		listAnthropic: func(context.Context, string) ([]string, error) {
			t.Errorf("anthropic listed without a key")
			return nil, nil
		},
	}
	got, err := c.All(context.Background(), Credentials{OpenAIKey: "override"})
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if !slices.Equal(got, []string{"llama-3-8b", "gpt-4o"}) {
		t.Fatalf("got=%v", got)
	}
}

func TestIsChatModel(t *testing.T) {
	t.Parallel()

	for id, want := range map[string]bool{
		"gpt-4o":                 true,
		"o3-mini":                true,
		"gpt-4o-realtime":        false,
		"text-embedding-3-small": false,
		"dall-e-3":               false,
	} {
		if got := isChatModel(id); got != want {
			t.Fatalf("isChatModel(%q)=%v", id, got)
		}
	}
}
