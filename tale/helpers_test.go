package tale

import (
	"context"
	"sync"

	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
	"github.com/theimaginaryfoundation/tale-studio/tale/provider"
	"github.com/theimaginaryfoundation/tale-studio/tale/tokenizer"
)

type fakeCompleter struct {
	mu    sync.Mutex
	reqs  []provider.Request
	reply func(req provider.Request) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, req provider.Request) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.reply(req)
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeCompleter) last() provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type fakeModels map[prompts.Family][]string

func (f fakeModels) ListModels(_ context.Context, family prompts.Family, _ provider.Credentials) ([]string, error) {
	return f[family], nil
}

// runeCounter counts one token per character.
var runeCounter = tokenizer.CounterFunc(tokenizer.Runes)

// oneCounter counts one token per paragraph.
var oneCounter = tokenizer.CounterFunc(func(string) int { return 1 })

func testSettings() Settings {
	s := DefaultSettings()
	s.ModelName = "gpt-test"
	return s
}
