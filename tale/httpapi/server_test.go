package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/theimaginaryfoundation/tale-studio/tale"
	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
	"github.com/theimaginaryfoundation/tale-studio/tale/provider"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeCatalog map[prompts.Family][]string

func (f fakeCatalog) ListModels(_ context.Context, family prompts.Family, _ provider.Credentials) ([]string, error) {
	return f[family], nil
}

func (f fakeCatalog) All(_ context.Context, _ provider.Credentials) ([]string, error) {
	var out []string
	for _, fam := range []prompts.Family{prompts.FamilyLocal, prompts.FamilyOpenAI, prompts.FamilyAnthropic} {
		out = append(out, f[fam]...)
	}
	return out, nil
}

func storyCompleter() provider.CompleterFunc {
	return func(_ context.Context, req provider.Request) (string, error) {
		switch req.SchemaName {
		case "StoryMeta":
			return `{"name": "Red Planet", "language": "English", "synopsis": "Colonists find water.", "outline": "1. Landing"}`, nil
		case "Passage":
			return `{"paragraph": "New prose.", "short_memory": "memory 2", "next_instructions": ["go north", "go south", "wait"]}`, nil
		case "Instructions":
			return `{"next_instructions": ["a", "b", "c"]}`, nil
		}
		return "", errors.New("unexpected schema " + req.SchemaName)
	}
}

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()

	catalog := fakeCatalog{prompts.FamilyOpenAI: {"gpt-test"}, prompts.FamilyLocal: {"local-7b"}}
	defaults := tale.DefaultSettings()
	defaults.ModelName = "gpt-test"
	s := &Server{
		Writer: &tale.Writer{
			Completer: storyCompleter(),
			Prompts:   prompts.NewRegistry(),
			Models:    catalog,
			Intn:      func(n int) int { return 0 },
		},
		Catalog:  catalog,
		SavesDir: t.TempDir(),
		Defaults: defaults,
	}
	return s, NewRouter(s)
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) tale.State {
	t.Helper()

	var resp Response[storyResponse]
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp.Data.State
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)
	w := do(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
}

func TestRequestIDPropagated(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("request id=%q", got)
	}

	w = do(t, r, http.MethodGet, "/healthz", nil)
	if got := w.Header().Get(RequestIDHeader); got == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestStoryFlow(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)

	w := do(t, r, http.MethodPost, "/v1/meta", map[string]any{"novel_type": "Science Fiction", "description": "A colony on Mars"})
	if w.Code != http.StatusOK {
		t.Fatalf("meta code=%d body=%q", w.Code, w.Body.String())
	}
	st := decodeState(t, w)
	if st.Name != "Red Planet" || st.NovelType != "Science Fiction" {
		t.Fatalf("meta state=%+v", st)
	}

	w = do(t, r, http.MethodPost, "/v1/first-step", map[string]any{"state": st})
	if w.Code != http.StatusOK {
		t.Fatalf("first-step code=%d body=%q", w.Code, w.Body.String())
	}
	st = decodeState(t, w)
	if len(st.Paragraphs) != 1 || len(st.NextInstructions) != 3 {
		t.Fatalf("first-step state=%+v", st)
	}

	w = do(t, r, http.MethodPost, "/v1/instructions", map[string]any{"state": st})
	if w.Code != http.StatusOK {
		t.Fatalf("instructions code=%d body=%q", w.Code, w.Body.String())
	}
	st = decodeState(t, w)
	if !reflect.DeepEqual(st.NextInstructions, []string{"a", "b", "c"}) || st.Instruction != "a" {
		t.Fatalf("instructions state=%+v", st)
	}

	w = do(t, r, http.MethodPost, "/v1/step", map[string]any{"state": st, "selection": map[string]string{"mode": "manual", "instruction": "land the ship"}})
	if w.Code != http.StatusOK {
		t.Fatalf("step code=%d body=%q", w.Code, w.Body.String())
	}
	st = decodeState(t, w)
	if len(st.Paragraphs) != 2 || st.Paragraphs[1] != "New prose." || st.Instruction != "" {
		t.Fatalf("step state=%+v", st)
	}
}

func TestStep_UnknownModelIsBadRequest(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)
	st := tale.State{Name: "x", Paragraphs: []string{"p"}, NextInstructions: []string{"a", "b", "c"}}
	settings := tale.DefaultSettings()
	settings.ModelName = "missing"

	w := do(t, r, http.MethodPost, "/v1/step", map[string]any{"state": st, "settings": settings, "selection": map[string]string{"mode": "random"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
	if got := decodeError(t, w).Error.ErrorCode; got != "configuration" {
		t.Fatalf("error_code=%q", got)
	}
}

func TestStep_UnknownSelectionMode(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)
	w := do(t, r, http.MethodPost, "/v1/step", map[string]any{"selection": map[string]string{"mode": "vote"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
}

func TestStep_RejectsBadSnapshot(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)
	w := do(t, r, http.MethodPost, "/v1/step", `{"state": {"next_instructions": ["only one"]}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
}

func TestMeta_RequiresDescription(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)
	w := do(t, r, http.MethodPost, "/v1/meta", map[string]any{"novel_type": "Fantasy"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)
	w := do(t, r, http.MethodPost, "/v1/fields", map[string]any{"field": "paragraphs", "value": "one\n\ntwo"})
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
	var resp Response[fieldResponse]
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(resp.Data.State.Paragraphs, []string{"one", "two"}) {
		t.Fatalf("paragraphs=%q", resp.Data.State.Paragraphs)
	}

	w = do(t, r, http.MethodPost, "/v1/fields", map[string]any{"target": "settings", "field": "temperature", "value": "0.5"})
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Settings.GenerationParams.Temperature != 0.5 || resp.Data.Settings.ModelName != "gpt-test" {
		t.Fatalf("settings=%+v", resp.Data.Settings)
	}

	w = do(t, r, http.MethodPost, "/v1/fields", map[string]any{"target": "settings", "field": "temperature", "value": "hot"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
}

func TestSaves(t *testing.T) {
	t.Parallel()

	s, r := newTestServer(t)
	st := tale.State{Name: "Red Planet", Paragraphs: []string{"First."}}

	w := do(t, r, http.MethodPut, "/v1/saves/red.json", map[string]any{"state": st})
	if w.Code != http.StatusOK {
		t.Fatalf("put code=%d body=%q", w.Code, w.Body.String())
	}
	if err := os.WriteFile(filepath.Join(s.SavesDir, ".hidden"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w = do(t, r, http.MethodGet, "/v1/saves", nil)
	var list Response[savesResponse]
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(list.Data.Saves, []string{"red.json"}) {
		t.Fatalf("saves=%q", list.Data.Saves)
	}

	w = do(t, r, http.MethodGet, "/v1/saves/red.json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get code=%d body=%q", w.Code, w.Body.String())
	}
	if got := decodeState(t, w); got.Name != "Red Planet" || len(got.Paragraphs) != 1 {
		t.Fatalf("loaded=%+v", got)
	}

	w = do(t, r, http.MethodGet, "/v1/saves/missing.json", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing code=%d", w.Code)
	}
}

func TestSaves_Validation(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)
	w := do(t, r, http.MethodPut, "/v1/saves/story.json", map[string]any{"state": tale.State{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unnamed story code=%d", w.Code)
	}
	w = do(t, r, http.MethodPut, "/v1/saves/.secret", map[string]any{"state": tale.State{Name: "x"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("hidden file code=%d", w.Code)
	}
}

func TestValidateSaveName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", " ", ".env", "a/b.json", `a\b.json`, ".."} {
		if err := ValidateSaveName(name); err == nil {
			t.Fatalf("name=%q: expected error", name)
		}
	}
	if err := ValidateSaveName("story.json"); err != nil {
		t.Fatalf("story.json: %v", err)
	}
}

func TestListSaves_MissingDir(t *testing.T) {
	t.Parallel()

	names, err := ListSaves(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(names) != 0 {
		t.Fatalf("names=%q err=%v", names, err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)
	w := do(t, r, http.MethodPost, "/v1/load", `{"name": "Uploaded", "paragraphs": ["p1"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
	if st := decodeState(t, w); st.Name != "Uploaded" {
		t.Fatalf("state=%+v", st)
	}

	w = do(t, r, http.MethodPost, "/v1/load", `{"name": "Uploaded", "bogus": 1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown key code=%d", w.Code)
	}
}

func TestModels(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)
	w := do(t, r, http.MethodGet, "/v1/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}
	var resp Response[modelsResponse]
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(resp.Data.Models, []string{"local-7b", "gpt-test"}) {
		t.Fatalf("models=%q", resp.Data.Models)
	}
	if len(resp.Data.Formats) == 0 || len(resp.Data.Embedders) == 0 {
		t.Fatalf("resp=%+v", resp.Data)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	_, r := newTestServer(t)
	_ = do(t, r, http.MethodGet, "/healthz", nil)
	w := do(t, r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "tale_studio_http_requests_total") {
		t.Fatalf("code=%d", w.Code)
	}
}
