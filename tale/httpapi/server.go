// Package httpapi exposes the story session operations over HTTP. The server is stateless:
// every request carries the story snapshot and model settings it operates on.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/theimaginaryfoundation/tale-studio/tale"
	"github.com/theimaginaryfoundation/tale-studio/tale/apperr"
	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
	"github.com/theimaginaryfoundation/tale-studio/tale/provider"
)

const maxSnapshotBytes = 32 << 20

// Catalog lists selectable models.
type Catalog interface {
	provider.ModelLister
	All(ctx context.Context, creds provider.Credentials) ([]string, error)
}

type Server struct {
	Writer   *tale.Writer
	Catalog  Catalog
	SavesDir string
	// Defaults apply to requests that carry no settings.
	Defaults tale.Settings
}

type storyRequest struct {
	State    json.RawMessage `json:"state"`
	Settings *tale.Settings  `json:"settings"`
}

type metaRequest struct {
	NovelType   string         `json:"novel_type" binding:"required"`
	Description string         `json:"description" binding:"required"`
	Settings    *tale.Settings `json:"settings"`
}

type stepRequest struct {
	storyRequest
	Selection struct {
		Mode        string `json:"mode"`
		Instruction string `json:"instruction"`
	} `json:"selection"`
}

type fieldRequest struct {
	storyRequest
	Target string `json:"target"`
	Field  string `json:"field" binding:"required"`
	Value  string `json:"value"`
}

type storyResponse struct {
	State tale.State `json:"state"`
}

type fieldResponse struct {
	State    tale.State    `json:"state"`
	Settings tale.Settings `json:"settings"`
}

type modelsResponse struct {
	Models    []string `json:"models"`
	Formats   []string `json:"formats"`
	Embedders []string `json:"embedders"`
}

type savesResponse struct {
	Saves []string `json:"saves"`
}

type saveResponse struct {
	Name string `json:"name"`
}

func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(), RequestID(), AccessLog(), Metrics())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/meta", s.meta)
	v1.POST("/first-step", s.firstStep)
	v1.POST("/instructions", s.instructions)
	v1.POST("/step", s.step)
	v1.POST("/fields", s.fields)
	v1.POST("/load", s.load)
	v1.GET("/saves", s.listSaves)
	v1.GET("/saves/:name", s.getSave)
	v1.PUT("/saves/:name", s.putSave)
	v1.GET("/models", s.models)
	return r
}

func (s *Server) settings(in *tale.Settings) tale.Settings {
	if in == nil {
		return s.Defaults
	}
	return *in
}

// bindStory decodes the snapshot with the same rules as a snapshot file.
func (s *Server) bindStory(req storyRequest) (tale.State, tale.Settings, error) {
	settings := s.settings(req.Settings)
	if len(req.State) == 0 || string(req.State) == "null" {
		return tale.State{}.Clone(), settings, nil
	}
	st, err := tale.DecodeState(req.State)
	return st, settings, err
}

func (s *Server) meta(c *gin.Context) {
	var req metaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, err := s.Writer.GenerateMeta(c.Request.Context(), s.settings(req.Settings), req.NovelType, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, storyResponse{State: st})
}

func (s *Server) firstStep(c *gin.Context) {
	s.transition(c, s.Writer.GenerateFirstStep)
}

// instructions generates candidates and pre-selects one of them at random.
func (s *Server) instructions(c *gin.Context) {
	s.transition(c, func(ctx context.Context, st tale.State, settings tale.Settings) (tale.State, error) {
		next, err := s.Writer.GenerateInstructions(ctx, st, settings)
		if err != nil {
			return st, err
		}
		return s.Writer.PickRandom(next)
	})
}

func (s *Server) transition(c *gin.Context, fn func(context.Context, tale.State, tale.Settings) (tale.State, error)) {
	var req storyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, settings, err := s.bindStory(req)
	if err != nil {
		fail(c, err)
		return
	}
	next, err := fn(c.Request.Context(), st, settings)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, storyResponse{State: next})
}

func (s *Server) step(c *gin.Context) {
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mode, err := tale.ParseSelectionMode(req.Selection.Mode)
	if err != nil {
		fail(c, err)
		return
	}
	st, settings, err := s.bindStory(req.storyRequest)
	if err != nil {
		fail(c, err)
		return
	}
	next, err := s.Writer.Step(c.Request.Context(), st, settings, tale.Selection{Mode: mode, Instruction: req.Selection.Instruction})
	if err != nil {
		fail(c, err)
		return
	}
	success(c, storyResponse{State: next})
}

func (s *Server) fields(c *gin.Context) {
	var req fieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, settings, err := s.bindStory(req.storyRequest)
	if err != nil {
		fail(c, err)
		return
	}
	switch req.Target {
	case "", "state":
		st, err = tale.SetField(st, req.Field, req.Value)
	case "settings":
		settings, err = tale.SetSettingsField(settings, req.Field, req.Value)
	default:
		err = apperr.Newf(apperr.CodeInvalidParam, "unknown field target %q", req.Target)
	}
	if err != nil {
		fail(c, err)
		return
	}
	success(c, fieldResponse{State: st, Settings: settings})
}

// load accepts an uploaded snapshot file as the raw request body.
func (s *Server) load(c *gin.Context) {
	b, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSnapshotBytes))
	if err != nil {
		badRequest(c, err)
		return
	}
	st, err := tale.DecodeState(b)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, storyResponse{State: st})
}

func (s *Server) listSaves(c *gin.Context) {
	names, err := ListSaves(s.SavesDir)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, savesResponse{Saves: names})
}

func (s *Server) getSave(c *gin.Context) {
	path, err := s.savePath(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	st, err := tale.LoadState(path)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, storyResponse{State: st})
}

func (s *Server) putSave(c *gin.Context) {
	path, err := s.savePath(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	var req storyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, _, err := s.bindStory(req)
	if err != nil {
		fail(c, err)
		return
	}
	if strings.TrimSpace(st.Name) == "" {
		fail(c, apperr.New(apperr.CodeInvalidParam, "story name is required before saving"))
		return
	}
	if err := os.MkdirAll(s.SavesDir, 0o755); err != nil {
		fail(c, apperr.Wrap(err, apperr.CodePersistence, "create saves directory"))
		return
	}
	if err := st.Save(path); err != nil {
		fail(c, err)
		return
	}
	success(c, saveResponse{Name: filepath.Base(path)})
}

func (s *Server) models(c *gin.Context) {
	creds := s.Defaults.Credentials()
	if key := c.GetHeader("X-OpenAI-Key"); key != "" {
		creds.OpenAIKey = key
	}
	if key := c.GetHeader("X-Anthropic-Key"); key != "" {
		creds.AnthropicKey = key
	}
	models, err := s.Catalog.All(c.Request.Context(), creds)
	if err != nil {
		fail(c, apperr.Wrap(err, apperr.CodeUpstream, "list models"))
		return
	}
	if models == nil {
		models = []string{}
	}
	success(c, modelsResponse{Models: models, Formats: prompts.FormatNames(), Embedders: provider.Embedders})
}

func (s *Server) savePath(name string) (string, error) {
	if err := ValidateSaveName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.SavesDir, name), nil
}

// ValidateSaveName accepts plain, visible file names only.
func ValidateSaveName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return apperr.New(apperr.CodeInvalidParam, "file name is required")
	case strings.HasPrefix(name, "."):
		return apperr.Newf(apperr.CodeInvalidParam, "file name %q must not be hidden", name)
	case strings.ContainsAny(name, `/\`) || filepath.Base(name) != name:
		return apperr.Newf(apperr.CodeInvalidParam, "file name %q must not contain a path", name)
	}
	return nil
}

// ListSaves returns the visible regular files in dir, sorted. A missing dir has no saves.
func ListSaves(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, apperr.Wrap(err, apperr.CodePersistence, "list saves")
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
