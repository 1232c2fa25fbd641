package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/theimaginaryfoundation/tale-studio/tale"
	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
	"github.com/theimaginaryfoundation/tale-studio/tale/provider"
)

type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	OpenAIAPIKey    string   `mapstructure:"openai_api_key"`
	AnthropicAPIKey string   `mapstructure:"anthropic_api_key"`
	LocalBaseURL    string   `mapstructure:"local_base_url"`
	LocalModels     []string `mapstructure:"local_models"`

	Model     ModelConfig     `mapstructure:"model"`
	Server    ServerConfig    `mapstructure:"server"`
	Summarize SummarizeConfig `mapstructure:"summarize"`
}

// ModelConfig holds the default model settings for interactive sessions.
type ModelConfig struct {
	Name              string  `mapstructure:"name"`
	PromptTemplate    string  `mapstructure:"prompt_template"`
	EmbedderName      string  `mapstructure:"embedder_name"`
	Temperature       float64 `mapstructure:"temperature"`
	TopP              float64 `mapstructure:"top_p"`
	TopK              int     `mapstructure:"top_k"`
	RepetitionPenalty float64 `mapstructure:"repetition_penalty"`
	MaxTokens         int     `mapstructure:"max_tokens"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	SavesDir string `mapstructure:"saves_dir"`
}

type SummarizeConfig struct {
	InputFile          string  `mapstructure:"input_file"`
	OutputFile         string  `mapstructure:"output_file"`
	Language           string  `mapstructure:"language"`
	ModelName          string  `mapstructure:"model_name"`
	PromptTemplate     string  `mapstructure:"prompt_template"`
	MinParagraphLength int     `mapstructure:"min_paragraph_length"`
	MaxParagraphLength int     `mapstructure:"max_paragraph_length"`
	InputTokensLimit   int     `mapstructure:"input_tokens_limit"`
	Temperature        float64 `mapstructure:"temperature"`
	RepetitionPenalty  float64 `mapstructure:"repetition_penalty"`
}

func (c Config) Validate() error {
	if _, err := prompts.FormatText(c.Model.PromptTemplate); err != nil {
		return fmt.Errorf("model.prompt_template: %w", err)
	}
	if c.Model.Temperature < 0 || c.Model.TopP < 0 || c.Model.TopK < 0 || c.Model.RepetitionPenalty < 0 {
		return errors.New("model generation parameters must be >= 0")
	}
	return nil
}

func (c SummarizeConfig) Validate() error {
	if c.InputFile == "" {
		return errors.New("missing --input-file")
	}
	if !strings.HasSuffix(c.InputFile, ".txt") {
		return errors.New("--input-file must be a .txt file")
	}
	if c.OutputFile == "" {
		return errors.New("missing --output-file")
	}
	if c.ModelName == "" {
		return errors.New("missing --model-name")
	}
	if c.MinParagraphLength < 0 || c.MaxParagraphLength <= 0 {
		return errors.New("paragraph lengths must be >= 0 (max > 0)")
	}
	if c.MinParagraphLength > c.MaxParagraphLength {
		return errors.New("min-paragraph-length must not exceed max-paragraph-length")
	}
	if c.InputTokensLimit <= 0 {
		return errors.New("input-tokens-limit must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	params := provider.DefaultGenerationParams()
	return Config{
		LogLevel:     "info",
		LogFormat:    "text",
		LocalBaseURL: "http://127.0.0.1:8000/v1/",
		Model: ModelConfig{
			Name:              tale.DefaultSettings().ModelName,
			PromptTemplate:    prompts.DefaultFormat,
			Temperature:       params.Temperature,
			TopP:              params.TopP,
			TopK:              params.TopK,
			RepetitionPenalty: params.RepetitionPenalty,
			MaxTokens:         params.MaxTokens,
		},
		Server: ServerConfig{
			Addr:     "0.0.0.0:8080",
			SavesDir: filepath.FromSlash("saves"),
		},
		Summarize: SummarizeConfig{
			Language:           "english",
			PromptTemplate:     prompts.FormatOpenAI,
			MinParagraphLength: 400,
			MaxParagraphLength: 1000,
			InputTokensLimit:   tale.DefaultInputTokensLimit,
			Temperature:        0.3,
			RepetitionPenalty:  1.25,
		},
	}
}

// setDefaults registers every key so environment variables can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("openai_api_key", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("local_base_url", d.LocalBaseURL)
	v.SetDefault("local_models", d.LocalModels)

	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.prompt_template", d.Model.PromptTemplate)
	v.SetDefault("model.embedder_name", d.Model.EmbedderName)
	v.SetDefault("model.temperature", d.Model.Temperature)
	v.SetDefault("model.top_p", d.Model.TopP)
	v.SetDefault("model.top_k", d.Model.TopK)
	v.SetDefault("model.repetition_penalty", d.Model.RepetitionPenalty)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.saves_dir", d.Server.SavesDir)

	v.SetDefault("summarize.input_file", "")
	v.SetDefault("summarize.output_file", "")
	v.SetDefault("summarize.language", d.Summarize.Language)
	v.SetDefault("summarize.model_name", "")
	v.SetDefault("summarize.prompt_template", d.Summarize.PromptTemplate)
	v.SetDefault("summarize.min_paragraph_length", d.Summarize.MinParagraphLength)
	v.SetDefault("summarize.max_paragraph_length", d.Summarize.MaxParagraphLength)
	v.SetDefault("summarize.input_tokens_limit", d.Summarize.InputTokensLimit)
	v.SetDefault("summarize.temperature", d.Summarize.Temperature)
	v.SetDefault("summarize.repetition_penalty", d.Summarize.RepetitionPenalty)
}

// loadConfig merges defaults, an optional YAML file, a .env file and TALE_* environment
// variables, in increasing priority. Flags bound to v take precedence over all of them.
func loadConfig(v *viper.Viper, path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.SetEnvPrefix("TALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, defaultConfig())

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.AnthropicAPIKey == "" {
		cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	cfg.Server.SavesDir = filepath.Clean(cfg.Server.SavesDir)
	return cfg, nil
}

// settings builds the default interactive model settings.
func (c Config) settings() tale.Settings {
	return tale.Settings{
		ModelName:      c.Model.Name,
		PromptTemplate: c.Model.PromptTemplate,
		EmbedderName:   c.Model.EmbedderName,
		GenerationParams: provider.GenerationParams{
			Temperature:       c.Model.Temperature,
			TopP:              c.Model.TopP,
			TopK:              c.Model.TopK,
			RepetitionPenalty: c.Model.RepetitionPenalty,
			MaxTokens:         c.Model.MaxTokens,
		},
	}
}

func (c Config) summarizeSettings() tale.Settings {
	s := c.settings()
	s.ModelName = c.Summarize.ModelName
	s.PromptTemplate = c.Summarize.PromptTemplate
	s.EmbedderName = ""
	s.GenerationParams.Temperature = c.Summarize.Temperature
	s.GenerationParams.RepetitionPenalty = c.Summarize.RepetitionPenalty
	return s
}
