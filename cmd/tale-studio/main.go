package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theimaginaryfoundation/tale-studio/tale"
	"github.com/theimaginaryfoundation/tale-studio/tale/httpapi"
	"github.com/theimaginaryfoundation/tale-studio/tale/logger"
	"github.com/theimaginaryfoundation/tale-studio/tale/prompts"
	"github.com/theimaginaryfoundation/tale-studio/tale/provider"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the configuration shared by every subcommand.
type cli struct {
	v          *viper.Viper
	configPath string
	cfg        Config
}

func rootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:           "tale-studio",
		Short:         "Interactive story generation and book summarization",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (text, json)")
	_ = c.v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = c.v.BindPFlag("log_format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(summarizeCmd(c), serveCmd(c), modelsCmd(c))
	return root
}

func (c *cli) load() error {
	cfg, err := loadConfig(c.v, c.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	c.cfg = cfg
	return nil
}

func (c *cli) catalog() *provider.Catalog {
	return provider.NewCatalog(c.cfg.OpenAIAPIKey, c.cfg.AnthropicAPIKey, c.cfg.LocalModels)
}

func (c *cli) completer() provider.Completer {
	openAI := provider.NewOpenAI(c.cfg.OpenAIAPIKey)
	anthropic := provider.NewAnthropic(c.cfg.AnthropicAPIKey)
	local := provider.NewLocal(c.cfg.LocalBaseURL)
	return provider.Instrumented{Next: &provider.Router{OpenAI: openAI, Anthropic: anthropic, Local: local}}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func summarizeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a .txt book into a story snapshot (resumable)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := c.cfg.Summarize
			if err := sc.Validate(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			ctx = logger.WithContext(ctx, logger.RunIDKey, uuid.New().String())
			log := logger.FromContext(ctx)

			sm := &tale.Summarizer{
				Completer:  c.completer(),
				Prompts:    prompts.NewRegistry(),
				Settings:   c.cfg.summarizeSettings(),
				TokenLimit: sc.InputTokensLimit,
			}
			start := time.Now()
			log.Info("summarizing book", "input", sc.InputFile, "output", sc.OutputFile, "model", sc.ModelName)
			st, err := sm.SummarizeBook(ctx, tale.BookOptions{
				InputFile:          sc.InputFile,
				OutputFile:         sc.OutputFile,
				Language:           sc.Language,
				MinParagraphLength: sc.MinParagraphLength,
				MaxParagraphLength: sc.MaxParagraphLength,
			})
			if err != nil {
				return err
			}
			log.Info("book summarized",
				"name", st.Name,
				"paragraphs", len(st.Paragraphs),
				"l1_entries", len(st.L1Summaries),
				"chapters", len(st.L2Summaries),
				"elapsed", time.Since(start).Round(time.Second),
			)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("input-file", "", "book to summarize (.txt)")
	f.String("output-file", "", "story snapshot to write (and resume from)")
	f.String("language", "", "sentence splitting language")
	f.String("model-name", "", "model to summarize with")
	f.String("prompt-template", "", "instruction format or custom template containing {prompt}")
	f.Int("min-paragraph-length", 0, "merge paragraphs shorter than this many characters")
	f.Int("max-paragraph-length", 0, "split paragraphs longer than this many characters")
	f.Int("input-tokens-limit", 0, "token budget of one summarization window")
	for flag, key := range map[string]string{
		"input-file":           "summarize.input_file",
		"output-file":          "summarize.output_file",
		"language":             "summarize.language",
		"model-name":           "summarize.model_name",
		"prompt-template":      "summarize.prompt_template",
		"min-paragraph-length": "summarize.min_paragraph_length",
		"max-paragraph-length": "summarize.max_paragraph_length",
		"input-tokens-limit":   "summarize.input_tokens_limit",
	} {
		_ = c.v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func serveCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the story session API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.serve(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().String("saves-dir", "", "directory of saved story snapshots")
	_ = c.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = c.v.BindPFlag("server.saves_dir", cmd.Flags().Lookup("saves-dir"))
	return cmd
}

func (c *cli) server() *httpapi.Server {
	cat := c.catalog()
	w := &tale.Writer{
		Completer: c.completer(),
		Prompts:   prompts.NewRegistry(),
		Models:    cat,
	}
	if c.cfg.OpenAIAPIKey != "" {
		w.Embedder = provider.NewOpenAIEmbedder(c.cfg.OpenAIAPIKey)
	}
	return &httpapi.Server{
		Writer:   w,
		Catalog:  cat,
		SavesDir: c.cfg.Server.SavesDir,
		Defaults: c.cfg.settings(),
	}
}

func (c *cli) serve(ctx context.Context) error {
	log := logger.Default()
	if !strings.EqualFold(c.cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              c.cfg.Server.Addr,
		Handler:           httpapi.NewRouter(c.server()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "saves_dir", c.cfg.Server.SavesDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func modelsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available to the configured backends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			models, err := c.catalog().All(ctx, provider.Credentials{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range models {
				fmt.Fprintln(out, m)
			}
			return nil
		},
	}
}
