package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/timvw/reverse-turing/internal/backend"
	"github.com/timvw/reverse-turing/internal/config"
	"github.com/timvw/reverse-turing/internal/console"
	"github.com/timvw/reverse-turing/internal/conversation"
	"github.com/timvw/reverse-turing/internal/model"
	telem "github.com/timvw/reverse-turing/internal/otel"
	"github.com/timvw/reverse-turing/internal/transcript"
)

var (
	// Global flags.
	flagTest        bool
	flagEvasion     bool
	flagRounds      int
	flagMaxTokens   int64
	flagTimeout     string
	flagErrorPolicy string
	flagLogDir      string
	flagLogFormat   string
	flagTheme       string
	flagEnvFile     string
	flagVerbose     bool

	// Single conversation.
	flagInterrogator string
	flagInterrogated string
)

var rootCmd = &cobra.Command{
	Use:   "reverse-turing",
	Short: "Run a reverse Turing test between two language models, or a model and you",
	Long: `reverse-turing lets one participant interrogate another for a fixed number
of rounds and then asks the interrogator whether it was talking to a human
or an AI.

Participants are given as <provider>::<api-key> (anthropic, claude, openai,
gemini, llama) or "human" for the interrogated side. Without an inline key
the provider's usual environment variable is used.

Every conversation is written to the log directory as a transcript.
Configuration is loaded from .reverse-turing.yaml or environment variables.`,
	Example: `  reverse-turing --interrogator anthropic --interrogated openai --test
  reverse-turing --interrogator gemini::$KEY --interrogated human --rounds 3`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(flagVerbose)
		return loadEnvFile(flagEnvFile)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingle(cmd)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flagTest, "test", false, "use the cheaper test-tier model of each provider")
	pf.BoolVar(&flagEvasion, "evasion", false, "tell the interrogated model to actively pass as human")
	pf.IntVar(&flagRounds, "rounds", 0, "number of question/answer rounds (default: 5)")
	pf.Int64Var(&flagMaxTokens, "max-tokens", 0, "max tokens per model reply (default: 512)")
	pf.StringVar(&flagTimeout, "timeout", "", `timeout per model call, e.g. "30s"; "off" disables (default: 60s)`)
	pf.StringVar(&flagErrorPolicy, "error-policy", "", "on a failed turn: degrade (continue with an error reply) or fail-fast")
	pf.StringVar(&flagLogDir, "log-dir", "", "directory for transcripts (default: logs)")
	pf.StringVar(&flagLogFormat, "log-format", "", "transcript format: json, yaml (default: json)")
	pf.StringVar(&flagTheme, "theme", "dark", "color theme: dark, light")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "load environment variables from this file if it exists")
	pf.BoolVar(&flagVerbose, "verbose", false, "enable debug logging")

	rootCmd.Flags().StringVar(&flagInterrogator, "interrogator", "", "interrogator participant, e.g. anthropic or openai::sk-...")
	rootCmd.Flags().StringVar(&flagInterrogated, "interrogated", "", `interrogated participant, e.g. gemini or "human"`)
	_ = rootCmd.MarkFlagRequired("interrogator")
	_ = rootCmd.MarkFlagRequired("interrogated")
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadEnvFile loads path into the environment. A missing file is not an
// error; variables already set are kept.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	slog.Debug("loaded environment file", "path", path)
	return nil
}

// runtime is everything a conversation needs besides its participants.
type runtime struct {
	cfg     *config.Config
	policy  backend.ErrorPolicy
	store   *transcript.Store
	metrics *telem.Metrics
	printer *console.Printer
	asker   backend.Asker
	tracer  trace.Tracer
}

// loadConfig resolves defaults, file, env, then flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ConfigFile != "" {
		slog.Info("config loaded", "path", cfg.ConfigFile)
	}

	flags := cmd.Flags()
	if flags.Changed("rounds") {
		cfg.Rounds = flagRounds
	}
	if flags.Changed("max-tokens") {
		cfg.MaxTokens = flagMaxTokens
	}
	if flags.Changed("timeout") {
		cfg.Timeout = flagTimeout
	}
	if flags.Changed("error-policy") {
		cfg.ErrorPolicy = flagErrorPolicy
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = flagLogDir
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// setup loads configuration and starts telemetry. The returned function
// flushes telemetry and must be called when done.
func setup(ctx context.Context, cmd *cobra.Command) (*runtime, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	policy, err := backend.ParseErrorPolicy(cfg.ErrorPolicy)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	format, err := transcript.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	store, err := transcript.NewStore(cfg.LogDir, format)
	if err != nil {
		return nil, nil, err
	}

	telem.Version = Version
	tel, err := telem.Init(ctx, telem.Config{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		slog.Warn("otel init failed", "error", err)
	}

	rt := &runtime{
		cfg:     cfg,
		policy:  policy,
		store:   store,
		printer: console.NewPrinter(os.Stdout, console.ThemeByName(flagTheme)),
		asker:   console.NewPrompter(os.Stdin, os.Stdout, console.ThemeByName(flagTheme)),
		tracer:  noop.NewTracerProvider().Tracer(""),
	}
	cleanup := func() {}
	if tel != nil {
		rt.metrics = tel.Metrics
		rt.tracer = tel.Tracer
		cleanup = func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				slog.Warn("otel shutdown failed", "error", err)
			}
		}
	}
	return rt, cleanup, nil
}

func runSingle(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	interrogator, err := backend.ParseSelector(flagInterrogator)
	if err != nil {
		return fmt.Errorf("--interrogator: %w", err)
	}
	interrogated, err := backend.ParseSelector(flagInterrogated)
	if err != nil {
		return fmt.Errorf("--interrogated: %w", err)
	}

	rt, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = rt.converse(ctx, interrogator, interrogated, rt.printer)
	return err
}

// converse builds both participants, runs one conversation and saves its
// transcript. It returns the transcript path.
func (rt *runtime) converse(ctx context.Context, interrogatorSel, interrogatedSel backend.Selector, printer *console.Printer) (string, error) {
	interrogator, err := backend.New(ctx, interrogatorSel, rt.options(model.RoleInterrogator))
	if err != nil {
		return "", err
	}
	interrogated, err := backend.New(ctx, interrogatedSel, rt.options(model.RoleInterrogated))
	if err != nil {
		return "", err
	}

	id := transcript.NewID()
	orch, err := conversation.New(interrogator, interrogated, conversation.Config{
		Rounds:  rt.cfg.Rounds,
		ID:      id,
		Metrics: rt.metrics,
	})
	if err != nil {
		return "", err
	}
	orch.OnQuestion = printer.Question
	orch.OnRound = printer.Round
	orch.OnVerdict = printer.Verdict

	slog.Debug("conversation starting", "id", id,
		"interrogator", describe(interrogator), "interrogated", describe(interrogated), "rounds", rt.cfg.Rounds)
	printer.Header(describe(interrogator), describe(interrogated), rt.cfg.Rounds)

	started := time.Now()
	result, err := orch.Run(ctx)
	if err != nil {
		printer.Failed(err)
		return "", err
	}

	rec := transcript.Assemble(id, started, transcript.Participants{
		Interrogator:      interrogator.Provider(),
		InterrogatorModel: interrogator.Model(),
		Interrogated:      interrogated.Provider(),
		InterrogatedModel: interrogated.Model(),
	}, result)
	path, err := rt.store.Save(rec)
	if err != nil {
		return "", err
	}
	slog.Info("transcript saved", "id", id, "path", path, "duration", time.Since(started).Round(time.Millisecond))
	printer.Saved(path)
	return path, nil
}

func (rt *runtime) options(role model.Role) backend.Options {
	providers := make(map[string]backend.ProviderSettings, len(rt.cfg.Providers))
	for name, p := range rt.cfg.Providers {
		providers[name] = backend.ProviderSettings{
			Model:     p.Model,
			TestModel: p.TestModel,
			BaseURL:   p.BaseURL,
		}
	}
	return backend.Options{
		Role:      role,
		TestMode:  flagTest,
		Evasion:   flagEvasion,
		Rounds:    rt.cfg.Rounds,
		MaxTokens: rt.cfg.MaxTokens,
		Timeout:   rt.cfg.TimeoutDuration,
		Policy:    rt.policy,
		Providers: providers,
		Asker:     rt.asker,
		Metrics:   rt.metrics,
	}
}

// describe returns "provider (model)" or just the provider.
func describe(b backend.Backend) string {
	return participant(b.Provider(), b.Model())
}

// selectorNames joins selector provider names for log output.
func selectorNames(sels []backend.Selector) string {
	names := make([]string, len(sels))
	for i, s := range sels {
		names[i] = s.String()
	}
	return strings.Join(names, ",")
}
