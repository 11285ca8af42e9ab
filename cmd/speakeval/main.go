package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/speakeval/internal/catalog"
	"github.com/pavelanni/speakeval/internal/eval"
	"github.com/pavelanni/speakeval/internal/handler"
	appI18n "github.com/pavelanni/speakeval/internal/i18n"
	"github.com/pavelanni/speakeval/internal/model"
	"github.com/pavelanni/speakeval/internal/session"
	"github.com/pavelanni/speakeval/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "speakeval",
		Short: "Spoken-English assessment server scored by AI",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `speakeval --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP assessment server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "speakeval.db", "SQLite database path")
	f.String("audio-dir", "audio", "Directory for recorded submissions")
	f.StringP("prompts", "p", "", "Path to prompts JSON file (empty = built-in)")
	f.String("openai-url", "", "OpenAI-compatible API base URL (empty = api.openai.com)")
	f.String("openai-key", "", "API key (or set SPEAKEVAL_OPENAI_KEY)")
	f.String("transcribe-model", "whisper-1", "Speech-to-text model name")
	f.String("eval-model", "gpt-4o-mini", "Evaluation model name")
	f.String("feedback-lang", "id", "Language for AI feedback (en, id, ru)")
	f.String("failure-policy", string(model.PolicyAbsorb), "Evaluation failure policy (absorb, retry, propagate)")
	f.Duration("eval-timeout", 60*time.Second, "Timeout per external evaluator call")
	f.StringP("lang", "l", "en", "API message language (en, id)")
	f.String("review-password", "", "Password guarding the scores endpoints (empty = open)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export finalized assessment results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "speakeval.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SPEAKEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("speakeval")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/speakeval")
	v.AddConfigPath("/etc/speakeval")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	cat, err := loadCatalog(v.GetString("prompts"))
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	slog.Info("prompt catalog loaded", "count", cat.Count())

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	apiKey := v.GetString("openai-key")
	if apiKey == "" {
		return fmt.Errorf("API key is required: set --openai-key flag or SPEAKEVAL_OPENAI_KEY env var")
	}

	policy := strings.ToLower(strings.TrimSpace(v.GetString("failure-policy")))
	if !model.IsValidPolicy(policy) {
		slog.Warn("invalid failure-policy, using absorb", "policy", policy)
		policy = string(model.PolicyAbsorb)
	}

	evaluator := eval.New(
		v.GetString("openai-url"),
		apiKey,
		v.GetString("transcribe-model"),
		v.GetString("eval-model"),
		v.GetString("feedback-lang"),
		eval.WithPolicy(model.FailurePolicy(policy)),
		eval.WithTimeout(v.GetDuration("eval-timeout")),
	)
	if err := evaluator.Ping(context.Background()); err != nil {
		return fmt.Errorf("evaluator health check: %w", err)
	}
	slog.Info("evaluator endpoint OK",
		"transcribe_model", v.GetString("transcribe-model"),
		"eval_model", v.GetString("eval-model"),
	)

	cfg := model.AssessmentConfig{
		AudioDir:      v.GetString("audio-dir"),
		FeedbackLang:  v.GetString("feedback-lang"),
		SecureCookies: v.GetBool("secure-cookies"),
	}
	if pw := v.GetString("review-password"); pw != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash review password: %w", err)
		}
		cfg.ReviewPassword = string(hash)
	}

	h, err := handler.New(db, session.NewManager(cat.Count()), cat, evaluator, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"audio_dir", cfg.AudioDir,
		"prompts", cat.Count(),
		"feedback_lang", cfg.FeedbackLang,
		"failure_policy", policy,
		"lang", lang,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAll()
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	// All sessions share one catalog; take the count from the fullest run.
	numPrompts := 0
	for _, r := range results {
		if len(r.Questions) > numPrompts {
			numPrompts = len(r.Questions)
		}
	}

	export := model.ResultsExport{
		ExportedAt: time.Now(),
		NumPrompts: numPrompts,
		Results:    results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}
