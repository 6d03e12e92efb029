package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vbonduro/calscan/internal/ai"
	claudeai "github.com/vbonduro/calscan/internal/ai/claude"
	"github.com/vbonduro/calscan/internal/ai/gemini"
	"github.com/vbonduro/calscan/internal/ai/genaisdk"
	ollamaai "github.com/vbonduro/calscan/internal/ai/ollama"
	"github.com/vbonduro/calscan/internal/config"
	"github.com/vbonduro/calscan/internal/db"
	"github.com/vbonduro/calscan/internal/logging"
	"github.com/vbonduro/calscan/internal/scanner"
	"github.com/vbonduro/calscan/internal/session"
	"github.com/vbonduro/calscan/internal/store"
	"github.com/vbonduro/calscan/internal/web"
	"github.com/vbonduro/calscan/internal/web/templates"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to read .env: %v", err)
	}

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "calscan",
		Short: "Food photo calorie scanner",
		Long: `calscan sends a food photo to a generative model and returns a Polish
description of the dish with a calorie estimate, then can follow up with a
recipe or a healthier alternative.

Examples:
  calscan serve                         # Start the web UI
  calscan scan obiad.jpg                # Analyze one photo
  calscan scan obiad.jpg -f recipe      # Analyze, then print a recipe`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON); environment variables override it")

	root.AddCommand(newServeCommand(&cfgFile), newScanCommand(&cfgFile))
	return root
}

// app holds everything built from configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	gen      ai.Generator
	database *sql.DB
	scans    *store.ScanStore
	cleanup  func()
}

func setup(ctx context.Context, cfgFile string) (*app, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	gen, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, gen: gen, cleanup: cleanup}
	if cfg.DBPath != "" {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.database = database
		a.scans = store.NewScanStore(database)
	} else {
		logger.Info("DB_PATH is empty, history disabled")
	}
	return a, nil
}

func (a *app) close() {
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			a.logger.Error("failed to close database", "error", err)
		}
	}
	a.cleanup()
}

// recorder returns the history store as a scanner.Recorder, or nil when
// history is disabled.
func (a *app) recorder() scanner.Recorder {
	if a.scans == nil {
		return nil
	}
	return a.scans
}

func newServeCommand(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context(), *cfgFile)
			if err != nil {
				return err
			}
			defer a.close()

			registry := session.NewRegistry(a.cfg.SessionMax, a.cfg.SessionTTL, func() *scanner.Orchestrator {
				return scanner.NewOrchestrator(a.gen, a.recorder(), a.logger)
			}, a.logger)

			var server *web.Server
			if a.scans != nil {
				server = web.NewServer(registry, a.scans, templates.FS, a.logger)
			} else {
				server = web.NewServer(registry, nil, templates.FS, a.logger)
			}

			if err := server.ListenAndServe(a.cfg.ListenAddr); err != nil {
				a.logger.Error("server error", "error", err)
				return err
			}
			return nil
		},
	}
}

func newGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ai.Generator, error) {
	var gen ai.Generator
	switch cfg.AIBackend {
	case "claude":
		logger.Info("using Claude backend", "model", cfg.ClaudeModel)
		gen = claudeai.NewClaudeGenerator(cfg.ClaudeAPIKey, cfg.ClaudeModel, cfg.ClaudeBaseURL)
	case "ollama":
		logger.Info("using Ollama backend", "model", cfg.OllamaModel)
		gen = ollamaai.NewOllamaGenerator(cfg.OllamaHost, cfg.OllamaModel)
	case "genai":
		logger.Info("using Gemini SDK backend", "model", cfg.GeminiModel)
		sdk, err := genaisdk.NewSDKGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
		if err != nil {
			return nil, err
		}
		gen = sdk
	default:
		logger.Info("using Gemini backend", "model", cfg.GeminiModel)
		gen = gemini.NewGeminiGenerator(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
	}

	if cfg.BreakerFailures > 0 {
		gen = ai.NewBreaker(cfg.AIBackend, gen, cfg.BreakerFailures, cfg.BreakerCooldown, logger)
	}
	return gen, nil
}
