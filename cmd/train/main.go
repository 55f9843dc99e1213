package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zombar/textdetector/internal/config"
	"github.com/zombar/textdetector/internal/corpus"
	"github.com/zombar/textdetector/internal/database"
	"github.com/zombar/textdetector/internal/trainer"
	"github.com/zombar/textdetector/internal/tracing"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger, os.Args[1:]); err != nil {
		logger.Error("training failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, args []string) error {
	cfg, err := parseConfig(args, os.Stderr)
	if err != nil {
		return err
	}

	tp, err := tracing.InitTracer("textdetector-train")
	if err != nil {
		logger.Debug("tracing disabled", "reason", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The run history must be writable before a new model is published
	var db *database.DB
	if cfg.DBPath != "" {
		db, err = database.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	res, err := trainer.Run(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// The classification report goes to stdout for humans; logs stay on stderr
	fmt.Println(res.Report.String())

	if db == nil {
		return nil
	}
	if err := db.SaveTrainingRun(ctx, &res.Run); err != nil {
		return fmt.Errorf("failed to record training run: %w", err)
	}
	logger.Info("training run recorded", "run_id", res.Run.ID, "driver", db.Driver())
	return nil
}

// parseConfig layers defaults, the YAML or TOML file, environment variables and
// explicitly set flags, in increasing priority.
func parseConfig(args []string, output io.Writer) (config.TrainConfig, error) {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(output)
	def := config.DefaultTrainConfig()

	var (
		configPath   = fs.String("config", config.GetEnv("TRAIN_CONFIG", ""), "YAML or TOML training config, chosen by extension (env: TRAIN_CONFIG)")
		corpusPath   = fs.String("corpus", def.CorpusPath, "CSV corpus with "+corpus.HumanColumn+" and "+corpus.AIColumn+" columns (env: CORPUS_PATH)")
		artifactDir  = fs.String("artifacts", def.ArtifactDir, "Output directory for vectorizer.json and classifier.json (env: ARTIFACT_DIR)")
		dbPath       = fs.String("db", "", "SQLite path or Postgres DSN to record the run in (env: DB_PATH)")
		seed         = fs.Int64("seed", def.Seed, "Seed for oversampling and the split")
		testFraction = fs.Float64("test-fraction", def.TestFraction, "Share of each class held out for evaluation")
		maxFeatures  = fs.Int("max-features", def.Vectorizer.MaxFeatures, "Vocabulary size cap")
	)
	if err := fs.Parse(args); err != nil {
		return config.TrainConfig{}, err
	}

	cfg, err := config.LoadTrainConfig(*configPath)
	if err != nil {
		return cfg, err
	}

	cfg.CorpusPath = config.GetEnv("CORPUS_PATH", cfg.CorpusPath)
	cfg.ArtifactDir = config.GetEnv("ARTIFACT_DIR", cfg.ArtifactDir)
	cfg.DBPath = config.GetEnv("DB_PATH", cfg.DBPath)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "corpus":
			cfg.CorpusPath = *corpusPath
		case "artifacts":
			cfg.ArtifactDir = *artifactDir
		case "db":
			cfg.DBPath = *dbPath
		case "seed":
			cfg.Seed = *seed
		case "test-fraction":
			cfg.TestFraction = *testFraction
		case "max-features":
			cfg.Vectorizer.MaxFeatures = *maxFeatures
		}
	})
	return cfg, nil
}
