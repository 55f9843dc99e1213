package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/textdetector/internal/artifact"
	"github.com/zombar/textdetector/internal/config"
	"github.com/zombar/textdetector/internal/database"
)

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv("CORPUS_PATH", "")
	t.Setenv("ARTIFACT_DIR", "")
	t.Setenv("DB_PATH", "")
	t.Setenv("TRAIN_CONFIG", "")

	cfg, err := parseConfig(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultTrainConfig(), cfg)
}

func TestParseConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
corpus_path: from-file.csv
artifact_dir: file-artifacts
seed: 7
vectorizer:
  max_features: 500
`), 0o644))

	t.Setenv("TRAIN_CONFIG", "")
	t.Setenv("CORPUS_PATH", "")
	t.Setenv("ARTIFACT_DIR", "env-artifacts")
	t.Setenv("DB_PATH", "")

	cfg, err := parseConfig([]string{"-config", path, "-seed", "9"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "from-file.csv", cfg.CorpusPath, "file overrides default")
	assert.Equal(t, "env-artifacts", cfg.ArtifactDir, "env overrides file")
	assert.Equal(t, int64(9), cfg.Seed, "flag overrides file")
	assert.Equal(t, 500, cfg.Vectorizer.MaxFeatures, "unset flag keeps file value")
}

func TestParseConfigBadFile(t *testing.T) {
	_, err := parseConfig([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, io.Discard)
	assert.Error(t, err)
}

func TestParseConfigUnknownFlag(t *testing.T) {
	_, err := parseConfig([]string{"-nope"}, io.Discard)
	assert.Error(t, err)
}

const trainCorpus = `Human_Content,AI_Content
lol my dog ate my homework again,It is important to note that results may vary.
omg cant believe this happened today!!,"In conclusion, the approach demonstrates clear benefits."
ugh traffic was awful late again,"Furthermore, it is essential to consider the implications."
best pizza ever no regrets,"Overall, this analysis provides a comprehensive overview."
`

func TestRunRecordsTrainingRun(t *testing.T) {
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.csv")
	require.NoError(t, os.WriteFile(corpusPath, []byte(trainCorpus), 0o644))
	artifactDir := filepath.Join(dir, "artifacts")
	dbPath := filepath.Join(dir, "runs.db")

	t.Setenv("TRAIN_CONFIG", "")
	t.Setenv("CORPUS_PATH", "")
	t.Setenv("ARTIFACT_DIR", "")
	t.Setenv("DB_PATH", "")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(logger, []string{"-corpus", corpusPath, "-artifacts", artifactDir, "-db", dbPath})
	require.NoError(t, err)

	_, err = artifact.Load(artifactDir)
	require.NoError(t, err)

	db, err := database.New(dbPath)
	require.NoError(t, err)
	defer db.Close()

	runs, err := db.ListTrainingRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, corpusPath, runs[0].CorpusPath)
	assert.Equal(t, 8, runs[0].Samples)
}

func TestRunFailsOnMissingCorpus(t *testing.T) {
	t.Setenv("TRAIN_CONFIG", "")
	t.Setenv("CORPUS_PATH", "")
	t.Setenv("ARTIFACT_DIR", "")
	t.Setenv("DB_PATH", "")

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(logger, []string{"-corpus", filepath.Join(dir, "missing.csv"), "-artifacts", filepath.Join(dir, "out")})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "out"))
	assert.True(t, os.IsNotExist(statErr), "no artifact directory on failure")
}

func TestRunChecksDatabaseBeforePublishing(t *testing.T) {
	t.Setenv("TRAIN_CONFIG", "")
	t.Setenv("CORPUS_PATH", "")
	t.Setenv("ARTIFACT_DIR", "")
	t.Setenv("DB_PATH", "")

	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.csv")
	require.NoError(t, os.WriteFile(corpusPath, []byte(trainCorpus), 0o644))
	// a regular file cannot hold a database directory
	notADir := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o644))
	artifactDir := filepath.Join(dir, "artifacts")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(logger, []string{
		"-corpus", corpusPath,
		"-artifacts", artifactDir,
		"-db", filepath.Join(notADir, "runs.db"),
	})
	require.Error(t, err)

	_, statErr := os.Stat(artifactDir)
	assert.True(t, os.IsNotExist(statErr), "no model published when the run cannot be recorded")
}

func TestUsageDescribesInputs(t *testing.T) {
	var out strings.Builder
	_, err := parseConfig([]string{"-h"}, &out)
	assert.ErrorIs(t, err, flag.ErrHelp)

	usage := out.String()
	assert.Contains(t, usage, "Human_Content")
	assert.Contains(t, usage, "AI_Content")
	assert.Contains(t, usage, "TOML")
}
