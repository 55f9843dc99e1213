package trainer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/textdetector/internal/artifact"
	"github.com/zombar/textdetector/internal/balancer"
	"github.com/zombar/textdetector/internal/config"
	"github.com/zombar/textdetector/internal/corpus"
	"github.com/zombar/textdetector/internal/features"
)

const smallCorpus = `Human_Content,AI_Content
lol my dog ate my homework again,It is important to note that results may vary.
omg cant believe this happened today!!,"In conclusion, the approach demonstrates clear benefits."
ugh traffic was awful late again 😩,"Furthermore, it is essential to consider the implications."
best pizza ever no regrets,"Overall, this analysis provides a comprehensive overview."
my cat knocked over my coffee AGAIN,
haha that movie was so bad it was good,
`

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T, corpusPath string) config.TrainConfig {
	t.Helper()
	cfg := config.DefaultTrainConfig()
	cfg.CorpusPath = corpusPath
	cfg.ArtifactDir = filepath.Join(t.TempDir(), "artifacts")
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunWritesArtifact(t *testing.T) {
	cfg := testConfig(t, writeCorpus(t, smallCorpus))

	res, err := Run(context.Background(), cfg, quietLogger())
	require.NoError(t, err)

	// 6 human rows, 4 ai rows oversampled to 6
	assert.Equal(t, 12, res.Run.Samples)
	assert.Equal(t, 2, res.Run.TestSize)
	assert.Equal(t, 10, res.Run.TrainSize)
	assert.Equal(t, 2, res.Report.Total)
	assert.NotEmpty(t, res.Run.ID)
	assert.False(t, res.Run.CompletedAt.Before(res.Run.StartedAt))

	loaded, err := artifact.Load(cfg.ArtifactDir)
	require.NoError(t, err)
	assert.Equal(t, features.Dimension(res.Run.VocabularySize), loaded.Dimension())
	assert.Equal(t, res.Artifact.Model.Weights, loaded.Model.Weights)
}

func TestRunDeterministic(t *testing.T) {
	path := writeCorpus(t, smallCorpus)

	first, err := Run(context.Background(), testConfig(t, path), quietLogger())
	require.NoError(t, err)
	second, err := Run(context.Background(), testConfig(t, path), quietLogger())
	require.NoError(t, err)

	assert.Equal(t, first.Artifact.Model.Weights, second.Artifact.Model.Weights)
	assert.Equal(t, first.Artifact.Model.Bias, second.Artifact.Model.Bias)
	assert.Equal(t, first.Report, second.Report)
}

func TestRunEmptyClassWritesNothing(t *testing.T) {
	content := "Human_Content,AI_Content\nfirst human text,\nsecond human text,\n"
	cfg := testConfig(t, writeCorpus(t, content))

	_, err := Run(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, balancer.ErrEmptyClass), "got %v", err)

	_, statErr := os.Stat(cfg.ArtifactDir)
	assert.True(t, os.IsNotExist(statErr), "artifact dir must not be created")
}

func TestRunMissingColumns(t *testing.T) {
	cfg := testConfig(t, writeCorpus(t, "text,label\nhello,human\n"))

	_, err := Run(context.Background(), cfg, quietLogger())
	assert.True(t, errors.Is(err, corpus.ErrMissingColumns), "got %v", err)
}

func TestRunTooFewSamples(t *testing.T) {
	content := "Human_Content,AI_Content\nonly one human,only one ai\n"
	cfg := testConfig(t, writeCorpus(t, content))

	_, err := Run(context.Background(), cfg, quietLogger())
	assert.True(t, errors.Is(err, balancer.ErrTooFewSamples), "got %v", err)
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := testConfig(t, writeCorpus(t, smallCorpus))
	cfg.TestFraction = 0

	_, err := Run(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "test_fraction"))
}
