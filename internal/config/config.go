// Package config holds training settings and the environment helpers shared
// by the binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/zombar/textdetector/internal/balancer"
	"github.com/zombar/textdetector/internal/classifier"
	"github.com/zombar/textdetector/internal/vectorizer"
)

// VectorizerConfig mirrors vectorizer.Options
type VectorizerConfig struct {
	MaxFeatures int `yaml:"max_features" toml:"max_features"`
	NgramMin    int `yaml:"ngram_min" toml:"ngram_min"`
	NgramMax    int `yaml:"ngram_max" toml:"ngram_max"`
}

// ClassifierConfig mirrors classifier.Options
type ClassifierConfig struct {
	C         float64 `yaml:"c" toml:"c"`
	Tolerance float64 `yaml:"tolerance" toml:"tolerance"`
	MaxIter   int     `yaml:"max_iter" toml:"max_iter"`
}

// TrainConfig configures one training run
type TrainConfig struct {
	CorpusPath   string           `yaml:"corpus_path" toml:"corpus_path"`
	ArtifactDir  string           `yaml:"artifact_dir" toml:"artifact_dir"`
	DBPath       string           `yaml:"db_path" toml:"db_path"`
	Seed         int64            `yaml:"seed" toml:"seed"`
	TestFraction float64          `yaml:"test_fraction" toml:"test_fraction"`
	Vectorizer   VectorizerConfig `yaml:"vectorizer" toml:"vectorizer"`
	Classifier   ClassifierConfig `yaml:"classifier" toml:"classifier"`
}

// DefaultTrainConfig returns the settings used when nothing is overridden
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		CorpusPath:   "RF_data.csv",
		ArtifactDir:  "artifacts",
		Seed:         balancer.DefaultSeed,
		TestFraction: balancer.DefaultTestFraction,
		Vectorizer: VectorizerConfig{
			MaxFeatures: vectorizer.DefaultMaxFeatures,
			NgramMin:    vectorizer.DefaultNgramMin,
			NgramMax:    vectorizer.DefaultNgramMax,
		},
		Classifier: ClassifierConfig{
			C:         classifier.DefaultC,
			Tolerance: classifier.DefaultTolerance,
			MaxIter:   classifier.DefaultMaxIter,
		},
	}
}

// LoadTrainConfig reads a YAML or TOML file on top of the defaults, picking
// the format from the extension. An empty path returns the defaults.
func LoadTrainConfig(path string) (TrainConfig, error) {
	cfg := DefaultTrainConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with
func (c TrainConfig) Validate() error {
	var errs []error
	if c.CorpusPath == "" {
		errs = append(errs, errors.New("corpus_path is required"))
	}
	if c.ArtifactDir == "" {
		errs = append(errs, errors.New("artifact_dir is required"))
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("test_fraction must be in (0, 1), got %v", c.TestFraction))
	}
	if c.Vectorizer.MaxFeatures < 1 {
		errs = append(errs, fmt.Errorf("vectorizer.max_features must be positive, got %d", c.Vectorizer.MaxFeatures))
	}
	if c.Vectorizer.NgramMin < 1 || c.Vectorizer.NgramMax < c.Vectorizer.NgramMin {
		errs = append(errs, fmt.Errorf("invalid ngram range [%d, %d]", c.Vectorizer.NgramMin, c.Vectorizer.NgramMax))
	}
	if c.Classifier.C <= 0 {
		errs = append(errs, fmt.Errorf("classifier.c must be positive, got %v", c.Classifier.C))
	}
	return errors.Join(errs...)
}

// VectorizerOptions converts the vectorizer section
func (c TrainConfig) VectorizerOptions() vectorizer.Options {
	return vectorizer.Options{
		MaxFeatures: c.Vectorizer.MaxFeatures,
		NgramMin:    c.Vectorizer.NgramMin,
		NgramMax:    c.Vectorizer.NgramMax,
	}
}

// ClassifierOptions converts the classifier section
func (c TrainConfig) ClassifierOptions() classifier.Options {
	return classifier.Options{
		C:         c.Classifier.C,
		Tolerance: c.Classifier.Tolerance,
		MaxIter:   c.Classifier.MaxIter,
		Seed:      c.Seed,
	}
}

// GetEnv retrieves an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvBool retrieves a boolean environment variable or returns a default value
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// GetEnvInt retrieves an integer environment variable or returns a default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
