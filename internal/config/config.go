// Package config loads run settings for kin.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// KIN_ environment variables (a .env file in the working directory is read
// first). Command-line flags are applied last by the cmd package.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Benny93/kin-go/internal/ingestion"
	"github.com/Benny93/kin-go/internal/logger"
)

// ErrConfigNotFound is returned when an explicitly named config file does
// not exist.
var ErrConfigNotFound = errors.New("config file not found")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KIN_"

// Config holds all settings of a run.
type Config struct {
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Output     OutputConfig     `yaml:"output"`

	// Workers bounds per-chunk concurrency (default: number of CPUs).
	Workers int `yaml:"workers"`
}

// ChunkingConfig selects the chunk mode of each matcher.
type ChunkingConfig struct {
	Sequential string `yaml:"sequential"` // default: sentence
	Syntactic  string `yaml:"syntactic"`  // default: 100token
}

// ExtractionConfig toggles extraction behaviour.
type ExtractionConfig struct {
	Coref               bool `yaml:"coref"`                 // default: true
	SyntacticOnResolved bool `yaml:"syntactic_on_resolved"` // default: true
	CrossChunkLookback  bool `yaml:"cross_chunk_lookback"`
	DedupeRules         bool `yaml:"dedupe_rules"`
	ProperNounsOnly     bool `yaml:"proper_nouns_only"`
}

// OutputConfig controls what is written and where.
type OutputConfig struct {
	Dir    string `yaml:"dir"`    // default: .kin
	SQLite bool   `yaml:"sqlite"` // also write kin.db
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			Sequential: string(ingestion.ChunkSentence),
			Syntactic:  string(ingestion.Chunk100Token),
		},
		Extraction: ExtractionConfig{
			Coref:               true,
			SyntacticOnResolved: true,
		},
		Output:  OutputConfig{Dir: ".kin"},
		Workers: runtime.NumCPU(),
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment.
func Load(path string) (*Config, error) {
	LoadEnvFile()

	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile reads .env files into the process environment without
// overriding variables already set. Missing files are ignored.
func LoadEnvFile(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		logger.Debug("no .env file loaded", "err", err)
	}
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Chunking.Sequential = getEnv("SEQUENTIAL_MODE", c.Chunking.Sequential)
	c.Chunking.Syntactic = getEnv("SYNTACTIC_MODE", c.Chunking.Syntactic)

	c.Extraction.Coref = getEnvBool("COREF", c.Extraction.Coref)
	c.Extraction.SyntacticOnResolved = getEnvBool("SYNTACTIC_ON_RESOLVED", c.Extraction.SyntacticOnResolved)
	c.Extraction.CrossChunkLookback = getEnvBool("CROSS_CHUNK_LOOKBACK", c.Extraction.CrossChunkLookback)
	c.Extraction.DedupeRules = getEnvBool("DEDUPE_RULES", c.Extraction.DedupeRules)
	c.Extraction.ProperNounsOnly = getEnvBool("PROPER_NOUNS_ONLY", c.Extraction.ProperNounsOnly)

	c.Output.Dir = getEnv("OUT", c.Output.Dir)
	c.Output.SQLite = getEnvBool("SQLITE", c.Output.SQLite)

	c.Workers = getEnvInt("WORKERS", c.Workers)
}

// Validate checks chunk modes and numeric bounds.
func (c *Config) Validate() error {
	if _, err := ingestion.ParseChunkMode(c.Chunking.Sequential); err != nil {
		return fmt.Errorf("chunking.sequential: %w", err)
	}
	if _, err := ingestion.ParseChunkMode(c.Chunking.Syntactic); err != nil {
		return fmt.Errorf("chunking.syntactic: %w", err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir must not be empty")
	}
	return nil
}

// PipelineOptions converts the settings into pipeline options. The config
// must have passed Validate.
func (c *Config) PipelineOptions() ingestion.Options {
	seq, _ := ingestion.ParseChunkMode(c.Chunking.Sequential)
	syn, _ := ingestion.ParseChunkMode(c.Chunking.Syntactic)
	return ingestion.Options{
		SequentialMode:      seq,
		SyntacticMode:       syn,
		SyntacticOnResolved: c.Extraction.SyntacticOnResolved,
		Coref:               c.Extraction.Coref,
		CrossChunkLookback:  c.Extraction.CrossChunkLookback,
		DedupeRules:         c.Extraction.DedupeRules,
		ProperNounsOnly:     c.Extraction.ProperNounsOnly,
		Workers:             c.Workers,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt keeps the default when the variable does not parse.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logger.Warn("ignoring invalid integer", "var", EnvPrefix+key, "value", value)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	logger.Warn("ignoring invalid boolean", "var", EnvPrefix+key, "value", value)
	return defaultValue
}
