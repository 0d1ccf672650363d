// Package app loads configuration and wires the pipeline for local runs
// and for the Cloud Functions deployment.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/narrator"
	"github.com/spf13/viper"
)

// Config keys are the environment variable names, lowercased.
type Config struct {
	ProjectID           string `mapstructure:"project_id"`
	VertexAIRegion      string `mapstructure:"vertex_ai_region"`
	FirestoreCollection string `mapstructure:"firestore_collection"`
	FirestoreDatabase   string `mapstructure:"firestore_database"`
	WorkflowID          string `mapstructure:"workflow_id"`
	WorkflowLocation    string `mapstructure:"workflow_location"`
	ArtifactBucket      string `mapstructure:"artifact_bucket"`

	NarratorBackend     string        `mapstructure:"narrator_backend"`
	OpenAIAPIKey        string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL       string        `mapstructure:"openai_base_url"`
	NarratorModel       string        `mapstructure:"narrator_model"`
	NarratorMaxTokens   int           `mapstructure:"narrator_max_tokens"`
	NarratorTemperature float64       `mapstructure:"narrator_temperature"`
	NarratorPacing      time.Duration `mapstructure:"narrator_pacing"`

	DataDir      string `mapstructure:"data_dir"`
	DatabasePath string `mapstructure:"database_path"`
	Workers      int    `mapstructure:"workers"`
}

const (
	BackendOpenAI = "openai"
	BackendVertex = "vertex"
	BackendEcho   = "echo"
)

// NewViper returns a viper instance with every key defaulted and bound to
// its environment variable.
func NewViper() *viper.Viper {
	v := viper.New()
	d := narrator.DefaultConfig()
	v.SetDefault("project_id", "")
	v.SetDefault("vertex_ai_region", "us-central1")
	v.SetDefault("firestore_collection", "projects")
	v.SetDefault("firestore_database", "")
	v.SetDefault("workflow_id", "catstory-stage-runner")
	v.SetDefault("workflow_location", "us-central1")
	v.SetDefault("artifact_bucket", "")
	v.SetDefault("narrator_backend", BackendOpenAI)
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("narrator_model", "")
	v.SetDefault("narrator_max_tokens", d.MaxTokens)
	v.SetDefault("narrator_temperature", d.Temperature)
	v.SetDefault("narrator_pacing", d.Pacing)
	v.SetDefault("data_dir", ".catstory")
	v.SetDefault("database_path", "")
	v.SetDefault("workers", 2)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadConfigFile merges an optional config file into v.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.NarratorBackend = strings.ToLower(strings.TrimSpace(cfg.NarratorBackend))
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "catstory.db")
	}
	return cfg, nil
}

// LoadFromEnv is what the Cloud Functions use.
func LoadFromEnv() (Config, error) {
	return Load(NewViper())
}

// ValidateCloud checks the keys the cloud deployment cannot run without.
func (c Config) ValidateCloud() error {
	required := []struct{ name, value string }{
		{"PROJECT_ID", c.ProjectID},
		{"ARTIFACT_BUCKET", c.ArtifactBucket},
		{"WORKFLOW_ID", c.WorkflowID},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s environment variable must be set", r.name)
		}
	}
	return nil
}

// NarratorConfig maps the flat settings onto the narrator's config.
func (c Config) NarratorConfig(logger *slog.Logger) narrator.Config {
	nc := narrator.DefaultConfig()
	if c.NarratorModel != "" {
		nc.Model = c.NarratorModel
	}
	nc.MaxTokens = c.NarratorMaxTokens
	nc.Temperature = c.NarratorTemperature
	nc.Pacing = c.NarratorPacing
	nc.Logger = logger
	return nc
}

// NewLogger builds the CLI logger; functions use a JSON handler on stdout.
func NewLogger(w io.Writer, level string, json bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
