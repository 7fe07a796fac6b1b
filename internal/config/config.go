// Package config loads alain settings from an optional YAML file, .env
// files and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/alain/internal/llm"
)

// Config holds all application configuration. Every key can be overridden
// with an ALAIN_ prefixed variable (teacher.model -> ALAIN_TEACHER_MODEL).
type Config struct {
	Teacher    TeacherConfig    `mapstructure:"teacher" yaml:"teacher"`
	Retry      RetryConfig      `mapstructure:"retry" yaml:"retry"`
	Generation GenerationConfig `mapstructure:"generation" yaml:"generation"`
	Review     ReviewConfig     `mapstructure:"review" yaml:"review"`
	Prompts    PromptsConfig    `mapstructure:"prompts" yaml:"prompts"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
	Colab      ColabConfig      `mapstructure:"colab" yaml:"colab"`
	QA         QAConfig         `mapstructure:"qa" yaml:"qa"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// TeacherConfig selects the model that authors outlines and sections.
type TeacherConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint), "anthropic" or "gemini".
	Provider            string        `mapstructure:"provider" yaml:"provider"`
	BaseURL             string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey              string        `mapstructure:"api_key" yaml:"api_key"`
	Model               string        `mapstructure:"model" yaml:"model"`
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout"`
	NoTemperatureModels string        `mapstructure:"no_temperature_models" yaml:"no_temperature_models"`
}

// RetryConfig holds the gateway retry budgets.
type RetryConfig struct {
	OutlineAttempts int           `mapstructure:"outline_attempts" yaml:"outline_attempts"`
	SectionAttempts int           `mapstructure:"section_attempts" yaml:"section_attempts"`
	InitialWait     time.Duration `mapstructure:"initial_wait" yaml:"initial_wait"`
	MaxWait         time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	Multiplier      float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// GenerationConfig holds prompt overrides. Zero values mean "use the
// generator default".
type GenerationConfig struct {
	Difficulty       string   `mapstructure:"difficulty" yaml:"difficulty"`
	Title            string   `mapstructure:"title" yaml:"title"`
	SystemPrompt     string   `mapstructure:"system_prompt" yaml:"system_prompt"`
	Temperature      *float64 `mapstructure:"temperature" yaml:"temperature,omitempty"`
	MaxTokens        int      `mapstructure:"max_tokens" yaml:"max_tokens"`
	SectionMaxTokens int      `mapstructure:"section_max_tokens" yaml:"section_max_tokens"`
}

// ReviewConfig enables the human-review artifact sink.
type ReviewConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Scenario string `mapstructure:"scenario" yaml:"scenario"`
}

// PromptsConfig points at a directory overriding the embedded templates.
type PromptsConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// CheckpointConfig enables per-section checkpoints for resumable runs.
type CheckpointConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ColabConfig configures the Colab compatibility pass.
type ColabConfig struct {
	MaxIssues int    `mapstructure:"max_issues" yaml:"max_issues"`
	Model     string `mapstructure:"model" yaml:"model"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
}

// QAConfig configures the semantic validator.
type QAConfig struct {
	Semantic bool   `mapstructure:"semantic" yaml:"semantic"`
	Model    string `mapstructure:"model" yaml:"model"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
}

// PipelineConfig tunes the run coalescer.
type PipelineConfig struct {
	CoalesceTTL time.Duration `mapstructure:"coalesce_ttl" yaml:"coalesce_ttl"`
}

// StoreConfig locates the event database.
type StoreConfig struct {
	DB       string `mapstructure:"db" yaml:"db"`
	Disabled bool   `mapstructure:"disabled" yaml:"disabled"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Teacher: TeacherConfig{
			Provider:            "openai",
			BaseURL:             llm.DefaultBaseURL,
			Model:               "gpt-oss-20b",
			Timeout:             60 * time.Second,
			NoTemperatureModels: llm.DefaultNoTemperatureModels,
		},
		Retry: RetryConfig{
			OutlineAttempts: 5,
			SectionAttempts: 4,
			InitialWait:     500 * time.Millisecond,
			MaxWait:         5 * time.Second,
			Multiplier:      2.0,
		},
		Generation: GenerationConfig{Difficulty: "beginner"},
		QA: QAConfig{
			Semantic: true,
			Model:    "gpt-oss-20b",
			BaseURL:  llm.DefaultBaseURL,
		},
		Pipeline: PipelineConfig{CoalesceTTL: 10 * time.Minute},
		Log:      LogConfig{Level: "info", Format: "console"},
	}
}

// envAliases binds keys to the variable names used by existing ALAIN
// deployments. The ALAIN_ form is always listed first so it wins.
var envAliases = map[string][]string{
	"teacher.api_key":               {"ALAIN_TEACHER_API_KEY", "POE_API_KEY", "OPENAI_API_KEY"},
	"teacher.base_url":              {"ALAIN_TEACHER_BASE_URL", "OPENAI_BASE_URL"},
	"teacher.model":                 {"ALAIN_TEACHER_MODEL", "ALAIN_MODEL"},
	"teacher.no_temperature_models": {"ALAIN_TEACHER_NO_TEMPERATURE_MODELS", "OPENAI_NO_TEMPERATURE_MODELS"},
	"generation.temperature":        {"ALAIN_GENERATION_TEMPERATURE"},
	"review.dir":                    {"ALAIN_REVIEW_DIR", "ALAIN_HUMAN_REVIEW_DIR"},
	"review.scenario":               {"ALAIN_REVIEW_SCENARIO", "ALAIN_SCENARIO_SLUG"},
	"prompts.root":                  {"ALAIN_PROMPTS_ROOT", "ALAIN_PROMPT_ROOT"},
	"colab.base_url":                {"ALAIN_COLAB_BASE_URL", "ALAIN_COLAB_BASE"},
	"colab.api_key":                 {"ALAIN_COLAB_API_KEY", "POE_API_KEY", "OPENAI_API_KEY"},
	"qa.base_url":                   {"ALAIN_QA_BASE_URL", "ALAIN_QA_BASE"},
	"qa.api_key":                    {"ALAIN_QA_API_KEY", "POE_API_KEY", "OPENAI_API_KEY"},
	"store.db":                      {"ALAIN_STORE_DB", "ALAIN_DB"},
}

// Load reads configuration. When path is empty, alain.yaml is looked up in
// the working directory and $XDG_CONFIG_HOME/alain; a missing file is not
// an error. A .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	// Missing .env is fine; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	v.SetEnvPrefix("ALAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("alain")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "alain"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("teacher.provider", d.Teacher.Provider)
	v.SetDefault("teacher.base_url", d.Teacher.BaseURL)
	v.SetDefault("teacher.api_key", d.Teacher.APIKey)
	v.SetDefault("teacher.model", d.Teacher.Model)
	v.SetDefault("teacher.timeout", d.Teacher.Timeout)
	v.SetDefault("teacher.no_temperature_models", d.Teacher.NoTemperatureModels)

	v.SetDefault("retry.outline_attempts", d.Retry.OutlineAttempts)
	v.SetDefault("retry.section_attempts", d.Retry.SectionAttempts)
	v.SetDefault("retry.initial_wait", d.Retry.InitialWait)
	v.SetDefault("retry.max_wait", d.Retry.MaxWait)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)

	v.SetDefault("generation.difficulty", d.Generation.Difficulty)
	v.SetDefault("generation.title", d.Generation.Title)
	v.SetDefault("generation.system_prompt", d.Generation.SystemPrompt)
	v.SetDefault("generation.max_tokens", d.Generation.MaxTokens)
	v.SetDefault("generation.section_max_tokens", d.Generation.SectionMaxTokens)

	v.SetDefault("review.dir", d.Review.Dir)
	v.SetDefault("review.scenario", d.Review.Scenario)
	v.SetDefault("prompts.root", d.Prompts.Root)
	v.SetDefault("checkpoint.dir", d.Checkpoint.Dir)

	v.SetDefault("colab.max_issues", d.Colab.MaxIssues)
	v.SetDefault("colab.model", d.Colab.Model)
	v.SetDefault("colab.base_url", d.Colab.BaseURL)
	v.SetDefault("colab.api_key", d.Colab.APIKey)

	v.SetDefault("qa.semantic", d.QA.Semantic)
	v.SetDefault("qa.model", d.QA.Model)
	v.SetDefault("qa.base_url", d.QA.BaseURL)
	v.SetDefault("qa.api_key", d.QA.APIKey)

	v.SetDefault("pipeline.coalesce_ttl", d.Pipeline.CoalesceTTL)
	v.SetDefault("store.db", d.Store.DB)
	v.SetDefault("store.disabled", d.Store.Disabled)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Generation.Difficulty {
	case "beginner", "intermediate", "advanced":
	default:
		return fmt.Errorf("generation.difficulty must be beginner, intermediate or advanced, got %q", c.Generation.Difficulty)
	}
	if c.Retry.OutlineAttempts < 1 || c.Retry.SectionAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if c.Colab.MaxIssues < 0 {
		return fmt.Errorf("colab.max_issues must not be negative")
	}
	return c.LLM().Validate()
}

// LLM returns the teacher provider configuration.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		Provider:            c.Teacher.Provider,
		BaseURL:             c.Teacher.BaseURL,
		APIKey:              c.Teacher.APIKey,
		Model:               c.Teacher.Model,
		NoTemperatureModels: c.Teacher.NoTemperatureModels,
		Timeout:             c.Teacher.Timeout,
	}
}

// OutlineRetry is the gateway retry policy for outline and repair calls.
func (c *Config) OutlineRetry() llm.RetryConfig {
	return c.retry(c.Retry.OutlineAttempts)
}

// SectionRetry is the gateway retry policy for section calls.
func (c *Config) SectionRetry() llm.RetryConfig {
	return c.retry(c.Retry.SectionAttempts)
}

func (c *Config) retry(attempts int) llm.RetryConfig {
	return llm.RetryConfig{
		MaxAttempts: attempts,
		InitialWait: c.Retry.InitialWait,
		MaxWait:     c.Retry.MaxWait,
		Multiplier:  c.Retry.Multiplier,
	}
}

// Dump writes the configuration as YAML with secrets redacted.
func (c *Config) Dump(w io.Writer) error {
	redacted := *c
	redacted.Teacher.APIKey = redact(c.Teacher.APIKey)
	redacted.Colab.APIKey = redact(c.Colab.APIKey)
	redacted.QA.APIKey = redact(c.QA.APIKey)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
