// Package config provides configuration management for the agent workflow engine.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the engine.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	EventBus     EventBusConfig     `mapstructure:"eventBus"`
	ProjectStore ProjectStoreConfig `mapstructure:"projectStore"`
	Engine       EngineConfig       `mapstructure:"engine"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Publisher    PublisherConfig    `mapstructure:"publisher"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// EventBusConfig selects and configures the workflow event bus transport.
type EventBusConfig struct {
	// Driver is "memory" (default, single process) or "nats" (shared bus across processes).
	Driver  string `mapstructure:"driver"`
	NATSURL string `mapstructure:"natsUrl"`
}

// ProjectStoreConfig configures the on-disk project tree and optional metadata index.
type ProjectStoreConfig struct {
	BaseDir         string `mapstructure:"baseDir"`
	MetadataBackend string `mapstructure:"metadataBackend"` // "memory" or "sqlite"
	SQLitePath      string `mapstructure:"sqlitePath"`
}

// EngineConfig configures turn-loop scheduling, retries, and deadlines.
type EngineConfig struct {
	TurnBudgetMultiplier  int `mapstructure:"turnBudgetMultiplier"`
	PerTurnTimeoutSeconds int `mapstructure:"perTurnTimeoutSeconds"`
	WorkflowDeadlineSecs  int `mapstructure:"workflowDeadlineSeconds"`
	RetryMaxAttempts      int `mapstructure:"retryMaxAttempts"`
	RetryBackoffInitialMs int `mapstructure:"retryBackoffInitialMs"`
	RetryBackoffMaxMs     int `mapstructure:"retryBackoffMaxMs"`
	MaxConcurrentWorkflows int `mapstructure:"maxConcurrentWorkflows"`
}

// PerTurnTimeout returns the per-turn deadline as a time.Duration.
func (e *EngineConfig) PerTurnTimeout() time.Duration {
	return time.Duration(e.PerTurnTimeoutSeconds) * time.Second
}

// WorkflowDeadline returns the overall workflow deadline as a time.Duration.
func (e *EngineConfig) WorkflowDeadline() time.Duration {
	return time.Duration(e.WorkflowDeadlineSecs) * time.Second
}

// TurnBudget returns the clamped hard turn budget for a workflow with agentCount agents.
func (e *EngineConfig) TurnBudget(agentCount int) int {
	budget := e.TurnBudgetMultiplier * agentCount
	if budget < 6 {
		budget = 6
	}
	if budget > 40 {
		budget = 40
	}
	return budget
}

// LLMConfig holds the model registry path and provider credentials.
type LLMConfig struct {
	ModelRegistryPath string            `mapstructure:"modelRegistryPath"`
	Credentials       map[string]string `mapstructure:"credentials"`
}

// PublisherConfig holds the repository host credentials and preferred binding.
type PublisherConfig struct {
	// Binding is "pat" (default, token-authenticated HTTP client) or "cli" (shell out to a hosting CLI).
	Binding  string `mapstructure:"binding"`
	Token    string `mapstructure:"token"`
	Username string `mapstructure:"username"`
	BaseURL  string `mapstructure:"baseUrl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTFLOW_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("eventBus.driver", "memory")
	v.SetDefault("eventBus.natsUrl", "")

	v.SetDefault("projectStore.baseDir", "./generated")
	v.SetDefault("projectStore.metadataBackend", "memory")
	v.SetDefault("projectStore.sqlitePath", "./agentflow-projects.db")

	v.SetDefault("engine.turnBudgetMultiplier", 3)
	v.SetDefault("engine.perTurnTimeoutSeconds", 180)
	v.SetDefault("engine.workflowDeadlineSeconds", 1200)
	v.SetDefault("engine.retryMaxAttempts", 3)
	v.SetDefault("engine.retryBackoffInitialMs", 500)
	v.SetDefault("engine.retryBackoffMaxMs", 8000)
	v.SetDefault("engine.maxConcurrentWorkflows", 16)

	v.SetDefault("llm.modelRegistryPath", "")
	v.SetDefault("llm.credentials", map[string]string{})

	v.SetDefault("publisher.binding", "pat")
	v.SetDefault("publisher.token", "")
	v.SetDefault("publisher.username", "")
	v.SetDefault("publisher.baseUrl", "https://api.github.com")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTFLOW_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/agentflow/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys).
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we bind keys explicitly wherever the env var naming diverges.
	_ = v.BindEnv("logging.level", "AGENTFLOW_LOG_LEVEL")
	_ = v.BindEnv("eventBus.natsUrl", "AGENTFLOW_NATS_URL")
	_ = v.BindEnv("projectStore.baseDir", "AGENTFLOW_PROJECT_BASE_DIR")
	_ = v.BindEnv("publisher.token", "AGENTFLOW_REPO_TOKEN")
	_ = v.BindEnv("publisher.username", "AGENTFLOW_REPO_USERNAME")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentflow/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	trimCredentials(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// trimCredentials strips surrounding whitespace from every externally supplied
// credential at ingestion time. A trailing space on a stored username has
// previously corrupted constructed repository URLs; trimming here, once, at
// the boundary, is cheaper than defending every use site.
func trimCredentials(cfg *Config) {
	cfg.Publisher.Token = strings.TrimSpace(cfg.Publisher.Token)
	cfg.Publisher.Username = strings.TrimSpace(cfg.Publisher.Username)
	for k, v := range cfg.LLM.Credentials {
		cfg.LLM.Credentials[k] = strings.TrimSpace(v)
	}
}

// validate checks that all required configuration fields are set and collects
// every violation instead of failing on the first.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	validDrivers := map[string]bool{"memory": true, "nats": true}
	if !validDrivers[strings.ToLower(cfg.EventBus.Driver)] {
		errs = append(errs, "eventBus.driver must be one of: memory, nats")
	}
	if strings.ToLower(cfg.EventBus.Driver) == "nats" && cfg.EventBus.NATSURL == "" {
		errs = append(errs, "eventBus.natsUrl is required when eventBus.driver=nats")
	}

	validBackends := map[string]bool{"memory": true, "sqlite": true}
	if !validBackends[strings.ToLower(cfg.ProjectStore.MetadataBackend)] {
		errs = append(errs, "projectStore.metadataBackend must be one of: memory, sqlite")
	}
	if cfg.ProjectStore.BaseDir == "" {
		errs = append(errs, "projectStore.baseDir must not be empty")
	}

	if cfg.Engine.TurnBudgetMultiplier <= 0 {
		errs = append(errs, "engine.turnBudgetMultiplier must be positive")
	}
	if cfg.Engine.PerTurnTimeoutSeconds <= 0 {
		errs = append(errs, "engine.perTurnTimeoutSeconds must be positive")
	}
	if cfg.Engine.WorkflowDeadlineSecs <= 0 {
		errs = append(errs, "engine.workflowDeadlineSeconds must be positive")
	}
	if cfg.Engine.RetryMaxAttempts <= 0 {
		errs = append(errs, "engine.retryMaxAttempts must be positive")
	}

	validBindings := map[string]bool{"pat": true, "cli": true}
	if !validBindings[strings.ToLower(cfg.Publisher.Binding)] {
		errs = append(errs, "publisher.binding must be one of: pat, cli")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
