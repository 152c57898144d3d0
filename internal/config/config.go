// Package config handles Quill configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nugget/quill/internal/paths"
)

// Provider names accepted in models.provider.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// DefaultMaxAutoRounds caps consecutive automatic round-trips to the
// model before the human is prompted again.
const DefaultMaxAutoRounds = 5

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config) is checked first.
// Then: ./config.yaml, ~/.config/quill/config.yaml, /etc/quill/config.yaml.
func DefaultSearchPaths() []string {
	candidates := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "quill", "config.yaml"))
	}

	candidates = append(candidates, "/etc/quill/config.yaml")
	return candidates
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns "" and no error when nothing was found; callers fall back to
// [Default].
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

// Config holds all Quill configuration.
type Config struct {
	// DataDir is the parent of the storage, conversation and journal
	// locations when those are left relative. Default: ./data
	DataDir string `yaml:"data_dir"`
	// StorageDir is the root the filesystem commands are confined to.
	StorageDir string `yaml:"storage_dir"`
	// ConversationsDir holds saved conversation transcripts.
	ConversationsDir string `yaml:"conversations_dir"`
	// JournalPath is the SQLite database recording every turn.
	JournalPath string `yaml:"journal_path"`

	Models    ModelsConfig    `yaml:"models"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Agent     AgentConfig     `yaml:"agent"`
	MQTT      MQTTConfig      `yaml:"mqtt"`

	LogLevel string `yaml:"log_level"`
}

// ModelsConfig selects the model provider.
type ModelsConfig struct {
	Provider  string `yaml:"provider"` // ollama, anthropic
	Default   string `yaml:"default"`
	OllamaURL string `yaml:"ollama_url"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// AgentConfig tunes the turn loop.
type AgentConfig struct {
	// MaxAutoRounds limits consecutive automatic round-trips.
	MaxAutoRounds int `yaml:"max_auto_rounds"`
	// SessionName overrides the timestamp-derived conversation name.
	SessionName string `yaml:"session_name"`
}

// MQTTConfig enables forwarding of operational events to a broker.
// Forwarding is disabled when Broker is empty.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. mqtt://localhost:1883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// Configured reports whether MQTT forwarding should start.
func (c MQTTConfig) Configured() bool {
	return strings.TrimSpace(c.Broker) != ""
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no config file exists:
// a local Ollama model and a ./data directory.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field. Relative storage, conversation
// and journal locations are resolved against DataDir.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	c.DataDir = paths.ExpandHome(c.DataDir)
	c.StorageDir = underDataDir(c.DataDir, c.StorageDir, "storage")
	c.ConversationsDir = underDataDir(c.DataDir, c.ConversationsDir, "conversations")
	c.JournalPath = underDataDir(c.DataDir, c.JournalPath, "journal.db")

	if c.Models.Provider == "" {
		c.Models.Provider = ProviderOllama
	}
	if c.Models.OllamaURL == "" {
		c.Models.OllamaURL = "http://localhost:11434"
	}
	if c.Models.Default == "" {
		switch c.Models.Provider {
		case ProviderAnthropic:
			c.Models.Default = "claude-sonnet-4-20250514"
		default:
			c.Models.Default = "qwen3:4b"
		}
	}
	if c.Agent.MaxAutoRounds <= 0 {
		c.Agent.MaxAutoRounds = DefaultMaxAutoRounds
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "quill"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "quill"
	}
}

func underDataDir(dataDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	value = paths.ExpandHome(value)
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(dataDir, value)
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	switch c.Models.Provider {
	case ProviderOllama:
	case ProviderAnthropic:
		if strings.TrimSpace(c.Anthropic.APIKey) == "" {
			return fmt.Errorf("anthropic.api_key is required when models.provider is anthropic")
		}
	default:
		return fmt.Errorf("unsupported models.provider: %q (valid: ollama, anthropic)", c.Models.Provider)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if filepath.Clean(c.StorageDir) == filepath.Clean(c.ConversationsDir) {
		return fmt.Errorf("storage_dir and conversations_dir must differ")
	}
	return nil
}

// EnsureDirs creates the storage and conversation directories and the
// journal's parent directory.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.StorageDir, c.ConversationsDir, filepath.Dir(c.JournalPath)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}
