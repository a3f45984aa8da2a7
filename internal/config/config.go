package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Search      Search      `yaml:"search"`
	Credentials Credentials `yaml:"credentials"`
	Scoring     Scoring     `yaml:"scoring"`
	Output      Output      `yaml:"output"`
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
	Schedule    Schedule    `yaml:"schedule"`
}

type Search struct {
	Source   string        `yaml:"source"`
	Query    string        `yaml:"query"`
	Language string        `yaml:"language"`
	Limit    int           `yaml:"limit"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	Feed     FeedSource    `yaml:"feed"`
}

type FeedSource struct {
	Instance string `yaml:"instance"`
}

// Credentials names the env file the API secrets are read from. The secrets
// themselves never live in the YAML file.
type Credentials struct {
	EnvFile string `yaml:"env_file"`
}

type Scoring struct {
	Scorer      string `yaml:"scorer"`
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

type Schedule struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

// ConfigDir returns the XDG config directory for sentimentcrawler.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "sentimentcrawler")
}

// DataDir returns the XDG data directory for sentimentcrawler.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "sentimentcrawler")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/sentimentcrawler/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'sentimentcrawler init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration, used when no file exists.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Search: Search{
			Source:   "twitter",
			Language: "es",
			Limit:    100,
			Endpoint: "https://api.twitter.com/1.1/search/tweets.json",
			Timeout:  30 * time.Second,
			Feed:     FeedSource{Instance: "https://mastodon.social"},
		},
		Credentials: Credentials{EnvFile: "apis.env"},
		Scoring: Scoring{
			Scorer:      "lexicon",
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
		},
		Server:   Server{Port: 8000},
		Logging:  Logging{Level: "info"},
		Schedule: Schedule{Cron: "0 * * * *", Timezone: "UTC"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Search.Limit <= 0 || cfg.Search.Limit > MaxSearchLimit {
		return nil, fmt.Errorf("search.limit must be between 1 and %d, got %d", MaxSearchLimit, cfg.Search.Limit)
	}
	switch cfg.Search.Source {
	case "twitter", "feed":
	default:
		return nil, fmt.Errorf("unknown search.source %q (want twitter or feed)", cfg.Search.Source)
	}
	switch cfg.Scoring.Scorer {
	case "lexicon", "llm":
	default:
		return nil, fmt.Errorf("unknown scoring.scorer %q (want lexicon or llm)", cfg.Scoring.Scorer)
	}

	return cfg, nil
}

// MaxSearchLimit is the search API's per-request ceiling.
const MaxSearchLimit = 100

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
