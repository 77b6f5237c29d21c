package httpapi

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Addr      string        `yaml:"addr"`
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	MaxTokens int           `yaml:"max_tokens"`

	SystemPrompt string `yaml:"system_prompt"`
	StepBudget   int    `yaml:"step_budget"`
	Deadline     string `yaml:"deadline"` // duration string, e.g. "30s"

	Logger  LoggerConfig  `yaml:"logger"`
	Weather WeatherConfig `yaml:"weather"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// WeatherConfig holds weather tool endpoint overrides. Empty values keep the
// public Open-Meteo defaults.
type WeatherConfig struct {
	GeocodeURL  string `yaml:"geocode_url"`
	ForecastURL string `yaml:"forecast_url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:      ":8080",
		Model:     "claude-sonnet-4-5",
		APIKeyEnv: "ANTHROPIC_API_KEY",
		MaxTokens: 4096,
		SystemPrompt: "You are a helpful assistant. Use the weather tool for live conditions " +
			"and the createDocument tool when asked to write documents.",
		StepBudget: 5,
		Deadline:   "30s",
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing file is
// not an error; the defaults are returned.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseDeadline returns the exchange deadline as a duration.
func (c *Config) ParseDeadline() (time.Duration, error) {
	if c.Deadline == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Deadline)
	if err != nil {
		return 0, fmt.Errorf("parse deadline: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("deadline must be positive, got %q", c.Deadline)
	}
	return d, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.StepBudget < 1 {
		return fmt.Errorf("step_budget must be at least 1, got %d", c.StepBudget)
	}
	if _, err := c.ParseDeadline(); err != nil {
		return err
	}
	return nil
}
