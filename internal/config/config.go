package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr      string
	DBPath          string
	AIBackend       string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	ClaudeAPIKey    string
	ClaudeModel     string
	ClaudeBaseURL   string
	OllamaHost      string
	OllamaModel     string
	BreakerFailures uint32
	BreakerCooldown time.Duration
	SessionMax      int
	SessionTTL      time.Duration
	LogLevel        string
	LogFile         string
	LogFormat       string
}

var defaults = map[string]any{
	"LISTEN_ADDR":      ":8080",
	"DB_PATH":          "/data/calscan.db",
	"AI_BACKEND":       "gemini",
	"GEMINI_API_KEY":   "",
	"GEMINI_MODEL":     "gemini-2.5-flash-preview-05-20",
	"GEMINI_BASE_URL":  "https://generativelanguage.googleapis.com",
	"CLAUDE_API_KEY":   "",
	"CLAUDE_MODEL":     "claude-sonnet-4-5",
	"CLAUDE_BASE_URL":  "",
	"OLLAMA_HOST":      "http://localhost:11434",
	"OLLAMA_MODEL":     "llava",
	"BREAKER_FAILURES": 5,
	"BREAKER_COOLDOWN": "30s",
	"SESSION_MAX":      1000,
	"SESSION_TTL":      "2h",
	"LOG_LEVEL":        "info",
	"LOG_FILE":         "",
	"LOG_FORMAT":       "json",
}

// Load reads configuration from the environment only.
func Load() *Config {
	cfg, _ := LoadFile("")
	return cfg
}

// LoadFile reads configuration from path (YAML, TOML or JSON by extension)
// when path is non-empty, then lets environment variables override it.
// Keys in the file use the same names as the variables, e.g. LISTEN_ADDR or
// listen_addr. The returned Config is always usable; the error reports a file
// that could not be read.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	var err error
	if path != "" {
		v.SetConfigFile(path)
		if rerr := v.ReadInConfig(); rerr != nil {
			err = fmt.Errorf("failed to read config file %s: %w", path, rerr)
		}
	}

	return &Config{
		ListenAddr:      v.GetString("LISTEN_ADDR"),
		DBPath:          v.GetString("DB_PATH"),
		AIBackend:       v.GetString("AI_BACKEND"),
		GeminiAPIKey:    v.GetString("GEMINI_API_KEY"),
		GeminiModel:     v.GetString("GEMINI_MODEL"),
		GeminiBaseURL:   v.GetString("GEMINI_BASE_URL"),
		ClaudeAPIKey:    v.GetString("CLAUDE_API_KEY"),
		ClaudeModel:     v.GetString("CLAUDE_MODEL"),
		ClaudeBaseURL:   v.GetString("CLAUDE_BASE_URL"),
		OllamaHost:      v.GetString("OLLAMA_HOST"),
		OllamaModel:     v.GetString("OLLAMA_MODEL"),
		BreakerFailures: v.GetUint32("BREAKER_FAILURES"),
		BreakerCooldown: v.GetDuration("BREAKER_COOLDOWN"),
		SessionMax:      v.GetInt("SESSION_MAX"),
		SessionTTL:      v.GetDuration("SESSION_TTL"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFile:         v.GetString("LOG_FILE"),
		LogFormat:       v.GetString("LOG_FORMAT"),
	}, err
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.AIBackend {
	case "gemini", "genai", "ollama":
	case "claude":
		if c.ClaudeAPIKey == "" {
			return fmt.Errorf("CLAUDE_API_KEY is required when AI_BACKEND=claude")
		}
	default:
		return fmt.Errorf("unknown AI_BACKEND %q", c.AIBackend)
	}
	if c.SessionMax <= 0 {
		return fmt.Errorf("SESSION_MAX must be positive, got %d", c.SessionMax)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}
