package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	// Engine configuration
	Engine EngineConfig `json:"engine"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `json:"rateLimit"`

	// Result cache configuration
	Cache CacheConfig `json:"cache"`
}

type EngineConfig struct {
	BinaryPath     string `json:"binaryPath"`
	HashSizeMB     int    `json:"hashSizeMB"`
	MaxCandidates  int    `json:"maxCandidates"`
	MinThinkTimeMs int    `json:"minThinkTimeMs"`
	MaxThinkTimeMs int    `json:"maxThinkTimeMs"`
}

type ServerConfig struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	HealthAddr  string `json:"healthAddr"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Prefix string `json:"prefix"`
}

type RateLimitConfig struct {
	Enabled        bool           `json:"enabled"`
	RequestsPerMin int            `json:"requestsPerMin"`
	BurstSize      int            `json:"burstSize"`
	PerToolLimits  map[string]int `json:"perToolLimits"`
}

type CacheConfig struct {
	Enabled    bool `json:"enabled"`
	MaxEntries int  `json:"maxEntries"`
	TTLSeconds int  `json:"ttlSeconds"`
}

func Load(configPath string) (*Config, error) {
	cfg := &Config{
		// Default values
		Engine: EngineConfig{
			BinaryPath:     "stockfish",
			HashSizeMB:     64,
			MaxCandidates:  10,
			MinThinkTimeMs: 30,
			MaxThinkTimeMs: 5000,
		},
		Server: ServerConfig{
			Name:        "stockfish-mcp",
			Version:     "0.1.0",
			Description: "Chess move analysis server for MCP",
			HealthAddr:  ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Prefix: "[stockfish-mcp] ",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 60,
			BurstSize:      10,
			PerToolLimits:  make(map[string]int),
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 256,
			TTLSeconds: 300,
		},
	}

	// Load from JSON file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	// Engine settings
	if v := os.Getenv("STOCKFISH_BINARY_PATH"); v != "" {
		c.Engine.BinaryPath = v
	}
	if v := os.Getenv("STOCKFISH_HASH_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.HashSizeMB = n
		}
	}
	if v := os.Getenv("STOCKFISH_MAX_CANDIDATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MaxCandidates = n
		}
	}

	// Logging settings
	if v := os.Getenv("STOCKFISH_MCP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	// Rate limit settings
	if v := os.Getenv("STOCKFISH_MCP_RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = strings.ToLower(v) == "true"
	}

	// Cache settings
	if v := os.Getenv("STOCKFISH_MCP_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = strings.ToLower(v) == "true"
	}
}

func (c *Config) validate() error {
	// Validate binary path exists if it's an absolute path
	if filepath.IsAbs(c.Engine.BinaryPath) {
		if _, err := os.Stat(c.Engine.BinaryPath); err != nil {
			return fmt.Errorf("engine binary not found at %s", c.Engine.BinaryPath)
		}
	}

	// Validate numeric ranges
	if c.Engine.HashSizeMB < 1 {
		c.Engine.HashSizeMB = 1
	}
	if c.Engine.MaxCandidates < 1 {
		c.Engine.MaxCandidates = 1
	}
	if c.Engine.MinThinkTimeMs < 0 {
		c.Engine.MinThinkTimeMs = 0
	}
	if c.Engine.MaxThinkTimeMs < c.Engine.MinThinkTimeMs {
		c.Engine.MaxThinkTimeMs = c.Engine.MinThinkTimeMs
	}

	// Validate rate limits
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMin < 1 {
			c.RateLimit.RequestsPerMin = 1
		}
		if c.RateLimit.BurstSize < 1 {
			c.RateLimit.BurstSize = 1
		}
	}

	// Validate cache settings
	if c.Cache.Enabled {
		if c.Cache.MaxEntries < 1 {
			c.Cache.MaxEntries = 1
		}
		if c.Cache.TTLSeconds < 1 {
			c.Cache.TTLSeconds = 1
		}
	}

	return nil
}

func GetConfigPath() string {
	// Check environment variable first
	if path := os.Getenv("STOCKFISH_MCP_CONFIG"); path != "" {
		return path
	}

	// Check current directory
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}

	// Check home directory
	if home, err := os.UserHomeDir(); err == nil {
		configPath := filepath.Join(home, ".stockfish-mcp", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	return ""
}
