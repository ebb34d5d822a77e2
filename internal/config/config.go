package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/securecookie"
)

// Config holds the application configuration
type Config struct {
	// Server bind address (host:port)
	ServerAddr string

	// Externally visible base URL of the tool (used for launch URLs and
	// deep-link resources)
	ServerURL string

	// Path to the LTI tool configuration JSON file
	ToolConfigPath string

	// Append a "Z" timezone marker to AGS timestamps. Must be enabled for
	// Blackboard Learn, whose timestamp parser rejects zone-less values.
	AppendTimezone bool

	// Cookie settings. CookieSecure must be true behind HTTPS so the
	// session cookie can carry SameSite=None for cross-site LMS frames.
	CookieSecure bool

	// Hex-encoded keys for signing (and optionally encrypting) the session
	// and state cookies. Generated at startup when unset, which means
	// cookies do not survive a restart.
	SessionHashKey  string
	SessionBlockKey string

	// TTL for relayed request snapshots (cookie-probe detour)
	RequestTTL time.Duration

	// TTL for cached launch claim sets (stateless API re-resolution window)
	LaunchTTL time.Duration

	// Enable debug logging
	Debug bool
}

// Load reads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr:      getEnv("SERVER_ADDR", "localhost:9017"),
		ServerURL:       getEnv("SERVER_URL", "http://localhost:9017"),
		ToolConfigPath:  getEnv("TOOL_CONFIG_PATH", "configs/tool.json"),
		AppendTimezone:  getEnvBool("APPEND_TIMEZONE", false),
		CookieSecure:    getEnvBool("COOKIE_SECURE", false),
		SessionHashKey:  getEnv("SESSION_HASH_KEY", ""),
		SessionBlockKey: getEnv("SESSION_BLOCK_KEY", ""),
		RequestTTL:      getEnvDuration("REQUEST_TTL", time.Hour),
		LaunchTTL:       getEnvDuration("LAUNCH_TTL", 24*time.Hour),
		Debug:           getEnvBool("DEBUG", false),
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("SERVER_URL is required")
	}
	if cfg.ToolConfigPath == "" {
		return nil, fmt.Errorf("TOOL_CONFIG_PATH is required")
	}

	return cfg, nil
}

// SessionKeys returns the hash and block keys for cookie signing. The block
// key may be nil (signed-only cookies). Keys are generated randomly when not
// configured.
func (c *Config) SessionKeys() (hashKey, blockKey []byte, err error) {
	if c.SessionHashKey != "" {
		hashKey, err = hex.DecodeString(c.SessionHashKey)
		if err != nil {
			return nil, nil, fmt.Errorf("SESSION_HASH_KEY is not valid hex: %w", err)
		}
	} else {
		hashKey = securecookie.GenerateRandomKey(32)
		if hashKey == nil {
			return nil, nil, fmt.Errorf("generate session hash key")
		}
	}

	if c.SessionBlockKey != "" {
		blockKey, err = hex.DecodeString(c.SessionBlockKey)
		if err != nil {
			return nil, nil, fmt.Errorf("SESSION_BLOCK_KEY is not valid hex: %w", err)
		}
	}

	return hashKey, blockKey, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
