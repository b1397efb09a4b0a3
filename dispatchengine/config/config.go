// Package config defines the dispatch engine configuration and the
// loaders callers use to build it from YAML and environment variables.
// The engine itself never reads files; it receives this struct injected.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ThrottleStrategy selects how a message type's one-per-window guarantee
// is stored: a last-sent timestamp or an atomic counter. Both enforce the
// same contract.
type ThrottleStrategy string

const (
	StrategyTimestamp ThrottleStrategy = "timestamp"
	StrategyCounter   ThrottleStrategy = "counter"
)

// TypePolicy is the throttle policy for one message type.
type TypePolicy struct {
	Window   time.Duration
	Strategy ThrottleStrategy
}

// ThrottleConfig maps message types to their throttle policies. Types not
// listed here are not throttled.
type ThrottleConfig struct {
	DefaultWindow time.Duration
	Types         map[string]TypePolicy
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// FCMConfig routes pushes through per-app Firebase projects. Credentials
// are raw service-account JSON keyed by appId; DefaultAppID names the
// fallback app and must be present in the map.
type FCMConfig struct {
	CredentialsJSONByAppID map[string]string
	DefaultAppID           string
}

type AppleConfig struct {
	KeyID        string
	TeamID       string
	BundleID     string
	P8KeyContent string
}

type RuStoreConfig struct {
	ProjectID    string
	ServiceToken string
	URL          string
}

type HCMConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	PushEndpoint string
}

// Config defines the single, authoritative engine configuration.
type Config struct {
	// CallTimeout bounds each provider HTTP call.
	CallTimeout time.Duration
	// DisabledApps lists appIds whose registrations are skipped entirely.
	DisabledApps []string
	// VoIPTypes lists message types delivered to the VoIP token field.
	VoIPTypes []string

	Throttle ThrottleConfig
	Redis    RedisConfig

	FCM     FCMConfig
	Apple   AppleConfig
	RuStore RuStoreConfig
	HCM     HCMConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Provider Overrides
	if val := os.Getenv("FCM_DEFAULT_APP_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_DEFAULT_APP_ID", "source", "env")
		cfg.FCM.DefaultAppID = val
	}
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		cfg.Apple.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		cfg.Apple.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		cfg.Apple.BundleID = val
	}
	if val := os.Getenv("APNS_P8_KEY"); val != "" {
		cfg.Apple.P8KeyContent = val
	}
	if val := os.Getenv("RUSTORE_PROJECT_ID"); val != "" {
		cfg.RuStore.ProjectID = val
	}
	if val := os.Getenv("RUSTORE_SERVICE_TOKEN"); val != "" {
		cfg.RuStore.ServiceToken = val
	}
	if val := os.Getenv("HCM_CLIENT_ID"); val != "" {
		cfg.HCM.ClientID = val
	}
	if val := os.Getenv("HCM_CLIENT_SECRET"); val != "" {
		cfg.HCM.ClientSecret = val
	}

	if val := os.Getenv("DISABLED_APP_IDS"); val != "" {
		logger.Debug("Overriding config value", "key", "DISABLED_APP_IDS", "source", "env")
		var cleaned []string
		for _, id := range strings.Split(val, ",") {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		cfg.DisabledApps = cleaned
	}

	// Final Validation
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.Throttle.DefaultWindow <= 0 {
		cfg.Throttle.DefaultWindow = time.Hour
	}
	for name, policy := range cfg.Throttle.Types {
		if policy.Window <= 0 {
			policy.Window = cfg.Throttle.DefaultWindow
		}
		switch policy.Strategy {
		case StrategyTimestamp, StrategyCounter:
		case "":
			policy.Strategy = StrategyTimestamp
		default:
			return nil, fmt.Errorf("unknown throttle strategy %q for message type %q", policy.Strategy, name)
		}
		cfg.Throttle.Types[name] = policy
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
