package config

import (
	"log/slog"
	"time"
)

type YamlThrottlePolicy struct {
	WindowSeconds int    `yaml:"window_seconds"`
	Strategy      string `yaml:"strategy"`
}

type YamlThrottleConfig struct {
	DefaultWindowSeconds int                           `yaml:"default_window_seconds"`
	Types                map[string]YamlThrottlePolicy `yaml:"types"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlFCMConfig struct {
	CredentialsByAppID map[string]string `yaml:"credentials_by_app_id"`
	DefaultAppID       string            `yaml:"default_app_id"`
}

type YamlAppleConfig struct {
	KeyID        string `yaml:"key_id"`
	TeamID       string `yaml:"team_id"`
	BundleID     string `yaml:"bundle_id"`
	P8KeyContent string `yaml:"p8_key_content"`
}

type YamlRuStoreConfig struct {
	ProjectID    string `yaml:"project_id"`
	ServiceToken string `yaml:"service_token"`
	URL          string `yaml:"url"`
}

type YamlHCMConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthURL      string `yaml:"auth_url"`
	PushEndpoint string `yaml:"push_endpoint"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	CallTimeoutSeconds int                `yaml:"call_timeout_seconds"`
	DisabledApps       []string           `yaml:"disabled_apps"`
	VoIPTypes          []string           `yaml:"voip_types"`
	Throttle           YamlThrottleConfig `yaml:"throttle"`
	Redis              YamlRedisConfig    `yaml:"redis"`
	FCM                YamlFCMConfig      `yaml:"fcm"`
	Apple              YamlAppleConfig    `yaml:"apple"`
	RuStore            YamlRuStoreConfig  `yaml:"rustore"`
	HCM                YamlHCMConfig      `yaml:"hcm"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	throttleTypes := make(map[string]TypePolicy, len(baseCfg.Throttle.Types))
	for name, policy := range baseCfg.Throttle.Types {
		throttleTypes[name] = TypePolicy{
			Window:   time.Duration(policy.WindowSeconds) * time.Second,
			Strategy: ThrottleStrategy(policy.Strategy),
		}
	}

	cfg := &Config{
		CallTimeout:  time.Duration(baseCfg.CallTimeoutSeconds) * time.Second,
		DisabledApps: baseCfg.DisabledApps,
		VoIPTypes:    baseCfg.VoIPTypes,
		Throttle: ThrottleConfig{
			DefaultWindow: time.Duration(baseCfg.Throttle.DefaultWindowSeconds) * time.Second,
			Types:         throttleTypes,
		},
		Redis: RedisConfig{
			Addr:     baseCfg.Redis.Addr,
			Password: baseCfg.Redis.Password,
			DB:       baseCfg.Redis.DB,
			Enabled:  baseCfg.Redis.Enabled,
		},
		FCM: FCMConfig{
			CredentialsJSONByAppID: baseCfg.FCM.CredentialsByAppID,
			DefaultAppID:           baseCfg.FCM.DefaultAppID,
		},
		Apple: AppleConfig{
			KeyID:        baseCfg.Apple.KeyID,
			TeamID:       baseCfg.Apple.TeamID,
			BundleID:     baseCfg.Apple.BundleID,
			P8KeyContent: baseCfg.Apple.P8KeyContent,
		},
		RuStore: RuStoreConfig{
			ProjectID:    baseCfg.RuStore.ProjectID,
			ServiceToken: baseCfg.RuStore.ServiceToken,
			URL:          baseCfg.RuStore.URL,
		},
		HCM: HCMConfig{
			ClientID:     baseCfg.HCM.ClientID,
			ClientSecret: baseCfg.HCM.ClientSecret,
			AuthURL:      baseCfg.HCM.AuthURL,
			PushEndpoint: baseCfg.HCM.PushEndpoint,
		},
	}

	logger.Debug("YAML config mapping complete",
		"throttle_types", len(cfg.Throttle.Types),
		"voip_types", len(cfg.VoIPTypes),
	)

	return cfg, nil
}
