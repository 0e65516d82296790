package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Sweeps        SweepsConfig        `yaml:"sweeps"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Auth          AuthConfig          `yaml:"auth"`
	Pricing       PricingConfig       `yaml:"pricing"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug/release
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite
	Path string `yaml:"path"`
}

// UpstreamConfig represents the proxy provisioning API configuration
type UpstreamConfig struct {
	APIURL  string `yaml:"api_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// SweepsConfig holds the cron expressions for the scheduled sweeps
type SweepsConfig struct {
	StatusUpdate string `yaml:"status_update"` // hourly
	AlertCreate  string `yaml:"alert_create"`  // twice daily
	AlertSend    string `yaml:"alert_send"`    // thrice daily
	AutoRenewals string `yaml:"auto_renewals"` // twice daily
	Analytics    string `yaml:"analytics"`     // daily
}

// NotificationsConfig represents notification configuration
type NotificationsConfig struct {
	SendTimeout string         `yaml:"send_timeout"`
	Email       EmailConfig    `yaml:"email"`
	Webhook     WebhookConfig  `yaml:"webhook"`
	Telegram    TelegramConfig `yaml:"telegram"`
}

// EmailConfig represents email notification configuration
type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	From     string `yaml:"from"`
	Password string `yaml:"password"`
}

// WebhookConfig represents webhook notification configuration
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// TelegramConfig represents Telegram notification configuration
type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	SOCKSProxy string `yaml:"socks_proxy"`
}

// AuthConfig represents API authentication configuration
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	AdminKeyHash string `yaml:"admin_key_hash"` // bcrypt hash of the admin API key
}

// PricingConfig maps proxy type -> duration days -> renewal price
type PricingConfig map[string]map[int]float64

// LoadConfig loads configuration from a YAML file, with environment
// variables overriding secrets.
func LoadConfig(path string) (*Config, error) {
	// A .env file is optional; missing is fine
	godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	applyEnvOverrides(&config)
	applyDefaults(&config)

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("PROXYFLOW_JWT_SECRET"); val != "" {
		cfg.Auth.JWTSecret = val
	}
	if val := os.Getenv("PROXYFLOW_ADMIN_KEY_HASH"); val != "" {
		cfg.Auth.AdminKeyHash = val
	}
	if val := os.Getenv("PROXYFLOW_SMTP_PASSWORD"); val != "" {
		cfg.Notifications.Email.Password = val
	}
	if val := os.Getenv("PROXYFLOW_UPSTREAM_API_KEY"); val != "" {
		cfg.Upstream.APIKey = val
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Sweeps.StatusUpdate == "" {
		cfg.Sweeps.StatusUpdate = "0 * * * *"
	}
	if cfg.Sweeps.AlertCreate == "" {
		cfg.Sweeps.AlertCreate = "0 8,20 * * *"
	}
	if cfg.Sweeps.AlertSend == "" {
		cfg.Sweeps.AlertSend = "0 9,14,21 * * *"
	}
	if cfg.Sweeps.AutoRenewals == "" {
		cfg.Sweeps.AutoRenewals = "30 8,20 * * *"
	}
	if cfg.Sweeps.Analytics == "" {
		cfg.Sweeps.Analytics = "0 2 * * *"
	}
	if cfg.Notifications.SendTimeout == "" {
		cfg.Notifications.SendTimeout = "30s"
	}
}
