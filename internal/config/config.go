// Package config provides configuration types and loading for valet.
package config

import (
	"path/filepath"
	"time"
)

// Config is the root configuration struct.
// Top-level groups: Paths, Telegram, Model, API, Security, Slack, Kafka, Desktop.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Telegram TelegramConfig `json:"telegram"`
	Model    ModelConfig    `json:"model"`
	API      APIConfig      `json:"api"`
	Security SecurityConfig `json:"security"`
	Slack    SlackConfig    `json:"slack"`
	SMTP     SMTPConfig     `json:"smtp"`
	Kafka    KafkaConfig    `json:"kafka"`
	Desktop  DesktopConfig  `json:"desktop"`
}

// PathsConfig groups filesystem path settings. Relative to the valet home
// directory when left empty.
type PathsConfig struct {
	DataDir       string `json:"dataDir" envconfig:"DATA_DIR"`
	DatabaseFile  string `json:"databaseFile" envconfig:"DATABASE_FILE"`
	ScreenshotDir string `json:"screenshotDir" envconfig:"SCREENSHOT_DIR"`
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"TELEGRAM_ENABLED"`
	Token     string   `json:"token" envconfig:"TELEGRAM_TOKEN"`
	AllowFrom []string `json:"allowFrom" envconfig:"TELEGRAM_ALLOW_FROM"`
}

// ModelConfig groups the intent-model settings.
type ModelConfig struct {
	BaseURL     string        `json:"baseUrl" envconfig:"MODEL_BASE_URL"`
	Name        string        `json:"name" envconfig:"MODEL"`
	VisionName  string        `json:"visionName" envconfig:"VISION_MODEL"`
	Timeout     time.Duration `json:"timeout" envconfig:"MODEL_TIMEOUT"`
	HistorySize int           `json:"historySize" envconfig:"MODEL_HISTORY_SIZE"`
}

// APIConfig configures the local HTTP command endpoint.
type APIConfig struct {
	Enabled bool   `json:"enabled" envconfig:"API_ENABLED"`
	Listen  string `json:"listen" envconfig:"API_LISTEN"`
	Token   string `json:"token" envconfig:"API_TOKEN"`
}

// SecurityConfig groups authorization and throttling settings.
type SecurityConfig struct {
	Owners              []string `json:"owners" envconfig:"OWNERS"`
	ConfidenceThreshold float64  `json:"confidenceThreshold" envconfig:"CONFIDENCE_THRESHOLD"`
	RateLimitMax        int      `json:"rateLimitMax" envconfig:"RATE_LIMIT_MAX"`
	RateLimitWindowSec  int      `json:"rateLimitWindowSec" envconfig:"RATE_LIMIT_WINDOW_SEC"`
	ExtraAffirmatives   []string `json:"extraAffirmatives" envconfig:"EXTRA_AFFIRMATIVES"`
}

// SlackConfig configures outbound Slack messaging.
type SlackConfig struct {
	Token          string `json:"token" envconfig:"SLACK_TOKEN"`
	DefaultChannel string `json:"defaultChannel" envconfig:"SLACK_DEFAULT_CHANNEL"`
}

// SMTPConfig configures outbound email for send_message. Disabled when Host
// is empty.
type SMTPConfig struct {
	Host     string `json:"host" envconfig:"SMTP_HOST"`
	Port     int    `json:"port" envconfig:"SMTP_PORT"`
	From     string `json:"from" envconfig:"SMTP_FROM"`
	Password string `json:"password" envconfig:"SMTP_PASSWORD"`
}

// KafkaConfig configures the audit export sink. Disabled when Brokers is
// empty.
type KafkaConfig struct {
	Brokers    string `json:"brokers" envconfig:"KAFKA_BROKERS"`
	AuditTopic string `json:"auditTopic" envconfig:"KAFKA_AUDIT_TOPIC"`
}

// DesktopConfig configures host-control actions.
type DesktopConfig struct {
	// Apps maps friendly application names to argv vectors for open_app.
	Apps map[string][]string `json:"apps"`
	// Scripts maps script names to executable paths for run_script.
	Scripts map[string]string `json:"scripts"`
	// FileBaseDirs confines file actions; defaults to the user's home.
	FileBaseDirs []string `json:"fileBaseDirs"`
}

// ApplyDefaults fills zero-valued fields with working defaults. home is the
// valet home directory.
func (c *Config) ApplyDefaults(home string) {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = home
	}
	if c.Paths.DatabaseFile == "" {
		c.Paths.DatabaseFile = filepath.Join(c.Paths.DataDir, "valet.db")
	}
	if c.Paths.ScreenshotDir == "" {
		c.Paths.ScreenshotDir = filepath.Join(c.Paths.DataDir, "screenshots")
	}
	if c.Model.BaseURL == "" {
		c.Model.BaseURL = "http://localhost:11434"
	}
	if c.Model.Name == "" {
		c.Model.Name = "llama3.2"
	}
	if c.Model.VisionName == "" {
		c.Model.VisionName = "llava"
	}
	if c.Model.Timeout <= 0 {
		c.Model.Timeout = 60 * time.Second
	}
	if c.Model.HistorySize <= 0 {
		c.Model.HistorySize = 20
	}
	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:8321"
	}
	if c.Security.ConfidenceThreshold <= 0 {
		c.Security.ConfidenceThreshold = 0.3
	}
	if c.Security.RateLimitMax <= 0 {
		c.Security.RateLimitMax = 30
	}
	if c.Security.RateLimitWindowSec <= 0 {
		c.Security.RateLimitWindowSec = 60
	}
	if c.Kafka.AuditTopic == "" {
		c.Kafka.AuditTopic = "valet.audit"
	}
}
