// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Schema     SchemaConfig     `mapstructure:"schema"`
	Approval   ApprovalConfig   `mapstructure:"approval"`
	Automation AutomationConfig `mapstructure:"automation"`
	Email      EmailConfig      `mapstructure:"email"`
	Events     EventsConfig     `mapstructure:"events"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ReadTimeout     int `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// --- Domain Configuration Sections ---

// SchemaConfig controls the question schema cache.
type SchemaConfig struct {
	CacheTTL int `mapstructure:"cache_ttl"` // seconds
}

// ApprovalConfig controls the acceptance gate.
type ApprovalConfig struct {
	Threshold int      `mapstructure:"threshold"`
	Teams     []string `mapstructure:"teams"`
}

// AutomationConfig controls the scheduled automation dispatcher.
type AutomationConfig struct {
	Timezone        string `mapstructure:"timezone"`          // IANA name, e.g. America/Chicago
	MinPeriodHours  int    `mapstructure:"min_period_hours"`  // double-fire window guard
	InternalTrigger bool   `mapstructure:"internal_trigger"`  // run the in-process hourly cron
	TriggerToken    string `mapstructure:"trigger_token"`     // shared secret for the external trigger endpoint
	DispatchTimeout int    `mapstructure:"dispatch_timeout"`  // milliseconds, whole run
}

// EmailConfig holds settings for SES delivery and template rendering.
type EmailConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Region    string `mapstructure:"region"`
	FromEmail string `mapstructure:"from_email"`
	ReplyTo   string `mapstructure:"reply_to"`
}

// EventsConfig holds settings for SNS notification event publishing.
type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	TopicARN string `mapstructure:"topic_arn"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
