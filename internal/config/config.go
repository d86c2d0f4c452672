package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Cache     CacheConfig
	VoucherDB VoucherDBConfig
	Chat      ChatConfig
	Mail      MailConfig
	Fetch     FetchConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"voucherhub-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LoginKey    string `envconfig:"LOGIN_KEY" default:""` // Admin login key for token generation
}

// CacheConfig holds Redis settings (session tokens).
type CacheConfig struct {
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// VoucherDBConfig holds voucher database settings.
type VoucherDBConfig struct {
	Type string `envconfig:"VOUCHER_DB_TYPE" default:"sqlite"` // sqlite or mysql
	Path string `envconfig:"VOUCHER_DB_PATH" default:"./data/vouchers.db"`
	// MySQL settings
	Host     string `envconfig:"VOUCHER_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"VOUCHER_DB_PORT" default:"3306"`
	Name     string `envconfig:"VOUCHER_DB_NAME" default:"voucherhub"`
	User     string `envconfig:"VOUCHER_DB_USER" default:"root"`
	Password string `envconfig:"VOUCHER_DB_PASS" default:""`
}

// ChatConfig holds chat channel settings.
type ChatConfig struct {
	// AllowedRequesters is the allow-list of requester IDs permitted to use
	// the chat endpoints. An empty list means nobody is allowed.
	AllowedRequesters []string `envconfig:"CHAT_ALLOWED_REQUESTERS" default:""`
	MaxAmount         int      `envconfig:"CHAT_MAX_AMOUNT" default:"10000"`
	APIKeys           []string `envconfig:"API_KEYS" default:""`
}

// MailConfig holds mailbox polling settings.
type MailConfig struct {
	IMAPAddr       string        `envconfig:"MAIL_IMAP_ADDR" default:""`
	Username       string        `envconfig:"MAIL_USERNAME" default:""`
	Password       string        `envconfig:"MAIL_PASSWORD" default:""`
	SubjectKeyword string        `envconfig:"MAIL_SUBJECT_KEYWORD" default:"שובר"`
	PollInterval   time.Duration `envconfig:"MAIL_POLL_INTERVAL" default:"5m"`
}

// FetchConfig holds external page fetch settings.
type FetchConfig struct {
	Timeout    time.Duration `envconfig:"FETCH_TIMEOUT" default:"15s"`
	BarcodeDir string        `envconfig:"BARCODE_DIR" default:"./barcodes"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// MySQLDSN returns the MySQL data source name.
func (d *VoucherDBConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// Enabled reports whether mailbox polling is configured.
func (m *MailConfig) Enabled() bool {
	return m.IMAPAddr != ""
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
