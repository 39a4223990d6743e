// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	HTTP          HTTPConfig              `mapstructure:"http"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Scheduler     SchedulerConfig         `mapstructure:"scheduler"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Orders        OrdersConfig            `mapstructure:"orders"`
	Cart          CartConfig              `mapstructure:"cart"`
	Auth          AuthConfig              `mapstructure:"auth"`
	Tracing       TracingConfig           `mapstructure:"tracing"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	// NotificationProcessID is the BPMN process started for every queued notification.
	NotificationProcessID string `mapstructure:"notification_process_id"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
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

type ElasticsearchConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	ReportsIndex string   `mapstructure:"reports_index"`
}

// RedisConfig backs the template cache, carts and scheduler locks. Timeouts
// are in milliseconds.
type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  int    `mapstructure:"dial_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// --- Domain Sections ---

// SchedulerConfig holds the cron expression of every periodic job plus the
// windows those jobs operate on.
type SchedulerConfig struct {
	Enabled         bool              `mapstructure:"enabled"`
	Jobs            map[string]string `mapstructure:"jobs"`
	RetryWindow     int               `mapstructure:"retry_window"`     // milliseconds
	RetentionWindow int               `mapstructure:"retention_window"` // milliseconds
	PendingOrderAge int               `mapstructure:"pending_order_age"`
	LockTTL         int               `mapstructure:"lock_ttl"` // milliseconds
}

// NotificationConfig holds channel provider settings.
type NotificationConfig struct {
	StrictTemplates  bool `mapstructure:"strict_templates"`
	SendTimeout      int  `mapstructure:"send_timeout"`       // milliseconds
	TemplateCacheTTL int  `mapstructure:"template_cache_ttl"` // milliseconds

	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`

	SMS struct {
		Enabled bool `mapstructure:"enabled"`
		// Provider is "sns" or "gateway".
		Provider           string  `mapstructure:"provider"`
		DefaultCountryCode string  `mapstructure:"default_country_code"`
		SenderID           string  `mapstructure:"sender_id"`
		RatePerSecond      float64 `mapstructure:"rate_per_second"`
		Burst              int     `mapstructure:"burst"`
		Gateway            struct {
			URL      string `mapstructure:"url"`
			Username string `mapstructure:"username"`
			APIKey   string `mapstructure:"api_key"`
		} `mapstructure:"gateway"`
	} `mapstructure:"sms"`

	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

type OrdersConfig struct {
	// Currency is used only for rendering amounts in notification bodies.
	Currency string `mapstructure:"currency"`
}

type CartConfig struct {
	TTL int `mapstructure:"ttl"` // milliseconds
}

// AuthConfig holds the bearer token settings for the HTTP API.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
