package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	AMQP      AMQPConfig      `mapstructure:"amqp"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Cloud     CloudConfig     `mapstructure:"cloud"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=Asia/Jakarta",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// GatewayConfig connection settings for the WhatsApp gateway service
type GatewayConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	APIKey        string `mapstructure:"api_key"`
}

// CloudConfig settings for the cloud messaging API webhook
type CloudConfig struct {
	VerifyToken string `mapstructure:"verify_token"`
	AppSecret   string `mapstructure:"app_secret"`
	BaseURL     string `mapstructure:"base_url"`
	AccessToken string `mapstructure:"access_token"`
}

// SchedulerConfig outbound dispatch tuning
type SchedulerConfig struct {
	// QueueSize buffered jobs per session before Enqueue blocks
	QueueSize int `mapstructure:"queue_size"`

	// TypingDelay humanized pause between presence update and send
	TypingDelay time.Duration `mapstructure:"typing_delay"`

	// SendTimeout default deadline for one channel send
	SendTimeout time.Duration `mapstructure:"send_timeout"`

	// LockTTL redis cross-instance session lock expiry
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessDuration time.Duration `mapstructure:"access_duration"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IsProduction checks if app is in production mode
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment checks if app is in development mode
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Bind environment variables - this allows ENV vars to override config
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values from config file with env expansion
	cfg := &Config{
		App: AppConfig{
			Name: getEnvOrDefault("APP_NAME", v.GetString("app.name")),
			Env:  getEnvOrDefault("APP_ENV", v.GetString("app.env")),
			Port: getEnvOrDefaultInt("APP_PORT", v.GetInt("app.port")),
		},
		Database: DatabaseConfig{
			Host:            getEnvOrDefault("DB_HOST", v.GetString("database.host")),
			Port:            getEnvOrDefaultInt("DB_PORT", v.GetInt("database.port")),
			User:            getEnvOrDefault("DB_USER", v.GetString("database.user")),
			Password:        getEnvOrDefault("DB_PASSWORD", v.GetString("database.password")),
			Name:            getEnvOrDefault("DB_NAME", v.GetString("database.name")),
			SSLMode:         getEnvOrDefault("DB_SSL_MODE", v.GetString("database.ssl_mode")),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", v.GetString("redis.addr")),
			Password: getEnvOrDefault("REDIS_PASSWORD", v.GetString("redis.password")),
			DB:       v.GetInt("redis.db"),
		},
		AMQP: AMQPConfig{
			URL:      getEnvOrDefault("AMQP_URL", v.GetString("amqp.url")),
			Exchange: getEnvOrDefault("AMQP_EXCHANGE", v.GetString("amqp.exchange")),
		},
		Gateway: GatewayConfig{
			BaseURL:       getEnvOrDefault("GATEWAY_BASE_URL", v.GetString("gateway.base_url")),
			WebhookSecret: getEnvOrDefault("GATEWAY_WEBHOOK_SECRET", v.GetString("gateway.webhook_secret")),
			APIKey:        getEnvOrDefault("GATEWAY_API_KEY", v.GetString("gateway.api_key")),
		},
		Cloud: CloudConfig{
			VerifyToken: getEnvOrDefault("CLOUD_VERIFY_TOKEN", v.GetString("cloud.verify_token")),
			AppSecret:   getEnvOrDefault("CLOUD_APP_SECRET", v.GetString("cloud.app_secret")),
			BaseURL:     getEnvOrDefault("CLOUD_BASE_URL", v.GetString("cloud.base_url")),
			AccessToken: getEnvOrDefault("CLOUD_ACCESS_TOKEN", v.GetString("cloud.access_token")),
		},
		Scheduler: SchedulerConfig{
			QueueSize:   v.GetInt("scheduler.queue_size"),
			TypingDelay: v.GetDuration("scheduler.typing_delay"),
			SendTimeout: v.GetDuration("scheduler.send_timeout"),
			LockTTL:     v.GetDuration("scheduler.lock_ttl"),
		},
		JWT: JWTConfig{
			Secret:         getEnvOrDefault("JWT_SECRET", v.GetString("jwt.secret")),
			AccessDuration: v.GetDuration("jwt.access_duration"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", v.GetString("logging.level")),
			Format: getEnvOrDefault("LOG_FORMAT", v.GetString("logging.format")),
		},
	}

	// Set defaults
	if cfg.App.Port == 0 {
		cfg.App.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Scheduler.QueueSize == 0 {
		cfg.Scheduler.QueueSize = 100
	}
	if cfg.Scheduler.TypingDelay == 0 {
		cfg.Scheduler.TypingDelay = 500 * time.Millisecond
	}
	if cfg.Scheduler.SendTimeout == 0 {
		cfg.Scheduler.SendTimeout = 30 * time.Second
	}
	if cfg.Scheduler.LockTTL == 0 {
		cfg.Scheduler.LockTTL = 60 * time.Second
	}
	if cfg.JWT.AccessDuration == 0 {
		cfg.JWT.AccessDuration = 15 * time.Minute
	}

	// Validate config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// getEnvOrDefault returns env value or default
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	// Handle ${VAR:default} pattern in defaultVal
	if strings.HasPrefix(defaultVal, "${") && strings.HasSuffix(defaultVal, "}") {
		inner := defaultVal[2 : len(defaultVal)-1]
		parts := strings.SplitN(inner, ":", 2)
		if len(parts) == 2 {
			return parts[1]
		}
		return ""
	}
	return defaultVal
}

// getEnvOrDefaultInt returns env value as int or default
func getEnvOrDefaultInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var intVal int
		fmt.Sscanf(val, "%d", &intVal)
		if intVal > 0 {
			return intVal
		}
	}
	if defaultVal > 0 {
		return defaultVal
	}
	return 0
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.App.Port)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	return nil
}

// LoadConfig is a helper function for backward compatibility
func LoadConfig() (*Config, error) {
	return Load("configs/config.yaml")
}
