package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Runner       RunnerConfig       `mapstructure:"runner"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Integrations IntegrationsConfig `mapstructure:"integrations"`
	Storage      StorageConfig      `mapstructure:"storage"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	Path            string        `mapstructure:"path"`   // sqlite file, ":memory:" for tests
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	if c.Path == "" {
		return "file::memory:?cache=shared"
	}
	return c.Path
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Claim backends for the per-user active-run claim.
const (
	ClaimBackendDatabase = "database"
	ClaimBackendRedis    = "redis"
	ClaimBackendMemory   = "memory"
)

type RunnerConfig struct {
	Workers      int           `mapstructure:"workers"`
	BatchSize    int           `mapstructure:"batch_size"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	ClaimBackend string        `mapstructure:"claim_backend"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type IntegrationsConfig struct {
	EmailFinder   IntegrationConfig `mapstructure:"email_finder"`
	Personalizer  IntegrationConfig `mapstructure:"personalizer"`
	DraftComposer IntegrationConfig `mapstructure:"draft_composer"`
	Sender        IntegrationConfig `mapstructure:"sender"`
}

// StorageConfig configures the S3-compatible archive of finished runs.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	switch c.Runner.ClaimBackend {
	case ClaimBackendDatabase, ClaimBackendMemory:
	case ClaimBackendRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("runner: claim_backend %q requires redis.enabled", ClaimBackendRedis)
		}
	default:
		return fmt.Errorf("runner: unknown claim_backend %q", c.Runner.ClaimBackend)
	}
	if c.Runner.Workers <= 0 {
		return fmt.Errorf("runner: workers must be positive")
	}
	if c.Runner.BatchSize <= 0 {
		return fmt.Errorf("runner: batch_size must be positive")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage: bucket is required when enabled")
	}
	for name, ic := range c.Integrations.All() {
		if err := ic.Validate(name); err != nil {
			return err
		}
	}
	return nil
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/outreach.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("runner.workers", 4)
	v.SetDefault("runner.batch_size", 50)
	v.SetDefault("runner.stale_after", 15*time.Minute)
	v.SetDefault("runner.claim_backend", ClaimBackendDatabase)
	v.SetDefault("auth.issuer", "outreach")
	for _, name := range integrationNames {
		v.SetDefault("integrations."+name+".timeout", 30*time.Second)
		v.SetDefault("integrations."+name+".retry_count", 2)
	}
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "campaign-runs")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.prefix", "runs")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, ic := range cfg.Integrations.pointers() {
		ic.ResolveEnvVars()
	}

	return &cfg, nil
}
