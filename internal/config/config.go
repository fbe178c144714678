package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Processor ProcessorConfig `mapstructure:"processor"`
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

// DatabaseConfig selects the SQL driver. For postgres either URL or the discrete fields are used.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver != "postgres" {
		return c.Path
	}
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // local, s3, r2, s3compatible
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	LocalDir  string `mapstructure:"local_dir"`
}

type IngestConfig struct {
	ChunkSize              int           `mapstructure:"chunk_size"`
	MaxAttempts            int           `mapstructure:"max_attempts"`
	RetryBackoff           time.Duration `mapstructure:"retry_backoff"`
	StoragePrefix          string        `mapstructure:"storage_prefix"`
	TolerateTemplateErrors bool          `mapstructure:"tolerate_template_errors"`
	SheetConcurrency       int           `mapstructure:"sheet_concurrency"`
	MaxConcurrentJobs      int64         `mapstructure:"max_concurrent_jobs"`
	JobWaitTimeout         time.Duration `mapstructure:"job_wait_timeout"`
	MaxFileBytes           int64         `mapstructure:"max_file_bytes"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
}

// ProcessorConfig configures the downstream sheet processor. An empty URL counts staged rows locally.
type ProcessorConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
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

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("processor.url", "PROCESSOR_URL")
	v.BindEnv("processor.api_key", "PROCESSOR_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/sheetload.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_dir", "./data/uploads")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.retry_backoff", 200*time.Millisecond)
	v.SetDefault("ingest.storage_prefix", "ln_")
	v.SetDefault("ingest.tolerate_template_errors", false)
	v.SetDefault("ingest.sheet_concurrency", 1)
	v.SetDefault("ingest.max_concurrent_jobs", 4)
	v.SetDefault("ingest.job_wait_timeout", 5*time.Second)
	v.SetDefault("ingest.max_file_bytes", 50<<20)
	v.SetDefault("ingest.poll_interval", 5*time.Second)
	v.SetDefault("processor.timeout", 60*time.Second)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("config: ingest.chunk_size must be > 0, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.MaxAttempts <= 0 {
		return fmt.Errorf("config: ingest.max_attempts must be > 0, got %d", c.Ingest.MaxAttempts)
	}
	if strings.TrimSpace(c.Ingest.StoragePrefix) == "" {
		return fmt.Errorf("config: ingest.storage_prefix is required")
	}
	if c.Ingest.SheetConcurrency <= 0 {
		return fmt.Errorf("config: ingest.sheet_concurrency must be > 0, got %d", c.Ingest.SheetConcurrency)
	}
	if c.Ingest.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("config: ingest.max_concurrent_jobs must be > 0, got %d", c.Ingest.MaxConcurrentJobs)
	}
	if c.Storage.Type == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("config: storage.local_dir is required for local storage")
	}
	if c.Storage.Type != "local" && c.Storage.Bucket == "" {
		return fmt.Errorf("config: storage.bucket is required for %s storage", c.Storage.Type)
	}
	return nil
}
