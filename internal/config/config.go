package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	FlowStore  FlowStoreConfig  `mapstructure:"flow_store"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Optimize   OptimizeConfig   `mapstructure:"optimize"`
	Validation ValidationConfig `mapstructure:"validation"`
	Flow       FlowConfig       `mapstructure:"flow"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds receipt database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// FlowStoreConfig holds the flow record store configuration
type FlowStoreConfig struct {
	Path string `mapstructure:"path"`
}

// OCRConfig holds the remote OCR service configuration
type OCRConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay      time.Duration `mapstructure:"retry_max_delay"`
	RetryMaxAttempts   int           `mapstructure:"retry_max_attempts"`
	ChunkRetryAttempts int           `mapstructure:"chunk_retry_attempts"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts    int           `mapstructure:"max_poll_attempts"`
}

// OptimizeConfig holds image optimization configuration
type OptimizeConfig struct {
	JPEGQuality int `mapstructure:"jpeg_quality"`
}

// ValidationConfig holds the draft validation thresholds
type ValidationConfig struct {
	MaxAmount            float64 `mapstructure:"max_amount"`
	MaintenanceThreshold float64 `mapstructure:"maintenance_threshold"`
	FuelHighThreshold    float64 `mapstructure:"fuel_high_threshold"`
}

// FlowConfig holds flow manager configuration
type FlowConfig struct {
	AutoAdvance     bool          `mapstructure:"auto_advance"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/receipts.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Flow store defaults
	viper.SetDefault("flow_store.path", "data/flows.db")

	// OCR service defaults
	viper.SetDefault("ocr.request_timeout", 30*time.Second)
	viper.SetDefault("ocr.retry_base_delay", 500*time.Millisecond)
	viper.SetDefault("ocr.retry_max_delay", 8*time.Second)
	viper.SetDefault("ocr.retry_max_attempts", 3)
	viper.SetDefault("ocr.chunk_retry_attempts", 2)
	viper.SetDefault("ocr.poll_interval", time.Second)
	viper.SetDefault("ocr.max_poll_attempts", 60)

	// Optimization defaults
	viper.SetDefault("optimize.jpeg_quality", 85)

	// Validation defaults
	viper.SetDefault("validation.max_amount", 100000.0)
	viper.SetDefault("validation.maintenance_threshold", 1000.0)
	viper.SetDefault("validation.fuel_high_threshold", 500.0)

	// Flow defaults
	viper.SetDefault("flow.auto_advance", true)
	viper.SetDefault("flow.retention", 24*time.Hour)
	viper.SetDefault("flow.cleanup_interval", time.Hour)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("ocr.base_url", "OCR_BASE_URL")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("flow_store.path", "FLOW_STORE_PATH")
	viper.BindEnv("server.port", "SERVER_PORT")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OCR.BaseURL == "" {
		return fmt.Errorf("ocr.base_url is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Optimize.JPEGQuality < 1 || c.Optimize.JPEGQuality > 100 {
		return fmt.Errorf("optimize.jpeg_quality must be between 1 and 100")
	}
	if c.Flow.Retention <= 0 {
		return fmt.Errorf("flow.retention must be positive")
	}
	return nil
}
