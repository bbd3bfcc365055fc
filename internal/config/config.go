package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config structure represents the application configuration
type Config struct {
	Database struct {
		Host            string `yaml:"host" env:"DB_HOST"`
		Port            string `yaml:"port" env:"DB_PORT"`
		User            string `yaml:"user" env:"DB_USER"`
		Password        string `yaml:"password" env:"DB_PASSWORD"`
		DBName          string `yaml:"dbname" env:"DB_NAME"`
		SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE"`
		MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
		MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
		TxTimeout       string `yaml:"tx_timeout" env:"DB_TX_TIMEOUT"`
	} `yaml:"database"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`

	Enrollment struct {
		// EligibilityURL is the prerequisite service; empty disables the check.
		EligibilityURL     string `yaml:"eligibility_url" env:"ELIGIBILITY_URL"`
		EligibilityTimeout string `yaml:"eligibility_timeout" env:"ELIGIBILITY_TIMEOUT"`
		// EligibilityFailOpen admits the student when the service cannot be consulted.
		EligibilityFailOpen            bool `yaml:"eligibility_fail_open" env:"ELIGIBILITY_FAIL_OPEN"`
		SessionDefaultCapacity         int  `yaml:"session_default_capacity" env:"SESSION_DEFAULT_CAPACITY"`
		EvaluationMinCompletedSessions int  `yaml:"evaluation_min_completed_sessions" env:"EVALUATION_MIN_COMPLETED_SESSIONS"`
		FeedbackMinCompletedSessions   int  `yaml:"feedback_min_completed_sessions" env:"FEEDBACK_MIN_COMPLETED_SESSIONS"`
	} `yaml:"enrollment"`

	Audit struct {
		Timeout string `yaml:"timeout" env:"AUDIT_TIMEOUT"`
	} `yaml:"audit"`

	Notifications struct {
		// AMQPURL empty means notifications are dropped.
		AMQPURL        string `yaml:"amqp_url" env:"AMQP_URL"`
		Queue          string `yaml:"queue" env:"AMQP_QUEUE"`
		PublishTimeout string `yaml:"publish_timeout" env:"AMQP_PUBLISH_TIMEOUT"`
	} `yaml:"notifications"`
}

// LoadConfig loads configuration from a file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	setDefaults(config)

	// The file is optional; env vars alone are enough in containers.
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := processStructFields(config); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadDotEnv exports the variables of a .env file into the process environment so the
// `env` overrides of LoadConfig see them. A missing file is not an error, and variables that
// are already set win over the file.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	config.Database.Host = "localhost"
	config.Database.Port = "5432"
	config.Database.User = "postgres"
	config.Database.Password = "postgres"
	config.Database.DBName = "enrollment"
	config.Database.SSLMode = "disable"
	config.Database.MaxIdleConns = 5
	config.Database.MaxOpenConns = 20
	config.Database.ConnMaxLifetime = "1h"
	config.Database.TxTimeout = "30s"

	config.Logging.Level = "info"
	config.Logging.Format = "json"

	config.Enrollment.EligibilityTimeout = "2s"
	config.Enrollment.EligibilityFailOpen = true
	config.Enrollment.SessionDefaultCapacity = 30
	config.Enrollment.EvaluationMinCompletedSessions = 1
	config.Enrollment.FeedbackMinCompletedSessions = 0

	config.Audit.Timeout = "3s"

	config.Notifications.Queue = "enrollment.events"
	config.Notifications.PublishTimeout = "2s"
}

// validateConfig ensures that the configuration is valid
func validateConfig(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if config.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	if config.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database max_open_conns must be positive")
	}

	durations := map[string]string{
		"database.conn_max_lifetime":     config.Database.ConnMaxLifetime,
		"database.tx_timeout":            config.Database.TxTimeout,
		"enrollment.eligibility_timeout": config.Enrollment.EligibilityTimeout,
		"audit.timeout":                  config.Audit.Timeout,
		"notifications.publish_timeout":  config.Notifications.PublishTimeout,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s format: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if config.Enrollment.SessionDefaultCapacity < 1 {
		return fmt.Errorf("enrollment session_default_capacity must be positive")
	}

	if config.Enrollment.EvaluationMinCompletedSessions < 0 || config.Enrollment.FeedbackMinCompletedSessions < 0 {
		return fmt.Errorf("minimum completed sessions cannot be negative")
	}

	if format := strings.ToLower(config.Logging.Format); format != "json" && format != "text" {
		return fmt.Errorf("logging format must be json or text, got %q", config.Logging.Format)
	}

	return nil
}

// GetPostgresConnectionString returns postgres connection string
func (c *Config) GetPostgresConnectionString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		sslMode,
	)
}
