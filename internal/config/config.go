package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Database drivers.
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Booking  BookingConfig  `mapstructure:"booking"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	GinMode      string        `mapstructure:"gin_mode"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // mongo | memory
	URI    string `mapstructure:"uri"`
	Name   string `mapstructure:"name"`
}

// S3Config configures the retention archive. An empty bucket disables it.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	Prefix          string `mapstructure:"prefix"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// BookingConfig carries the studio rules.
type BookingConfig struct {
	WeeklyLimit int           `mapstructure:"weekly_limit"`
	Retention   time.Duration `mapstructure:"retention"`
	Timezone    string        `mapstructure:"timezone"`
}

// JobsConfig schedules the background sweeps. Schedules use cron syntax or descriptors like "@every 5m".
type JobsConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	RetentionSchedule   string `mapstructure:"retention_schedule"`
	MaterializeSchedule string `mapstructure:"materialize_schedule"`
}

// Location resolves the configured studio time zone.
func (b BookingConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(b.Timezone)
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Use replacer for nested keys e.g., server.address -> SERVER_ADDRESS
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// No file: defaults and env vars only.
		err = nil
	} else if err != nil {
		return
	}

	// Duration strings ("60m", "168h") decode straight into time.Duration fields.
	if err = v.Unmarshal(&config); err != nil {
		return
	}

	return config, config.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.gin_mode", "release")

	v.SetDefault("database.driver", DriverMongo)
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "mnfit")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.prefix", "retention")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", "168h")

	v.SetDefault("booking.weekly_limit", 3)
	v.SetDefault("booking.retention", "168h")
	v.SetDefault("booking.timezone", "Europe/Zagreb")

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.retention_schedule", "15 3 * * *")
	v.SetDefault("jobs.materialize_schedule", "@every 5m")
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.JWT.Expiration <= 0 {
		errs = append(errs, errors.New("jwt.expiration must be positive"))
	}
	switch c.Server.GinMode {
	case "", "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("unknown server.gin_mode %q", c.Server.GinMode))
	}
	switch c.Database.Driver {
	case DriverMongo:
		if c.Database.URI == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("database.uri and database.name are required for the mongo driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.Booking.WeeklyLimit < 1 {
		errs = append(errs, errors.New("booking.weekly_limit must be at least 1"))
	}
	if c.Booking.Retention <= 0 {
		errs = append(errs, errors.New("booking.retention must be positive"))
	}
	if _, err := c.Booking.Location(); err != nil {
		errs = append(errs, fmt.Errorf("booking.timezone: %w", err))
	}
	if c.Jobs.Enabled {
		for key, schedule := range map[string]string{
			"jobs.retention_schedule":   c.Jobs.RetentionSchedule,
			"jobs.materialize_schedule": c.Jobs.MaterializeSchedule,
		} {
			if _, err := cron.ParseStandard(schedule); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	return errors.Join(errs...)
}
