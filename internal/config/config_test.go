package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.JWT.Secret != "env-secret" {
		t.Errorf("secret = %q", cfg.JWT.Secret)
	}
	if cfg.Booking.WeeklyLimit != 3 || cfg.Booking.Retention != 7*24*time.Hour {
		t.Errorf("booking = %+v", cfg.Booking)
	}
	if cfg.Booking.Timezone != "Europe/Zagreb" {
		t.Errorf("timezone = %q", cfg.Booking.Timezone)
	}
	if cfg.Jobs.RetentionSchedule != "15 3 * * *" || cfg.Jobs.MaterializeSchedule != "@every 5m" {
		t.Errorf("jobs = %+v", cfg.Jobs)
	}
	if cfg.Server.ReadTimeout != 10*time.Second || cfg.Database.Driver != DriverMongo {
		t.Errorf("server=%+v database=%+v", cfg.Server, cfg.Database)
	}
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  address: ":9090"
database:
  driver: memory
jwt:
  secret: file-secret
  expiration: 30m
booking:
  weekly_limit: 5
  retention: 48h
  timezone: UTC
jobs:
  enabled: false
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOOKING_WEEKLY_LIMIT", "4")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Address != ":9090" || cfg.Database.Driver != DriverMemory {
		t.Errorf("server=%+v database=%+v", cfg.Server, cfg.Database)
	}
	if cfg.JWT.Secret != "file-secret" || cfg.JWT.Expiration != 30*time.Minute {
		t.Errorf("jwt = %+v", cfg.JWT)
	}
	if cfg.Booking.WeeklyLimit != 4 {
		t.Errorf("weekly limit = %d, want env override 4", cfg.Booking.WeeklyLimit)
	}
	if cfg.Booking.Retention != 48*time.Hour || cfg.Jobs.Enabled {
		t.Errorf("booking=%+v jobs=%+v", cfg.Booking, cfg.Jobs)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Database: DatabaseConfig{Driver: DriverMemory},
		JWT:      JWTConfig{Secret: "s", Expiration: time.Hour},
		Booking:  BookingConfig{WeeklyLimit: 3, Retention: time.Hour, Timezone: "UTC"},
		Jobs:     JobsConfig{Enabled: true, RetentionSchedule: "15 3 * * *", MaterializeSchedule: "@every 5m"},
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }, "jwt.secret"},
		{"unknown gin mode", func(c *Config) { c.Server.GinMode = "prod" }, "server.gin_mode"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, "database.driver"},
		{"mongo without uri", func(c *Config) { c.Database.Driver = DriverMongo }, "database.uri"},
		{"zero limit", func(c *Config) { c.Booking.WeeklyLimit = 0 }, "weekly_limit"},
		{"bad timezone", func(c *Config) { c.Booking.Timezone = "Mars/Olympus" }, "booking.timezone"},
		{"bad schedule", func(c *Config) { c.Jobs.RetentionSchedule = "every day" }, "jobs.retention_schedule"},
		{"bad schedule ignored when disabled", func(c *Config) {
			c.Jobs.Enabled = false
			c.Jobs.RetentionSchedule = "every day"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
