// Package config loads service configuration from an optional YAML file with
// environment-variable overrides. Environment always wins, so containerized
// deployments can run without a file at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	DatabaseURL string `yaml:"databaseUrl"`
	Migrate     bool   `yaml:"migrate"`
	RedisURL    string `yaml:"redisUrl"`

	Auth struct {
		Mode        string `yaml:"mode"` // dev, hmac
		HMACSecret  string `yaml:"hmacSecret"`
		TenantClaim string `yaml:"tenantClaim"`
		RoleClaim   string `yaml:"roleClaim"`
	} `yaml:"auth"`

	Log struct {
		Level  string `yaml:"level"`  // debug, info, warn, error
		Format string `yaml:"format"` // json, console
	} `yaml:"log"`

	RateLimit struct {
		PerSecond float64 `yaml:"perSecond"`
		Burst     int     `yaml:"burst"`
	} `yaml:"rateLimit"`

	Solver struct {
		DefaultWorkers     int           `yaml:"defaultWorkers"`
		DefaultMaxDuration time.Duration `yaml:"defaultMaxDuration"`
		MaxConcurrentRuns  int           `yaml:"maxConcurrentRuns"`
		SoftTimeWindows    bool          `yaml:"softTimeWindows"`
	} `yaml:"solver"`

	Webhooks struct {
		MaxAttempts int `yaml:"maxAttempts"`
	} `yaml:"webhooks"`
}

// Default returns the configuration used when nothing is set anywhere.
func Default() Config {
	var c Config
	c.Port = "8080"
	c.Migrate = true
	c.Auth.Mode = "dev"
	c.Auth.TenantClaim = "tenant"
	c.Auth.RoleClaim = "role"
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.RateLimit.PerSecond = 50
	c.RateLimit.Burst = 100
	c.Solver.DefaultWorkers = 4
	c.Solver.DefaultMaxDuration = 30 * time.Second
	c.Solver.MaxConcurrentRuns = 8
	c.Webhooks.MaxAttempts = 10
	return c
}

// Load reads path (when non-empty and present) over the defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return c, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	setString(&c.Port, "PORT")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisURL, "REDIS_URL")
	setBool(&c.Migrate, "DB_MIGRATE")
	setString(&c.Auth.Mode, "AUTH_MODE")
	setString(&c.Auth.HMACSecret, "AUTH_HMAC_SECRET")
	setString(&c.Auth.TenantClaim, "AUTH_TENANT_CLAIM")
	setString(&c.Auth.RoleClaim, "AUTH_ROLE_CLAIM")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setFloat(&c.RateLimit.PerSecond, "RATE_LIMIT_PER_SECOND")
	setInt(&c.RateLimit.Burst, "RATE_LIMIT_BURST")
	setInt(&c.Solver.DefaultWorkers, "SOLVER_WORKERS")
	setDuration(&c.Solver.DefaultMaxDuration, "SOLVER_MAX_DURATION")
	setInt(&c.Solver.MaxConcurrentRuns, "SOLVER_MAX_CONCURRENT_RUNS")
	setBool(&c.Solver.SoftTimeWindows, "SOLVER_SOFT_TIME_WINDOWS")
	setInt(&c.Webhooks.MaxAttempts, "WEBHOOK_MAX_ATTEMPTS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
