package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/prashikshan/portal-auth/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations accept
// strings such as "15m" or "30d" as well as integer nanoseconds.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	GRPCHealthAddr               string         `json:"grpc_health_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	RefreshSecretKey             string         `json:"refresh_secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	RotateRefreshTokens          bool           `json:"rotate_refresh_tokens"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	PasswordAlgorithm            string         `json:"password_algorithm"`
	MaxLoginAttempts             int            `json:"max_login_attempts"`
	LockDuration                 timex.Duration `json:"lock_duration"`
	RateLimitWindow              timex.Duration `json:"rate_limit_window"`
	RateLimitMax                 int            `json:"rate_limit_max"`
	RedisAddr                    string         `json:"redis_addr"`
	NATSURL                      string         `json:"nats_url"`
	NATSSubjectPrefix            string         `json:"nats_subject_prefix"`
	CORSOrigin                   string         `json:"cors_origin"`
	Environment                  string         `json:"environment"`
	LogLevel                     string         `json:"log_level"`
	StoreTimeout                 timex.Duration `json:"store_timeout"`
	CleanupInterval              timex.Duration `json:"cleanup_interval"`
	StaticDir                    string         `json:"static_dir"`
}

// parseJson overlays the file at path onto config. Keys absent from the file
// keep their current values. An empty path is a no-op.
func parseJson(config *Config, path string) error {
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	config.HTTPAddr = c.HTTPAddr
	config.GRPCHealthAddr = c.GRPCHealthAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.RefreshSecretKey = c.RefreshSecretKey
	config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	config.RotateRefreshTokens = c.RotateRefreshTokens
	config.BcryptCost = c.BcryptCost
	config.PasswordAlgorithm = c.PasswordAlgorithm
	config.MaxLoginAttempts = c.MaxLoginAttempts
	config.LockDuration = c.LockDuration.Duration
	config.RateLimitWindow = c.RateLimitWindow.Duration
	config.RateLimitMax = c.RateLimitMax
	config.RedisAddr = c.RedisAddr
	config.NATSURL = c.NATSURL
	config.NATSSubjectPrefix = c.NATSSubjectPrefix
	config.CORSOrigin = c.CORSOrigin
	config.Environment = c.Environment
	config.LogLevel = c.LogLevel
	config.StoreTimeout = c.StoreTimeout.Duration
	config.CleanupInterval = c.CleanupInterval.Duration
	config.StaticDir = c.StaticDir

	return nil
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		HTTPAddr:                     c.HTTPAddr,
		GRPCHealthAddr:               c.GRPCHealthAddr,
		DatabaseDSN:                  c.DatabaseDSN,
		SecretKey:                    c.SecretKey,
		RefreshSecretKey:             c.RefreshSecretKey,
		AccessTokenValidityDuration:  timex.Duration{Duration: c.AccessTokenValidityDuration},
		RefreshTokenValidityDuration: timex.Duration{Duration: c.RefreshTokenValidityDuration},
		RotateRefreshTokens:          c.RotateRefreshTokens,
		BcryptCost:                   c.BcryptCost,
		PasswordAlgorithm:            c.PasswordAlgorithm,
		MaxLoginAttempts:             c.MaxLoginAttempts,
		LockDuration:                 timex.Duration{Duration: c.LockDuration},
		RateLimitWindow:              timex.Duration{Duration: c.RateLimitWindow},
		RateLimitMax:                 c.RateLimitMax,
		RedisAddr:                    c.RedisAddr,
		NATSURL:                      c.NATSURL,
		NATSSubjectPrefix:            c.NATSSubjectPrefix,
		CORSOrigin:                   c.CORSOrigin,
		Environment:                  c.Environment,
		LogLevel:                     c.LogLevel,
		StoreTimeout:                 timex.Duration{Duration: c.StoreTimeout},
		CleanupInterval:              timex.Duration{Duration: c.CleanupInterval},
		StaticDir:                    c.StaticDir,
	}
}
