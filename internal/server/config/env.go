package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/prashikshan/portal-auth/internal/timex"
)

// loadDotEnv loads path into the process environment when the file exists.
// Variables already set are not overridden.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// parseEnv overlays environment variables onto config. LOCK_TIME and
// RATE_LIMIT_WINDOW also accept a bare number of minutes.
func parseEnv(config *Config, lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration, bareUnit time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		if bareUnit > 0 {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = time.Duration(n) * bareUnit
				return
			}
		}
		d, err := timex.Parse(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str("HTTP_ADDR", &config.HTTPAddr)
	str("GRPC_HEALTH_ADDR", &config.GRPCHealthAddr)
	str("DATABASE_URL", &config.DatabaseDSN)
	str("JWT_SECRET", &config.SecretKey)
	str("JWT_REFRESH_SECRET", &config.RefreshSecretKey)
	duration("JWT_EXPIRES_IN", &config.AccessTokenValidityDuration, 0)
	duration("JWT_REFRESH_EXPIRES_IN", &config.RefreshTokenValidityDuration, 0)
	boolean("ROTATE_REFRESH_TOKENS", &config.RotateRefreshTokens)
	num("BCRYPT_SALT_ROUNDS", &config.BcryptCost)
	str("PASSWORD_ALGORITHM", &config.PasswordAlgorithm)
	num("MAX_LOGIN_ATTEMPTS", &config.MaxLoginAttempts)
	duration("LOCK_TIME", &config.LockDuration, time.Minute)
	duration("RATE_LIMIT_WINDOW", &config.RateLimitWindow, time.Minute)
	num("RATE_LIMIT_MAX_REQUESTS", &config.RateLimitMax)
	str("REDIS_ADDR", &config.RedisAddr)
	str("NATS_URL", &config.NATSURL)
	str("NATS_SUBJECT_PREFIX", &config.NATSSubjectPrefix)
	str("CORS_ORIGIN", &config.CORSOrigin)
	str("APP_ENV", &config.Environment)
	str("LOG_LEVEL", &config.LogLevel)
	duration("STORE_TIMEOUT", &config.StoreTimeout, 0)
	duration("CLEANUP_INTERVAL", &config.CleanupInterval, 0)
	str("STATIC_DIR", &config.StaticDir)

	return errors.Join(errs...)
}
