package config

import (
	"flag"
	"io"
	"time"

	"github.com/prashikshan/portal-auth/internal/flagx"
	"github.com/prashikshan/portal-auth/internal/timex"
)

var serverFlags = []string{"-a", "-g", "-d", "-s", "-t", "-r", "-l", "-e", "-redis", "-nats", "-static"}

// parseFlags overlays command-line flags onto config.
//
// Supported flags:
//
//	-a string      HTTP bind address (e.g. ":5000")
//	-g string      gRPC health bind address, empty disables it
//	-d string      PostgreSQL DSN
//	-s string      JWT HMAC secret key
//	-t duration    access token validity (e.g. "7d", "15m")
//	-r duration    refresh token validity
//	-l string      log level
//	-e string      environment (development, production, test)
//	-redis string  Redis address for rate limiting
//	-nats string   NATS URL for audit events
//	-static string directory of frontend pages served behind the edge gate
//
// args are filtered with flagx.FilterArgs first so flags meant for other
// components do not cause parse errors.
func parseFlags(config *Config, args []string) error {
	filtered := flagx.FilterArgs(args, serverFlags)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.GRPCHealthAddr, "g", config.GRPCHealthAddr, "gRPC health address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.Func("t", "access token validity", durationFlag(&config.AccessTokenValidityDuration))
	fs.Func("r", "refresh token validity", durationFlag(&config.RefreshTokenValidityDuration))
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.Environment, "e", config.Environment, "environment")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.NATSURL, "nats", config.NATSURL, "nats url")
	fs.StringVar(&config.StaticDir, "static", config.StaticDir, "static pages directory")

	return fs.Parse(filtered)
}

func durationFlag(dst *time.Duration) func(string) error {
	return func(s string) error {
		d, err := timex.Parse(s)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
