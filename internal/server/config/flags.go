package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/minmer/recreatio-sub002/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-m string   storage backend: postgres or memory
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-l int      failed logins before lockout
//	-k int      lockout duration, minutes
//	-n int      secret cache size
//	-x int      secret cache ttl, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-v string   log level (debug|info|warn|error)
//	-o string   comma-separated login ids allowed to export ledgers
//
// Duration flags are whole minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-m", "-d", "-s", "-t", "-l", "-k", "-n", "-x", "-u", "-p", "-b", "-g", "-e", "-v", "-o"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.Storage, "m", config.Storage, "storage backend (postgres|memory)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	fs.IntVar(&config.LockoutThreshold, "l", config.LockoutThreshold, "failed logins before lockout")
	lockoutDuration := fs.Int("k", int(config.LockoutDuration.Minutes()), "lockout duration (in minutes)")
	fs.IntVar(&config.SecretCacheSize, "n", config.SecretCacheSize, "secret cache size")
	secretCacheTTL := fs.Int("x", int(config.SecretCacheTTL.Minutes()), "secret cache ttl (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")
	operators := fs.String("o", strings.Join(config.LedgerOperators, ","), "ledger operators (comma-separated login ids)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
	config.LockoutDuration = time.Duration(*lockoutDuration) * time.Minute
	config.SecretCacheTTL = time.Duration(*secretCacheTTL) * time.Minute
	config.LedgerOperators = splitList(*operators)
}

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
