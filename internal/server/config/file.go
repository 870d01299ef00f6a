package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/minmer/recreatio-sub002/internal/flagx"
	"github.com/minmer/recreatio-sub002/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
// Zero values leave the corresponding Config field untouched.
type FileConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	Storage                     string         `json:"storage" yaml:"storage"`
	DatabaseDSN                 string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                   string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	LockoutThreshold            int            `json:"lockout_threshold" yaml:"lockout_threshold"`
	LockoutDuration             timex.Duration `json:"lockout_duration" yaml:"lockout_duration"`
	SecretCacheSize             int            `json:"secret_cache_size" yaml:"secret_cache_size"`
	SecretCacheTTL              timex.Duration `json:"secret_cache_ttl" yaml:"secret_cache_ttl"`
	S3RootUser                  string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                    string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	LogLevel                    string         `json:"log_level" yaml:"log_level"`
	LedgerOperators             []string       `json:"ledger_operators" yaml:"ledger_operators"`
}

// parseFile loads configuration values from the file named by -c/-config.
// Files ending in .yaml or .yml are read as YAML, anything else as JSON.
// If the file cannot be read or decoded, the function panics.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.Storage, c.Storage)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.LockoutDuration.Duration != 0 {
		config.LockoutDuration = c.LockoutDuration.Duration
	}
	if c.SecretCacheTTL.Duration != 0 {
		config.SecretCacheTTL = c.SecretCacheTTL.Duration
	}
	if c.LockoutThreshold != 0 {
		config.LockoutThreshold = c.LockoutThreshold
	}
	if c.SecretCacheSize != 0 {
		config.SecretCacheSize = c.SecretCacheSize
	}
	if len(c.LedgerOperators) > 0 {
		config.LedgerOperators = c.LedgerOperators
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
