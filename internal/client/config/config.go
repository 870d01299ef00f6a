package config

import "time"

// Config holds runtime settings for the vault CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the vault gRPC endpoint.
//   - RequestTimeout: deadline applied to every call.
//   - DataDir: directory holding the local session database and exports.
type Config struct {
	ServerEndpointAddr string
	RequestTimeout     time.Duration
	DataDir            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RequestTimeout = 10 * time.Second
	c.DataDir = ".recreatio"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if given) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
