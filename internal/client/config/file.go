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

// FileConfig is the on-disk shape of the CLI configuration. Empty values
// leave the corresponding Config field untouched.
type FileConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr" yaml:"server_endpoint_addr"`
	RequestTimeout     timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	DataDir            string         `json:"data_dir" yaml:"data_dir"`
}

// parseFile overlays cfg with the file named by -c/-config. YAML is used for
// .yaml and .yml files, JSON otherwise. Read or decode errors panic.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	if fc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = fc.ServerEndpointAddr
	}
	if fc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = fc.RequestTimeout.Duration
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
}
