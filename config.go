package rics

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// FileConfig is the daemon's on-disk configuration: listener endpoints plus
// the server flags' initial values. cmd/ricsd loads one of these before
// constructing a Server.
type FileConfig struct {
	Endpoints     []Endpoint
	CanBroadcast  bool
	CanDropChance float32
	IdleTimeout   time.Duration
}

// rawEndpoint mirrors the YAML/env shape of one endpoint entry, since
// viper's UnmarshalKey needs exported, file-shaped fields rather than
// Endpoint's own names.
type rawEndpoint struct {
	Network string `mapstructure:"network"`
	Address string `mapstructure:"address"`
}

// LoadConfig reads listener endpoints and server flag defaults from a YAML
// file at path, overridable by RICS_-prefixed environment variables (e.g.
// RICS_CANBROADCAST=true). An empty path skips the file read and returns
// defaults plus any environment overrides.
func LoadConfig(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("rics")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("canbroadcast", false)
	v.SetDefault("candropchance", DefaultCanDropChance)
	v.SetDefault("idletimeout", DefaultIdleTimeout)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "rics: read config %s", path)
		}
	}

	var raw []rawEndpoint
	if err := v.UnmarshalKey("endpoints", &raw); err != nil {
		return nil, errors.Wrap(err, "rics: decode endpoints")
	}

	cfg := &FileConfig{
		CanBroadcast:  v.GetBool("canbroadcast"),
		CanDropChance: float32(v.GetFloat64("candropchance")),
		IdleTimeout:   v.GetDuration("idletimeout"),
	}
	for _, r := range raw {
		cfg.Endpoints = append(cfg.Endpoints, Endpoint{Network: r.Network, Address: r.Address})
	}
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = defaultServerEndpoints()
	}

	return cfg, nil
}

// Options translates the loaded file config into Server/Client Options.
func (c *FileConfig) Options() []Option {
	return []Option{
		WithEndpoints(c.Endpoints...),
		WithCanBroadcast(c.CanBroadcast),
		WithCanDropChance(c.CanDropChance),
		WithIdleTimeout(c.IdleTimeout),
	}
}
