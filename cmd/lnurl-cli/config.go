package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/feelancer21/lnurlbridge"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var (
	appName        = "lnurlbridge"
	configFileName = "client.yaml"
)

// Config is the client configuration file.
type Config struct {
	// NodeAddress is the host:port the local node is reachable at. It is
	// sent to services opening channels to us.
	NodeAddress string                 `yaml:"node_address" validate:"omitempty,hostname_port"`
	LogLevel    string                 `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error critical off"`
	Lnclient    string                 `yaml:"lnclient" validate:"required,oneof=lnd interactive"`
	LND         *lnurlbridge.LNDConfig `yaml:"lnd" validate:"required_if=Lnclient lnd"`
	LnInter     *LnInteractiveConfig   `yaml:"interactive" validate:"required_if=Lnclient interactive"`
}

// LnInteractiveConfig only supports the auth command.
type LnInteractiveConfig struct {
	PubKey string `yaml:"pub_key" validate:"required,hexadecimal,len=66"`
}

func (c *Config) validate() error {
	return validator.New().Struct(c)
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// loadConfig reads the file named by --config, or client.yaml in the user
// config dir.
func loadConfig(c *cli.Context) (*Config, error) {
	path := c.String("config")
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locating config dir: %w", err)
		}
		path = filepath.Join(dir, appName, configFileName)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return parseConfig(b)
}

// parseConfig decodes strictly, unknown keys are an error.
func parseConfig(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.setDefaults()

	return &cfg, nil
}
