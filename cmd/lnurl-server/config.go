package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/feelancer21/lnurlbridge"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var (
	appName        = "lnurlbridge"
	configFileName = "server.yaml"

	defaultListen = "0.0.0.0:3000"
)

// Config is the server configuration file.
type Config struct {
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`

	// PublicURL is the base URL wallets reach the callbacks at.
	PublicURL string `yaml:"public_url" validate:"required,url"`

	// NodeAddress overrides the host:port advertised in channel requests.
	NodeAddress string `yaml:"node_address" validate:"omitempty,hostname_port"`

	LogLevel string                 `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error critical off"`
	LND      *lnurlbridge.LNDConfig `yaml:"lnd" validate:"required"`
	Tokens   TokenConfig            `yaml:"tokens"`
	Payments PaymentConfig          `yaml:"payments"`
}

type TokenConfig struct {
	TTL            time.Duration `yaml:"ttl" validate:"gte=0"`
	MaxOutstanding int           `yaml:"max_outstanding" validate:"gte=0"`
	SweepInterval  time.Duration `yaml:"sweep_interval" validate:"gte=0"`
}

type PaymentConfig struct {
	Workers   int `yaml:"workers" validate:"gte=0,lte=64"`
	QueueSize int `yaml:"queue_size" validate:"gte=0"`
}

func (c *Config) validate() error {
	return validator.New().Struct(c)
}

func (c *Config) setDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Tokens.TTL == 0 {
		c.Tokens.TTL = lnurlbridge.DefaultTokenTTL
	}
	if c.Tokens.MaxOutstanding == 0 {
		c.Tokens.MaxOutstanding = lnurlbridge.DefaultMaxOutstanding
	}
	if c.Tokens.SweepInterval == 0 {
		c.Tokens.SweepInterval = lnurlbridge.DefaultTokenSweepInterval
	}
	if c.Payments.Workers == 0 {
		c.Payments.Workers = lnurlbridge.DefaultPaymentWorkers
	}
	if c.Payments.QueueSize == 0 {
		c.Payments.QueueSize = lnurlbridge.DefaultPaymentQueueSize
	}
}

// loadConfig reads the file named by --config, or server.yaml in the user
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
