package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/feelancer21/lnurlbridge"
	"github.com/urfave/cli/v2"
)

var (
	timeoutLightning = 60 * time.Second
	timeoutFlow      = 5 * time.Minute
)

type ClientApp struct {
	client *lnurlbridge.Client
	config *Config
	ctx    *cli.Context
}

func NewApp(c *cli.Context) (*ClientApp, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	if err := setupLogging(cfg.LogLevel); err != nil {
		return nil, err
	}

	ln, err := newNode(cfg)
	if err != nil {
		return nil, err
	}

	client := lnurlbridge.NewClient(lnurlbridge.ClientConfig{
		Node:        lnurlbridge.NewSerialNode(ln),
		NodeAddress: cfg.NodeAddress,
	})

	return &ClientApp{
		client: client,
		config: cfg,
		ctx:    c,
	}, nil
}

func newNode(cfg *Config) (lnurlbridge.LightningNode, error) {
	switch cfg.Lnclient {
	case "lnd":
		ln, err := lnurlbridge.NewLND(*cfg.LND)
		if err != nil {
			return nil, fmt.Errorf("failed to create LND client: %w", err)
		}
		return ln, nil

	case "interactive":
		return lnurlbridge.NewLnInteractive(
			cfg.LnInter.PubKey, os.Stdin, os.Stderr,
		), nil

	default:
		return nil, fmt.Errorf("unsupported lnclient: %s", cfg.Lnclient)
	}
}

func (a *ClientApp) GetInfo() error {
	ctx, cancel := context.WithTimeout(a.ctx.Context, timeoutLightning)
	defer cancel()

	info, err := a.client.GetNodeInfo(ctx)
	if err != nil {
		return fmt.Errorf("getting node info: %w", err)
	}

	return printJSON(info)
}

func (a *ClientApp) RequestChannel(target string) error {
	ctx, cancel := context.WithTimeout(a.ctx.Context, timeoutFlow)
	defer cancel()

	res, err := a.client.RequestChannel(ctx, target)
	if err != nil {
		return fmt.Errorf("requesting channel: %w", err)
	}

	return printJSON(res)
}

// RequestWithdraw is not bounded by a timeout, the wait ends when the invoice
// is paid or expires.
func (a *ClientApp) RequestWithdraw(target string) error {
	res, err := a.client.RequestWithdraw(a.ctx.Context, target)
	if err != nil {
		return fmt.Errorf("requesting withdrawal: %w", err)
	}

	return printJSON(res)
}

func (a *ClientApp) Auth(target string) error {
	ctx, cancel := context.WithTimeout(a.ctx.Context, timeoutFlow)
	defer cancel()

	res, err := a.client.Auth(ctx, target)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	return printJSON(res)
}

func (a *ClientApp) Close() error {
	return a.client.Close()
}
